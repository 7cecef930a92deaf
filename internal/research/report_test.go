package research

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mohammad-safakhou/deepresearch/internal/agents"
)

func timeFixed() time.Time {
	return time.Unix(1700000000, 0)
}

func textPart(value string, citations ...agents.URLCitation) agents.MessageContent {
	text := &agents.MessageText{Value: value}
	for i := range citations {
		cit := citations[i]
		text.Annotations = append(text.Annotations, agents.Annotation{
			Type:        "url_citation",
			URLCitation: &cit,
		})
	}
	return agents.MessageContent{Type: "text", Text: text}
}

func TestWriteSummaryNilMessage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.md")
	logger := log.New(io.Discard, "", 0)
	if err := WriteSummary(logger, nil, path); err != nil {
		t.Fatalf("WriteSummary: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("no report should be written for a nil message")
	}
}

func TestWriteSummaryBodyAndReferences(t *testing.T) {
	msg := &agents.ThreadMessage{
		ID:   "msg_final",
		Role: agents.RoleAssistant,
		Content: []agents.MessageContent{
			textPart("  # Findings\nQuantum batteries store energy in quantum states.  ",
				agents.URLCitation{URL: "https://a.example/paper", Title: "Quantum Battery Review"},
				agents.URLCitation{URL: "https://a.example/paper", Title: "Duplicate Of First"},
			),
			textPart("Second section.",
				agents.URLCitation{URL: "https://b.example/article"},
			),
		},
	}

	path := filepath.Join(t.TempDir(), "summary.md")
	logger := log.New(io.Discard, "", 0)
	if err := WriteSummary(logger, msg, path); err != nil {
		t.Fatalf("WriteSummary: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	got := string(raw)

	wantBody := "# Findings\nQuantum batteries store energy in quantum states.\n\nSecond section."
	if !strings.HasPrefix(got, wantBody) {
		t.Fatalf("report body = %q", got)
	}
	if !strings.Contains(got, "\n\n## References\n") {
		t.Fatalf("missing references header: %q", got)
	}

	// Duplicate URL collapses to its first-seen entry; the bare URL falls
	// back to itself as the link title.
	if strings.Count(got, "https://a.example/paper") != 1 {
		t.Fatalf("duplicate citation not collapsed: %q", got)
	}
	if strings.Contains(got, "Duplicate Of First") {
		t.Fatalf("later duplicate title leaked into report: %q", got)
	}
	refA := "- [Quantum Battery Review](https://a.example/paper)\n"
	refB := "- [https://b.example/article](https://b.example/article)\n"
	idxA := strings.Index(got, refA)
	idxB := strings.Index(got, refB)
	if idxA == -1 || idxB == -1 {
		t.Fatalf("missing reference lines: %q", got)
	}
	if idxA > idxB {
		t.Fatalf("references out of first-seen order: %q", got)
	}
}

func TestWriteSummaryNoCitations(t *testing.T) {
	msg := &agents.ThreadMessage{
		ID:      "msg_plain",
		Role:    agents.RoleAssistant,
		Content: []agents.MessageContent{textPart("Just text.")},
	}
	path := filepath.Join(t.TempDir(), "summary.md")
	logger := log.New(io.Discard, "", 0)
	if err := WriteSummary(logger, msg, path); err != nil {
		t.Fatalf("WriteSummary: %v", err)
	}
	raw, _ := os.ReadFile(path)
	if strings.Contains(string(raw), "## References") {
		t.Fatalf("references section should be absent without citations: %q", raw)
	}
	if string(raw) != "Just text." {
		t.Fatalf("report = %q", raw)
	}
}

func TestSummaryFileName(t *testing.T) {
	name := SummaryFileName(timeFixed())
	if name != "research_summary_1700000000.md" {
		t.Fatalf("name = %q", name)
	}
}
