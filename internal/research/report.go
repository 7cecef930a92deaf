package research

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/mohammad-safakhou/deepresearch/internal/agents"
)

// SummaryFileName returns the report name for a session finishing at the
// given time.
func SummaryFileName(now time.Time) string {
	return fmt.Sprintf("research_summary_%d.md", now.Unix())
}

// WriteSummary renders the final assistant message as a markdown report at
// path. The body is the message's text segments separated by blank lines; a
// References section lists each cited URL once, in first-seen order. A nil
// message is a no-op: there is nothing to report.
func WriteSummary(logger *log.Logger, msg *agents.ThreadMessage, path string) error {
	if msg == nil {
		logger.Printf("no message content provided, cannot create research summary")
		return nil
	}

	var b strings.Builder
	segs := msg.TextSegments()
	for i, seg := range segs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(strings.TrimSpace(seg))
	}

	if cits := msg.Citations(); len(cits) > 0 {
		b.WriteString("\n\n## References\n")
		seen := make(map[string]struct{}, len(cits))
		for _, cit := range cits {
			if _, ok := seen[cit.URL]; ok {
				continue
			}
			seen[cit.URL] = struct{}{}
			title := cit.Title
			if title == "" {
				title = cit.URL
			}
			fmt.Fprintf(&b, "- [%s](%s)\n", title, cit.URL)
		}
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write research summary: %w", err)
	}
	logger.Printf("research summary written to %s", path)
	return nil
}
