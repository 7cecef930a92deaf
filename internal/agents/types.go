package agents

// Message roles accepted by the agents service.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Run statuses reported by the agents service.
const (
	StatusQueued         = "queued"
	StatusInProgress     = "in_progress"
	StatusCompleted      = "completed"
	StatusFailed         = "failed"
	StatusCancelled      = "cancelled"
	StatusExpired        = "expired"
	StatusRequiresAction = "requires_action"
)

// Agent is a remote agent definition.
type Agent struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Model        string `json:"model"`
	Instructions string `json:"instructions"`
}

// Thread is a remote conversation thread.
type Thread struct {
	ID string `json:"id"`
}

// ThreadMessage is a single message on a thread. Content is a list of typed
// parts; only text parts carry annotations.
type ThreadMessage struct {
	ID        string           `json:"id"`
	ThreadID  string           `json:"thread_id"`
	Role      string           `json:"role"`
	Content   []MessageContent `json:"content"`
	CreatedAt int64            `json:"created_at"`
}

// MessageContent is one part of a message body.
type MessageContent struct {
	Type string       `json:"type"`
	Text *MessageText `json:"text,omitempty"`
}

// MessageText is the text payload of a content part.
type MessageText struct {
	Value       string       `json:"value"`
	Annotations []Annotation `json:"annotations,omitempty"`
}

// Annotation decorates a span of message text.
type Annotation struct {
	Type        string       `json:"type"`
	URLCitation *URLCitation `json:"url_citation,omitempty"`
}

// URLCitation references an external source backing a claim in the text.
type URLCitation struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// TextSegments returns the message's text part values in order.
func (m *ThreadMessage) TextSegments() []string {
	if m == nil {
		return nil
	}
	var out []string
	for _, part := range m.Content {
		if part.Text != nil {
			out = append(out, part.Text.Value)
		}
	}
	return out
}

// Text joins all text parts with newlines.
func (m *ThreadMessage) Text() string {
	segs := m.TextSegments()
	if len(segs) == 0 {
		return ""
	}
	out := segs[0]
	for _, s := range segs[1:] {
		out += "\n" + s
	}
	return out
}

// Citations returns every URL citation annotation across all text parts, in
// the order the service emitted them.
func (m *ThreadMessage) Citations() []URLCitation {
	if m == nil {
		return nil
	}
	var out []URLCitation
	for _, part := range m.Content {
		if part.Text == nil {
			continue
		}
		for _, ann := range part.Text.Annotations {
			if ann.URLCitation != nil {
				out = append(out, *ann.URLCitation)
			}
		}
	}
	return out
}

// Run is a remote agent execution over a thread.
type Run struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	Status    string    `json:"status"`
	LastError *RunError `json:"last_error,omitempty"`
}

// InFlight reports whether the run is still queued or executing.
func (r Run) InFlight() bool {
	return r.Status == StatusQueued || r.Status == StatusInProgress
}

// RunError carries the service's failure classification for a run.
type RunError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ToolDefinition is a tool attached to an agent or forced onto a run.
type ToolDefinition struct {
	Type         string            `json:"type"`
	DeepResearch *DeepResearchTool `json:"deep_research,omitempty"`
}

// DeepResearchTool configures the hosted deep research tool.
type DeepResearchTool struct {
	Model                    string                    `json:"model"`
	BingGroundingConnections []BingGroundingConnection `json:"bing_grounding_connections"`
}

// BingGroundingConnection points the research tool at a grounding connection.
type BingGroundingConnection struct {
	ConnectionID string `json:"connection_id"`
}

// NewDeepResearchTool builds a research tool definition bound to a grounding
// connection.
func NewDeepResearchTool(model, connectionID string) ToolDefinition {
	return ToolDefinition{
		Type: "deep_research",
		DeepResearch: &DeepResearchTool{
			Model:                    model,
			BingGroundingConnections: []BingGroundingConnection{{ConnectionID: connectionID}},
		},
	}
}

// Connection is a project-level resource connection (e.g. Bing grounding).
type Connection struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}
