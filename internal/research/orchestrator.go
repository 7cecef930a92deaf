package research

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mohammad-safakhou/deepresearch/config"
	"github.com/mohammad-safakhou/deepresearch/internal/agents"
)

// startSentinel is the exact token the agent emits when it is ready to launch
// the research tool on its next run.
const startSentinel = "start_research_task"

// agentInstructions prime the remote agent: clarify first, then research
// through the deep_research tool with well-formed parameters.
const agentInstructions = "You are a helpful Agent that assists in researching scientific topics. " +
	"First, you should ask clarifying questions to get enough information. " +
	"When you have enough information, use the deep_research tool to provide the final answer. " +
	"When calling the deep_research tool, you MUST follow these rules:\n" +
	"1. Only use 'title' and 'prompt' parameters\n" +
	"2. Ensure all parameter values are properly formatted strings\n" +
	"3. Avoid special characters like unmatched parentheses in parameter values\n" +
	"4. Keep parameter values concise and well-formatted\n" +
	"Example format: deep_research(title=\"Research Title\", prompt=\"Your research question here\")"

// AgentService is the slice of the remote agents client the session needs.
type AgentService interface {
	CreateAgent(ctx context.Context, p agents.CreateAgentParams) (agents.Agent, error)
	DeleteAgent(ctx context.Context, agentID string) error
	CreateThread(ctx context.Context) (agents.Thread, error)
	DeleteThread(ctx context.Context, threadID string) error
	CreateMessage(ctx context.Context, threadID, role, content string) (agents.ThreadMessage, error)
	CreateRun(ctx context.Context, threadID string, p agents.CreateRunParams) (agents.Run, error)
	GetRun(ctx context.Context, threadID, runID string) (agents.Run, error)
	LastMessageByRole(ctx context.Context, threadID, role string) (*agents.ThreadMessage, error)
	GetMessage(ctx context.Context, threadID, messageID string) (*agents.ThreadMessage, error)
	GetConnection(ctx context.Context, name string) (agents.Connection, error)
}

// Outcome is the terminal state of a finished session.
type Outcome string

const (
	OutcomeCompleted  Outcome = "completed"
	OutcomeUserExited Outcome = "user_exited"
	OutcomeError      Outcome = "error"
)

var orchestratorTracer trace.Tracer = otel.Tracer("deepresearch/internal/research")

// Orchestrator drives one research session from topic to report: it
// provisions the remote agent and thread, alternates agent runs with human
// turns relayed over the handoff, retries failed runs under the correction
// rules, and writes the final report once the agent cites sources.
type Orchestrator struct {
	research config.ResearchConfig
	azure    config.AzureConfig
	svc      AgentService
	session  *Session
	handoff  *Handoff
	poller   *Poller
	logger   *log.Logger
}

// NewOrchestrator creates an orchestrator bound to a session and handoff.
func NewOrchestrator(cfg *config.Config, svc AgentService, session *Session, handoff *Handoff, logger *log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.New(log.Writer(), "[ORCH] ", log.LstdFlags)
	}
	research := cfg.Research.Normalize()
	return &Orchestrator{
		research: research,
		azure:    cfg.Azure,
		svc:      svc,
		session:  session,
		handoff:  handoff,
		poller:   NewPoller(svc, session, research.PollInterval, research.MaxRunWait, logger),
		logger:   logger,
	}
}

// Run executes the session to a terminal outcome. The caller has already
// claimed the session via TryBegin and queued the topic on the handoff; Run
// releases the session on the way out, whatever happens.
func (o *Orchestrator) Run(ctx context.Context) Outcome {
	ctx, span := orchestratorTracer.Start(ctx, "research.session")
	defer span.End()
	recordSessionStarted(ctx)

	outcome := OutcomeError
	defer func() {
		o.session.End()
		recordSessionEnded(ctx, outcome)
		o.logger.Printf("research session ended (%s)", outcome)
	}()

	outcome = o.run(ctx, span)
	return outcome
}

func (o *Orchestrator) run(ctx context.Context, span trace.Span) Outcome {
	// The topic was queued before this goroutine launched; it enters the
	// transcript before the first remote call.
	topic, err := o.handoff.Receive(ctx)
	if err != nil {
		return o.fail(span, fmt.Errorf("failed to receive topic: %w", err))
	}
	o.session.Append(RoleUser, topic)
	span.SetAttributes(attribute.String("research.topic", firstN(topic, 120)))
	o.logger.Printf("starting research session: %s", firstN(topic, 120))

	conn, err := o.svc.GetConnection(ctx, o.azure.BingConnectionName)
	if err != nil {
		return o.fail(span, fmt.Errorf("failed to resolve grounding connection %q: %w", o.azure.BingConnectionName, err))
	}
	o.logger.Printf("grounding connection resolved: %s", conn.ID)
	tool := agents.NewDeepResearchTool(o.azure.DeepResearchModel, conn.ID)

	// Cleanup is best effort and never masks the session outcome.
	var agentID, threadID string
	defer func() { o.cleanup(agentID, threadID) }()

	agent, err := o.svc.CreateAgent(ctx, agents.CreateAgentParams{
		Model:        o.azure.AgentModel,
		Name:         o.azure.AgentName,
		Instructions: agentInstructions,
		Tools:        []agents.ToolDefinition{tool},
	})
	if err != nil {
		return o.fail(span, err)
	}
	agentID = agent.ID
	o.logger.Printf("agent created: %s", agentID)

	thread, err := o.svc.CreateThread(ctx)
	if err != nil {
		return o.fail(span, err)
	}
	threadID = thread.ID
	o.logger.Printf("thread created: %s", threadID)

	pending := topic    // next user message to post, "" when none
	lastMessageID := "" // newest assistant message already in the transcript
	lastAgentText := "" // newest assistant text, drives the sentinel checks
	retries := 0

	for {
		if pending != "" {
			if _, err := o.svc.CreateMessage(ctx, threadID, agents.RoleUser, pending); err != nil {
				return o.fail(span, err)
			}
			pending = ""
		}

		params := agents.CreateRunParams{AgentID: agentID}
		if strings.Contains(lastAgentText, startSentinel) {
			o.logger.Printf("research sentinel detected, forcing the deep research tool")
			params.Tools = []agents.ToolDefinition{tool}
		}
		res, err := o.executeRun(ctx, threadID, params, lastMessageID)
		if err != nil {
			return o.fail(span, err)
		}
		run := res.Run
		lastMessageID = res.LastMessageID
		if res.LastText != "" {
			lastAgentText = res.LastText
		}
		o.logger.Printf("run %s finished with status: %s", run.ID, run.Status)

		if run.Status == agents.StatusCompleted {
			retries = 0
		}

		if run.Status == agents.StatusFailed {
			var code, msg string
			if run.LastError != nil {
				code, msg = run.LastError.Code, run.LastError.Message
			}
			cls := Classify(code, msg)
			if cls.Action == ActionFail {
				return o.fail(span, fmt.Errorf("run failed with unrecoverable error: %s: %s", code, msg))
			}

			retries++
			recordRetry(ctx)
			o.logger.Printf("run failed (retry %d/%d): %s: %s", retries, o.research.MaxRetries, code, firstN(msg, 200))
			if retries >= o.research.MaxRetries {
				return o.fail(span, fmt.Errorf("run failed %d consecutive times, giving up: %s: %s", retries, code, msg))
			}

			if cls.Action == ActionRetryWithCorrection {
				if _, err := o.svc.CreateMessage(ctx, threadID, agents.RoleUser, cls.Correction); err != nil {
					return o.fail(span, err)
				}
			} else {
				o.logger.Printf("transient server error, retrying run as-is")
			}
			lastAgentText = ""
			continue
		}

		// The newest assistant message decides what happens next.
		final, err := o.svc.LastMessageByRole(ctx, threadID, agents.RoleAssistant)
		if err != nil {
			return o.fail(span, err)
		}
		if final != nil {
			lastAgentText = final.Text()
			if final.ID != lastMessageID {
				o.session.Append(RoleAssistant, lastAgentText)
				lastMessageID = final.ID
			}
		}

		if final != nil && len(final.Citations()) > 0 {
			o.logger.Printf("citations found, writing final report")
			name := SummaryFileName(time.Now())
			if err := WriteSummary(o.logger, final, filepath.Join(o.research.ReportDir, name)); err != nil {
				return o.fail(span, err)
			}
			o.session.SetResultFile(name)
			o.session.SetWaiting(false)
			return OutcomeCompleted
		}

		if strings.Contains(lastAgentText, startSentinel) {
			// The agent will launch the research on the next run; no human turn.
			continue
		}

		o.session.SetWaiting(true)
		o.logger.Printf("waiting for user input")
		reply, err := o.handoff.ReceiveTimeout(ctx, o.research.InputTimeout)
		if err != nil {
			if errors.Is(err, ErrInputTimeout) {
				return o.fail(span, ErrInputTimeout)
			}
			return o.fail(span, err)
		}
		o.session.Append(RoleUser, reply)
		o.session.SetWaiting(false)

		if strings.EqualFold(reply, "exit") || strings.EqualFold(reply, "quit") {
			o.logger.Printf("user ended the session")
			return OutcomeUserExited
		}
		pending = reply
	}
}

// executeRun submits one run and waits for it to reach a terminal status.
func (o *Orchestrator) executeRun(ctx context.Context, threadID string, params agents.CreateRunParams, lastMessageID string) (PollResult, error) {
	ctx, span := orchestratorTracer.Start(ctx, "research.run")
	defer span.End()

	run, err := o.svc.CreateRun(ctx, threadID, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return PollResult{}, err
	}
	start := time.Now()
	res, err := o.poller.Wait(ctx, threadID, run, lastMessageID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}
	span.SetAttributes(attribute.String("run.status", res.Run.Status))
	recordRun(ctx, res.Run.Status, time.Since(start).Seconds())
	return res, nil
}

func (o *Orchestrator) fail(span trace.Span, err error) Outcome {
	o.logger.Printf("research session error: %v", err)
	o.session.SetError(err.Error())
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return OutcomeError
}

// cleanup deletes the remote agent and thread. Failures are logged and
// swallowed so a flaky delete never changes how the session ended.
func (o *Orchestrator) cleanup(agentID, threadID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if agentID != "" {
		if err := o.svc.DeleteAgent(ctx, agentID); err != nil {
			o.logger.Printf("could not delete agent: %v", err)
		} else {
			o.logger.Printf("agent deleted")
		}
	}
	if threadID != "" {
		if err := o.svc.DeleteThread(ctx, threadID); err != nil {
			o.logger.Printf("could not delete thread: %v", err)
		} else {
			o.logger.Printf("thread deleted")
		}
	}
}

// firstN truncates s to n runes for log lines and span attributes.
func firstN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
