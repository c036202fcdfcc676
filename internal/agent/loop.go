package agent

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/nextlevelbuilder/datalens/internal/config"
	"github.com/nextlevelbuilder/datalens/internal/providers"
	"github.com/nextlevelbuilder/datalens/internal/session"
	"github.com/nextlevelbuilder/datalens/internal/tools"
	"github.com/nextlevelbuilder/datalens/internal/tracing"
	"github.com/nextlevelbuilder/datalens/pkg/protocol"
)

// SchemaFunc supplies the database schema summary for the system prompt.
// It is a function so the loop never holds a stale schema.
type SchemaFunc func(ctx context.Context) (string, error)

// Loop drives one session's turns: reason with the model, dispatch the
// tool calls it requests, feed results back, and shape the final record.
type Loop struct {
	provider providers.Provider
	registry *tools.Registry
	sessions *session.Store
	schema   SchemaFunc
	cfg      config.AgentConfig
	model    string
	temp     float64
}

// NewLoop wires the loop. schema may be nil when no database is configured.
func NewLoop(provider providers.Provider, registry *tools.Registry, sessions *session.Store, schema SchemaFunc, cfg config.AgentConfig, model string, temperature float64) *Loop {
	return &Loop{
		provider: provider,
		registry: registry,
		sessions: sessions,
		schema:   schema,
		cfg:      cfg,
		model:    model,
		temp:     temperature,
	}
}

// Run executes one turn. Turns within a session are serialized. Failures
// inside the turn never escape: model and tool errors are folded into the
// returned record.
func (l *Loop) Run(ctx context.Context, req RunRequest) (*protocol.TurnRecord, error) {
	unlock := l.sessions.TurnLock(req.SessionID)
	defer unlock()

	ctx, span := tracing.StartSpan(ctx, "agent.turn")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", req.SessionID))

	started := time.Now()
	history := l.historyWithinBudget(ctx, req.SessionID)

	msgs := make([]providers.Message, 0, len(history)+2)
	msgs = append(msgs, providers.Message{Role: providers.RoleSystem, Content: l.buildSystemPrompt(ctx)})
	msgs = append(msgs, history...)
	userMsg := providers.Message{Role: providers.RoleUser, Content: req.Query}
	msgs = append(msgs, userMsg)

	outcome := &turnOutcome{codeQuery: IsCodeQuery(req.Query, l.cfg.CodeTriggers)}
	transcript := []providers.Message{userMsg}
	dispatched := make(map[string]bool)
	defs := l.registry.ProviderDefs()
	consecutiveFailures := 0
	state := StateReasoning

	for iteration := 0; iteration < l.cfg.MaxIterations; iteration++ {
		report(req.Status, StageReasoning)

		resp, err := l.chat(ctx, msgs, defs, "agent.reasoning")
		if err != nil {
			// Model failures never escape the loop: the turn ends with a
			// plain-language error answer instead.
			slog.Error("reasoning call failed", "session", req.SessionID, "iteration", iteration, "error", err)
			outcome.providerFailed = true
			outcome.finalAnswer = "I couldn't reach the language model to finish this request. Please try again in a moment."
			state = StateDone
			break
		}

		if !resp.HasToolCalls() {
			outcome.finalAnswer = resp.Content
			outcome.conversational = iteration == 0 && len(outcome.results) == 0 && !outcome.codeQuery
			state = StateDone
			break
		}

		state = StateToolDispatch
		if resp.Content != "" {
			outcome.reasoning = append(outcome.reasoning, resp.Content)
		}

		assistantMsg := providers.Message{
			Role:      providers.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		}
		msgs = append(msgs, assistantMsg)
		transcript = append(transcript, assistantMsg)

		report(req.Status, StageRunningTools)
		batch := make([]*tools.Result, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			var res *tools.Result
			if dispatched[call.ID] {
				res = tools.Fail("duplicate tool call id " + call.ID)
				res.Tool = call.Name
			} else {
				dispatched[call.ID] = true
				res = l.invoke(ctx, call, req.SessionID)
			}
			res.CallID = call.ID
			res.Iteration = iteration
			// trailing failures, counted per result so two failed calls in
			// one dispatch step trip the breaker
			if res.Success {
				consecutiveFailures = 0
			} else {
				consecutiveFailures++
			}
			batch = append(batch, res)
			outcome.results = append(outcome.results, res)

			toolMsg := providers.Message{
				Role:       providers.RoleTool,
				Content:    res.Content,
				ToolCallID: call.ID,
			}
			msgs = append(msgs, toolMsg)
			transcript = append(transcript, toolMsg)
		}

		if consecutiveFailures >= l.cfg.ConsecutiveFailures {
			report(req.Status, StageSynthesizing)
			outcome.circuitBroken = true
			outcome.finalAnswer = l.synthesize(ctx, msgs, failurePrompt())
			state = StateDone
			break
		}

		msgs = append(msgs, providers.Message{
			Role:    providers.RoleUser,
			Content: continuationPrompt(batch, l.cfg.ResultPreviewChars),
		})
	}

	if state != StateDone {
		report(req.Status, StageSynthesizing)
		outcome.capReached = true
		outcome.finalAnswer = l.synthesize(ctx, msgs, capPrompt())
	}

	report(req.Status, StageFormatting)
	rec := buildRecord(outcome)

	transcript = append(transcript, providers.Message{
		Role:    providers.RoleAssistant,
		Content: rec.Response,
	})
	l.sessions.Append(ctx, req.SessionID, transcript...)

	slog.Info("turn finished",
		"session", req.SessionID,
		"type", rec.Type,
		"tool_calls", len(outcome.results),
		"goal_achieved", rec.GoalAchieved,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return rec, nil
}

// historyWithinBudget loads the session history and prunes old tool results
// when it outgrows the context budget. A pruned history is written back so
// the work is not repeated next turn.
func (l *Loop) historyWithinBudget(ctx context.Context, sessionID string) []providers.Message {
	history := l.sessions.History(ctx, sessionID)
	pruned, changed := PruneHistory(history, l.cfg.ContextBudgetTokens)
	if changed {
		l.sessions.Replace(ctx, sessionID, pruned)
	}
	return pruned
}

func (l *Loop) buildSystemPrompt(ctx context.Context) string {
	summary := ""
	if l.schema != nil {
		s, err := l.schema(ctx)
		if err != nil {
			slog.Warn("schema summary unavailable", "error", err)
		} else {
			summary = s
		}
	}
	return systemPrompt(summary, l.registry.List(), time.Now())
}

func (l *Loop) chat(ctx context.Context, msgs []providers.Message, defs []providers.ToolDefinition, spanName string) (*providers.ChatResponse, error) {
	ctx, span := tracing.StartSpan(ctx, spanName)
	defer span.End()
	return l.provider.Chat(ctx, providers.ChatRequest{
		Model:       l.model,
		Messages:    msgs,
		Tools:       defs,
		Temperature: l.temp,
	})
}

func (l *Loop) invoke(ctx context.Context, call providers.ToolCall, sessionID string) *tools.Result {
	ctx, span := tracing.StartSpan(ctx, "tool.invoke")
	defer span.End()
	span.SetAttributes(attribute.String("tool.name", call.Name))
	return l.registry.Invoke(ctx, call.Name, call.Arguments, sessionID)
}

// synthesize makes a final model call without tools. Its failure must not
// lose the turn, so errors degrade to an empty answer and the formatter's
// fallback text.
func (l *Loop) synthesize(ctx context.Context, msgs []providers.Message, instruction string) string {
	msgs = append(msgs, providers.Message{Role: providers.RoleUser, Content: instruction})
	resp, err := l.chat(ctx, msgs, nil, "agent.synthesize")
	if err != nil {
		slog.Warn("synthesis call failed", "error", err)
		return ""
	}
	return resp.Content
}

func report(status func(string), stage string) {
	if status != nil {
		status(stage)
	}
}
