package automation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/nerrad567/novacloud-core/internal/audit"
)

// Logger defines the logging interface used by the evaluator, executor and
// engine. *logging.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// WSHub is the interface for broadcasting WebSocket events.
type WSHub interface {
	// Broadcast sends an event to all clients subscribed to the given channel.
	Broadcast(channel string, payload any)
}

// Metrics receives engine counters. See internal/metrics.
type Metrics interface {
	FiringSkipped(reason string)
	FiringFinished(status ExecutionStatus, duration time.Duration)
	ActionFinished(kind ActionKind, status ActionStatus)
}

type noopMetrics struct{}

func (noopMetrics) FiringSkipped(string)                         {}
func (noopMetrics) FiringFinished(ExecutionStatus, time.Duration) {}
func (noopMetrics) ActionFinished(ActionKind, ActionStatus)       {}

// Reasons passed to Metrics.FiringSkipped.
const (
	SkipNotFound        = "not_found"
	SkipDisabled        = "disabled"
	SkipConditionsUnmet = "conditions_unmet"
)

// ChannelStrategyExecuted is the WebSocket channel for finalized records.
const ChannelStrategyExecuted = "strategy.executed"

// Engine runs strategies end-to-end: gate, evaluate, record, act, finalize.
//
// Each call to Fire is an isolated unit of work; the engine holds no state
// between calls apart from its collaborators. Fire is safe for concurrent
// use, and every ExecutionRecord is written only by the call that created it.
type Engine struct {
	repo      Repository
	evaluator *Evaluator
	executor  *Executor
	hub       WSHub
	audit     audit.Repository
	metrics   Metrics
	logger    Logger
}

// NewEngine creates a strategy engine.
//
// Parameters:
//   - repo: Strategy definitions and execution records
//   - evaluator: Condition evaluation
//   - executor: Action execution
//   - logger: Logger instance (may be nil)
func NewEngine(repo Repository, evaluator *Evaluator, executor *Executor, logger Logger) *Engine {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Engine{
		repo:      repo,
		evaluator: evaluator,
		executor:  executor,
		metrics:   noopMetrics{},
		logger:    logger,
	}
}

// SetHub sets the WebSocket hub that receives strategy.executed events.
func (e *Engine) SetHub(hub WSHub) {
	e.hub = hub
}

// SetAudit sets the audit trail written after each firing.
func (e *Engine) SetAudit(repo audit.Repository) {
	e.audit = repo
}

// SetMetrics sets the metrics sink.
func (e *Engine) SetMetrics(m Metrics) {
	if m == nil {
		m = noopMetrics{}
	}
	e.metrics = m
}

// Fire loads a strategy by ID and runs it against a trigger.
//
// The strategy is read fresh on every call so deleted or disabled strategies
// are never fired from stale state.
//
// Returns:
//   - *ExecutionRecord: the finalized record, or nil when the strategy does
//     not exist, is disabled, or its conditions did not hold
//   - error: only for failures loading the strategy or persisting the record
func (e *Engine) Fire(ctx context.Context, strategyID string, trigger TriggerContext) (*ExecutionRecord, error) {
	s, err := e.repo.GetStrategy(ctx, strategyID)
	if errors.Is(err, ErrStrategyNotFound) {
		e.logger.Debug("strategy vanished before firing", "strategy_id", strategyID)
		e.metrics.FiringSkipped(SkipNotFound)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading strategy %s: %w", strategyID, err)
	}
	return e.Run(ctx, s, trigger)
}

// Run executes an already-loaded strategy. See Fire for the return contract.
func (e *Engine) Run(ctx context.Context, s *Strategy, trigger TriggerContext) (*ExecutionRecord, error) { //nolint:gocognit // linear lifecycle: gate, evaluate, record, act, finalize
	if !s.Enabled {
		e.metrics.FiringSkipped(SkipDisabled)
		return nil, nil
	}

	if !e.evaluator.EvaluateStrategy(ctx, sortedGroups(s.Groups), trigger) {
		e.logger.Debug("strategy conditions not met", "strategy_id", s.ID)
		e.metrics.FiringSkipped(SkipConditionsUnmet)
		return nil, nil
	}

	rec := &ExecutionRecord{
		ID:           GenerateID(),
		StrategyID:   s.ID,
		StrategyName: s.Name,
		Status:       StatusPending,
		Trigger:      copyTrigger(trigger),
		Results:      []ActionResult{},
		CreatedAt:    time.Now().UTC(),
	}
	if err := e.repo.CreateExecution(ctx, rec); err != nil {
		return nil, fmt.Errorf("creating execution record: %w", err)
	}

	started := time.Now().UTC()
	rec.StartedAt = &started
	rec.Status = StatusProcessing
	if err := e.repo.UpdateExecution(ctx, rec); err != nil {
		return nil, fmt.Errorf("marking execution %s processing: %w", rec.ID, err)
	}

	e.logger.Info("strategy firing",
		"strategy_id", s.ID,
		"strategy_name", s.Name,
		"execution_id", rec.ID,
		"actions", len(s.Actions),
	)

	for _, a := range sortedActions(s.Actions) {
		res := e.runAction(ctx, s, a, rec.ID, trigger)
		rec.Results = append(rec.Results, res)
		e.metrics.ActionFinished(res.Kind, res.Status)
	}

	completed := time.Now().UTC()
	rec.CompletedAt = &completed
	rec.Status = aggregateStatus(rec.Results)
	if err := e.repo.UpdateExecution(ctx, rec); err != nil {
		return nil, fmt.Errorf("finalizing execution %s: %w", rec.ID, err)
	}

	duration := completed.Sub(started)
	e.metrics.FiringFinished(rec.Status, duration)
	e.logger.Info("strategy firing complete",
		"strategy_id", s.ID,
		"execution_id", rec.ID,
		"status", rec.Status,
		"duration_ms", duration.Milliseconds(),
	)

	e.publish(ctx, s, rec, duration)
	return rec, nil
}

// runAction executes one action, converting a panic into a failed result.
func (e *Engine) runAction(ctx context.Context, s *Strategy, a Action, executionID string, trigger TriggerContext) (res ActionResult) {
	started := time.Now().UTC()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("action panicked",
				"strategy_id", s.ID,
				"action_id", a.ID,
				"panic", r,
			)
			res = ActionResult{
				ActionID:  a.ID,
				Kind:      a.Kind,
				Status:    ActionFailed,
				StartedAt: started,
				EndedAt:   time.Now().UTC(),
				Error:     fmt.Sprintf("action panicked: %v", r),
			}
		}
	}()
	return e.executor.Execute(ctx, s, a, executionID, trigger)
}

// publish fans a finalized record out to the audit trail and WebSocket hub.
func (e *Engine) publish(ctx context.Context, s *Strategy, rec *ExecutionRecord, duration time.Duration) {
	failed := 0
	for _, r := range rec.Results {
		if r.Status == ActionFailed {
			failed++
		}
	}

	if e.audit != nil {
		err := e.audit.Create(ctx, &audit.AuditLog{
			Action:     audit.ActionExecute,
			EntityType: audit.EntityStrategy,
			EntityID:   s.ID,
			UserID:     s.OwnerID,
			Details: map[string]any{
				"execution_id":   rec.ID,
				"status":         string(rec.Status),
				"actions_total":  len(rec.Results),
				"actions_failed": failed,
			},
		})
		if err != nil {
			e.logger.Warn("failed to write audit log", "execution_id", rec.ID, "error", err)
		}
	}

	if e.hub != nil {
		e.hub.Broadcast(ChannelStrategyExecuted, map[string]any{
			"strategy_id":    s.ID,
			"strategy_name":  s.Name,
			"project_id":     s.ProjectID,
			"execution_id":   rec.ID,
			"status":         string(rec.Status),
			"actions_total":  len(rec.Results),
			"actions_failed": failed,
			"duration_ms":    duration.Milliseconds(),
		})
	}
}

// aggregateStatus derives the final record status: success when nothing
// failed (including no actions), failed when nothing succeeded, otherwise
// partial_success.
func aggregateStatus(results []ActionResult) ExecutionStatus {
	succeeded, failed := 0, 0
	for _, r := range results {
		if r.Status == ActionSucceeded {
			succeeded++
		} else {
			failed++
		}
	}
	switch {
	case failed == 0:
		return StatusSuccess
	case succeeded == 0:
		return StatusFailed
	default:
		return StatusPartialSuccess
	}
}

func sortedGroups(groups []ConditionGroup) []ConditionGroup {
	out := make([]ConditionGroup, len(groups))
	copy(out, groups)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

func sortedActions(actions []Action) []Action {
	out := make([]Action, len(actions))
	copy(out, actions)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

func copyTrigger(t TriggerContext) TriggerContext {
	out := make(TriggerContext, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}
