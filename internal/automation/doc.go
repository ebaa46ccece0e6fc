// Package automation provides the strategy engine for NovaCloud Core.
//
// A strategy is a user-defined rule: a trigger kind, condition groups that
// must all hold, and ordered actions. When a trigger fires, the engine loads
// the strategy fresh, evaluates its conditions against live telemetry and
// device state, runs its actions in order and records the outcome.
//
// Architecture:
//
//	┌────────────────────────────────────────────────────────┐
//	│                   Engine (engine.go)                    │
//	│  Fire: load → gate → evaluate → record → act → finalize │
//	│  ┌──────────────┐   ┌──────────────┐  ┌──────────────┐ │
//	│  │  Evaluator   │   │   Executor   │  │  Repository  │ │
//	│  │(evaluator.go)│   │(executor.go) │  │(repository.go│ │
//	│  └──────┬───────┘   └──────┬───────┘  └──────────────┘ │
//	│         │                  │                            │
//	│         ▼                  ▼                            │
//	│   DataProvider     CommandStore / ActuatorDispatcher    │
//	│                    Notifier / HTTP (webhook.go)         │
//	└────────────────────────────────────────────────────────┘
//
// # Key Types
//
//   - Strategy, ConditionGroup, Condition, Action: the rule definition
//   - ExecutionRecord, ActionResult: the outcome of one firing
//   - DataProvider: read-only telemetry and device view
//   - Engine: orchestrates a firing; Evaluator and Executor do the work
//
// # Failure Model
//
// Condition failures (missing data, bad configuration) make the condition
// false. Action failures become a failed ActionResult and never stop later
// actions. Only repository failures are returned from Fire.
//
// # Thread Safety
//
// Engine, Evaluator and Executor hold no mutable state and are safe for
// concurrent use. Concurrent firings of the same strategy produce separate
// records.
//
// # Usage
//
//	repo := automation.NewSQLiteRepository(db.DB)
//	evaluator := automation.NewEvaluator(provider, log)
//	executor := automation.NewExecutor(provider, devices, dispatcher, notifier, automation.ExecutorConfig{}, log)
//	engine := automation.NewEngine(repo, evaluator, executor, log)
//
//	rec, err := engine.Fire(ctx, strategyID, automation.TriggerContext{
//	    "sensor_id": "s-42",
//	    "value":     31.2,
//	})
package automation
