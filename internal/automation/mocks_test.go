package automation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/novacloud-core/internal/audit"
)

// ─── DataProvider ───────────────────────────────────────────────────────────

type mockProvider struct {
	mu         sync.Mutex
	values     map[string]any
	attributes map[string]map[string]any
	sensors    map[string]SensorInfo
	actuators  map[string]ActuatorInfo
	now        time.Time

	valueCalls int
}

func newMockProvider() *mockProvider {
	return &mockProvider{
		values:     make(map[string]any),
		attributes: make(map[string]map[string]any),
		sensors:    make(map[string]SensorInfo),
		actuators:  make(map[string]ActuatorInfo),
		now:        time.Date(2026, 3, 14, 14, 30, 0, 0, time.UTC),
	}
}

func (m *mockProvider) LatestSensorValue(_ context.Context, sensorID string) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.valueCalls++
	v, ok := m.values[sensorID]
	if !ok {
		return nil, fmt.Errorf("sensor %s: %w", sensorID, ErrDataUnavailable)
	}
	return v, nil
}

func (m *mockProvider) DeviceAttribute(_ context.Context, deviceID, attribute string) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	attrs, ok := m.attributes[deviceID]
	if !ok {
		return nil, fmt.Errorf("device %s: %w", deviceID, ErrDataUnavailable)
	}
	v, ok := attrs[attribute]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAttribute, attribute)
	}
	return v, nil
}

func (m *mockProvider) SensorInfo(_ context.Context, sensorID string) (SensorInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.sensors[sensorID]
	if !ok {
		return SensorInfo{}, fmt.Errorf("sensor %s: %w", sensorID, ErrDataUnavailable)
	}
	return info, nil
}

func (m *mockProvider) ActuatorInfo(_ context.Context, actuatorID string) (ActuatorInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.actuators[actuatorID]
	if !ok {
		return ActuatorInfo{}, fmt.Errorf("actuator %s: %w", actuatorID, ErrDataUnavailable)
	}
	return info, nil
}

func (m *mockProvider) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *mockProvider) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.valueCalls
}

// ─── CommandStore ───────────────────────────────────────────────────────────

type commandUpdate struct {
	ID       string
	Status   CommandStatus
	Response string
}

type mockCommandStore struct {
	mu        sync.Mutex
	created   []CommandLog
	updates   []commandUpdate
	createErr error
}

func (m *mockCommandStore) CreateCommandLog(_ context.Context, log *CommandLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.created = append(m.created, *log)
	return nil
}

func (m *mockCommandStore) UpdateCommandLogStatus(_ context.Context, id string, status CommandStatus, response string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, commandUpdate{ID: id, Status: status, Response: response})
	return nil
}

// ─── ActuatorDispatcher ─────────────────────────────────────────────────────

type mockDispatcher struct {
	mu       sync.Mutex
	commands []ActuatorCommand
	result   DispatchResult
	err      error
	panicMsg string
}

func newAcceptingDispatcher() *mockDispatcher {
	return &mockDispatcher{result: DispatchResult{Accepted: true, Detail: "published"}}
}

func (m *mockDispatcher) Dispatch(_ context.Context, cmd ActuatorCommand) (DispatchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.panicMsg != "" {
		panic(m.panicMsg)
	}
	m.commands = append(m.commands, cmd)
	return m.result, m.err
}

// ─── Notifier ───────────────────────────────────────────────────────────────

type mockNotifier struct {
	mu   sync.Mutex
	sent []Notification
	err  error
}

func (m *mockNotifier) Send(_ context.Context, n Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, n)
	return nil
}

// ─── Repository ─────────────────────────────────────────────────────────────

type mockRepository struct {
	mu         sync.Mutex
	strategies map[string]*Strategy
	executions map[string]ExecutionRecord
	// statuses records every status written per execution, in order.
	statuses  map[string][]ExecutionStatus
	getErr    error
	createErr error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		strategies: make(map[string]*Strategy),
		executions: make(map[string]ExecutionRecord),
		statuses:   make(map[string][]ExecutionStatus),
	}
}

func (m *mockRepository) add(s *Strategy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.strategies[s.ID] = s
}

func (m *mockRepository) GetStrategy(_ context.Context, id string) (*Strategy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	s, ok := m.strategies[id]
	if !ok {
		return nil, ErrStrategyNotFound
	}
	return s, nil
}

func (m *mockRepository) ListStrategyIDs(_ context.Context, kind TriggerKind, projectID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, s := range m.strategies {
		if s.TriggerKind == kind && (projectID == "" || s.ProjectID == projectID) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *mockRepository) CreateStrategy(_ context.Context, s *Strategy) error {
	m.add(s)
	return nil
}

func (m *mockRepository) DeleteStrategy(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.strategies[id]; !ok {
		return ErrStrategyNotFound
	}
	delete(m.strategies, id)
	return nil
}

func (m *mockRepository) CreateExecution(_ context.Context, rec *ExecutionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.executions[rec.ID] = *rec
	m.statuses[rec.ID] = append(m.statuses[rec.ID], rec.Status)
	return nil
}

func (m *mockRepository) UpdateExecution(_ context.Context, rec *ExecutionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.executions[rec.ID]
	if !ok {
		return ErrExecutionNotFound
	}
	if stored.Status.IsTerminal() {
		return ErrExecutionFinalized
	}
	m.executions[rec.ID] = *rec
	m.statuses[rec.ID] = append(m.statuses[rec.ID], rec.Status)
	return nil
}

func (m *mockRepository) GetExecution(_ context.Context, id string) (*ExecutionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.executions[id]
	if !ok {
		return nil, ErrExecutionNotFound
	}
	return &rec, nil
}

func (m *mockRepository) ListExecutions(_ context.Context, strategyID string, _ int) ([]ExecutionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ExecutionRecord
	for _, rec := range m.executions {
		if rec.StrategyID == strategyID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *mockRepository) PurgeExecutionsBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (m *mockRepository) executionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.executions)
}

// ─── WSHub / Metrics ────────────────────────────────────────────────────────

type mockHub struct {
	mu     sync.Mutex
	events []map[string]any
}

func (m *mockHub) Broadcast(channel string, payload any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if channel != ChannelStrategyExecuted {
		return
	}
	if p, ok := payload.(map[string]any); ok {
		m.events = append(m.events, p)
	}
}

type mockMetrics struct {
	mu       sync.Mutex
	skipped  map[string]int
	finished map[ExecutionStatus]int
	actions  int
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{skipped: make(map[string]int), finished: make(map[ExecutionStatus]int)}
}

func (m *mockMetrics) FiringSkipped(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skipped[reason]++
}

func (m *mockMetrics) FiringFinished(status ExecutionStatus, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished[status]++
}

func (m *mockMetrics) ActionFinished(ActionKind, ActionStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions++
}

// ─── Audit ──────────────────────────────────────────────────────────────────

type mockAudit struct {
	mu      sync.Mutex
	entries []*audit.AuditLog
	err     error
}

func (m *mockAudit) Create(_ context.Context, log *audit.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, log)
	return nil
}
