package trigger

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/novacloud-core/internal/automation"
	"github.com/nerrad567/novacloud-core/internal/device"
	"github.com/nerrad567/novacloud-core/internal/infrastructure/mqtt"
)

// ─── Firer ──────────────────────────────────────────────────────────────

type firing struct {
	strategyID string
	trigger    automation.TriggerContext
	ctxErr     error
}

type mockFirer struct {
	mu      sync.Mutex
	firings []firing

	// errs and records are keyed by strategy ID.
	errs    map[string]error
	records map[string]*automation.ExecutionRecord

	delay    time.Duration
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (m *mockFirer) Fire(ctx context.Context, strategyID string, trigger automation.TriggerContext) (*automation.ExecutionRecord, error) {
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		p := m.peak.Load()
		if n <= p || m.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}

	m.mu.Lock()
	m.firings = append(m.firings, firing{strategyID: strategyID, trigger: trigger, ctxErr: ctx.Err()})
	m.mu.Unlock()

	if err := m.errs[strategyID]; err != nil {
		return nil, err
	}
	return m.records[strategyID], nil
}

func (m *mockFirer) fired() []firing {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]firing, len(m.firings))
	copy(out, m.firings)
	return out
}

// ─── Strategy lister ────────────────────────────────────────────────────

type listCall struct {
	kind      automation.TriggerKind
	projectID string
}

type mockLister struct {
	ids   []string
	err   error
	calls []listCall
}

func (m *mockLister) ListStrategyIDs(_ context.Context, kind automation.TriggerKind, projectID string) ([]string, error) {
	m.calls = append(m.calls, listCall{kind: kind, projectID: projectID})
	return m.ids, m.err
}

// ─── Registry / device store ────────────────────────────────────────────

type mockStore struct {
	mu sync.Mutex

	sensors  map[string]automation.SensorInfo
	devices  map[string]*device.Device
	byDevice map[string][]device.Sensor

	readings  []device.Reading
	touched   []string
	recordErr error
	statusErr error
}

func newMockStore() *mockStore {
	return &mockStore{
		sensors: map[string]automation.SensorInfo{
			"s-1": {ID: "s-1", Name: "Air temperature", SensorType: "temperature", Unit: "°C",
				DeviceID: "d-1", DeviceName: "Greenhouse controller", ProjectID: "p-1"},
			"s-2": {ID: "s-2", Name: "Humidity", SensorType: "humidity", Unit: "%",
				DeviceID: "d-1", DeviceName: "Greenhouse controller", ProjectID: "p-1"},
		},
		devices: map[string]*device.Device{
			"d-1": {ID: "d-1", Name: "Greenhouse controller", ProjectID: "p-1", Status: device.StatusOffline},
		},
		byDevice: map[string][]device.Sensor{
			"d-1": {
				{ID: "s-1", DeviceID: "d-1", ValueKey: "temp"},
				{ID: "s-2", DeviceID: "d-1", ValueKey: "rh"},
			},
		},
	}
}

func (m *mockStore) GetSensorInfo(_ context.Context, sensorID string) (automation.SensorInfo, error) {
	info, ok := m.sensors[sensorID]
	if !ok {
		return automation.SensorInfo{}, device.ErrSensorNotFound
	}
	return info, nil
}

func (m *mockStore) GetDevice(_ context.Context, id string) (*device.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[id]
	if !ok {
		return nil, device.ErrDeviceNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *mockStore) ListSensorsByDevice(_ context.Context, deviceID string) ([]device.Sensor, error) {
	return m.byDevice[deviceID], nil
}

func (m *mockStore) RecordReading(_ context.Context, sensorID string, value any, recordedAt time.Time) (*device.Reading, error) {
	if m.recordErr != nil {
		return nil, m.recordErr
	}
	if recordedAt.IsZero() {
		recordedAt = time.Date(2026, 3, 14, 14, 30, 0, 0, time.UTC)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r := device.Reading{ID: int64(len(m.readings) + 1), SensorID: sensorID, Value: value, RecordedAt: recordedAt}
	m.readings = append(m.readings, r)
	return &r, nil
}

func (m *mockStore) TouchLastSeen(_ context.Context, id string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touched = append(m.touched, id)
	return nil
}

func (m *mockStore) UpdateDeviceStatus(_ context.Context, id string, status device.Status, _ time.Time) (device.StatusChange, error) {
	if m.statusErr != nil {
		return device.StatusChange{}, m.statusErr
	}
	if err := device.ValidateStatus(status); err != nil {
		return device.StatusChange{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[id]
	if !ok {
		return device.StatusChange{}, device.ErrDeviceNotFound
	}
	change := device.StatusChange{DeviceID: id, ProjectID: d.ProjectID, Old: d.Status, New: status}
	d.Status = status
	return change, nil
}

// ─── Sinks ──────────────────────────────────────────────────────────────

type mirrored struct {
	sensorID, deviceID string
	value              any
}

type mockMirror struct {
	mu     sync.Mutex
	writes []mirrored
}

func (m *mockMirror) WriteSensorReading(sensorID, deviceID string, value any, _ time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = append(m.writes, mirrored{sensorID: sensorID, deviceID: deviceID, value: value})
}

type sinkWrite struct {
	strategyID, status string
	actions, failed    int
}

type mockSink struct {
	mu     sync.Mutex
	writes []sinkWrite
}

func (m *mockSink) WriteExecution(strategyID, status string, actions, failed int, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = append(m.writes, sinkWrite{strategyID: strategyID, status: status, actions: actions, failed: failed})
}

type mockMetrics struct {
	mu       sync.Mutex
	received map[string]int
	dropped  map[string]int
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{received: map[string]int{}, dropped: map[string]int{}}
}

func (m *mockMetrics) TriggerReceived(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.received[kind]++
}

func (m *mockMetrics) FiringDropped(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped[kind]++
}

type mockPurger struct {
	cutoff time.Time
	n      int64
	err    error
}

func (m *mockPurger) PurgeExecutionsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.cutoff = cutoff
	return m.n, m.err
}

type mockSubscriber struct {
	topics   []string
	handlers map[string]mqtt.MessageHandler
	failOn   string
}

func (m *mockSubscriber) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	if topic == m.failOn {
		return errors.New("subscribe refused")
	}
	if m.handlers == nil {
		m.handlers = map[string]mqtt.MessageHandler{}
	}
	m.topics = append(m.topics, topic)
	m.handlers[topic] = handler
	return nil
}
