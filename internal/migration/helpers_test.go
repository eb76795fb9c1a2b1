package migration

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tphakala/syncbridge/internal/errors"
	"github.com/tphakala/syncbridge/internal/queue"
)

type testFilter struct {
	Site string `json:"site" msgpack:"site"`
}

type sourceEntity struct {
	ID   string
	Name string
}

type targetEntity struct {
	LegacyRef string
	Name      string
}

// fakeSource serves a fixed, ordered id list.
type fakeSource struct {
	mu          sync.Mutex
	ids         []string
	missing     map[string]bool
	estimateErr error
	pageCalls   int
	detailCalls map[string]int
}

func newFakeSource(n int) *fakeSource {
	s := &fakeSource{missing: map[string]bool{}, detailCalls: map[string]int{}}
	for i := 1; i <= n; i++ {
		s.ids = append(s.ids, fmt.Sprintf("L%03d", i))
	}
	return s
}

func (s *fakeSource) CountAndFirstPage(_ context.Context, _ testFilter, _ int) (int64, error) {
	if s.estimateErr != nil {
		return 0, s.estimateErr
	}
	return int64(len(s.ids)), nil
}

func (s *fakeSource) GetPage(_ context.Context, _ testFilter, pageNumber, pageSize int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pageCalls++
	start := pageNumber * pageSize
	if start >= len(s.ids) {
		return nil, nil
	}
	end := min(start+pageSize, len(s.ids))
	return slices.Clone(s.ids[start:end]), nil
}

func (s *fakeSource) GetDetail(_ context.Context, key string) (sourceEntity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detailCalls[key]++
	if s.missing[key] {
		return sourceEntity{}, errors.Newf("entity %s not found", key).
			Component("test-source").
			Category(errors.CategoryNotFound).
			Build()
	}
	return sourceEntity{ID: key, Name: "entity " + key}, nil
}

// fakeTarget assigns sequential ids.
type fakeTarget struct {
	mu      sync.Mutex
	created []targetEntity
	fail    error
}

func (t *fakeTarget) Create(_ context.Context, r targetEntity) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fail != nil {
		return "", t.fail
	}
	t.created = append(t.created, r)
	return fmt.Sprintf("T%03d", len(t.created)), nil
}

func (t *fakeTarget) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.created)
}

func transform(_ context.Context, e sourceEntity) (targetEntity, error) {
	return targetEntity{LegacyRef: e.ID, Name: e.Name}, nil
}

// fakeMappings is an in-memory MappingStore with failure injection.
type fakeMappings struct {
	mu           sync.Mutex
	byLegacy     map[string]MappingRecord
	byNew        map[string]string
	createCalls  int
	failCreates  int  // upcoming creates that fail transiently
	persistFails bool // failed creates still store the record
	beforeCreate func(rec MappingRecord)
}

func newFakeMappings() *fakeMappings {
	return &fakeMappings{byLegacy: map[string]MappingRecord{}, byNew: map[string]string{}}
}

func (m *fakeMappings) GetByLegacyID(_ context.Context, legacyID string) (*MappingRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byLegacy[legacyID]
	if !ok {
		return nil, fmt.Errorf("legacy id %s: %w", legacyID, ErrMappingNotFound)
	}
	return &rec, nil
}

func (m *fakeMappings) Create(_ context.Context, rec MappingRecord) error {
	if m.beforeCreate != nil {
		m.beforeCreate(rec)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++
	if m.failCreates > 0 {
		m.failCreates--
		if m.persistFails {
			m.storeLocked(rec)
		}
		return errors.New(errors.NewStd("mapping service unavailable")).
			Component("test-mappings").
			Category(errors.CategoryNetwork).
			Build()
	}
	if existing, ok := m.byLegacy[rec.LegacyID]; ok {
		return &DuplicateMappingError{Existing: existing, Duplicate: rec}
	}
	if legacy, ok := m.byNew[rec.NewID]; ok {
		return &DuplicateMappingError{Existing: m.byLegacy[legacy], Duplicate: rec}
	}
	m.storeLocked(rec)
	return nil
}

func (m *fakeMappings) storeLocked(rec MappingRecord) {
	m.byLegacy[rec.LegacyID] = rec
	m.byNew[rec.NewID] = rec.LegacyID
}

func (m *fakeMappings) CountByLabel(_ context.Context, label string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, rec := range m.byLegacy {
		if rec.Label == label {
			n++
		}
	}
	return n, nil
}

func (m *fakeMappings) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createCalls
}

// fakeHistory is an in-memory HistoryStore with compare-and-set transitions.
type fakeHistory struct {
	mu   sync.Mutex
	rows map[string]History
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{rows: map[string]History{}}
}

func (h *fakeHistory) Create(_ context.Context, row History) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rows[row.MigrationID] = row
	return nil
}

func (h *fakeHistory) Get(_ context.Context, id string) (*History, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	row, ok := h.rows[id]
	if !ok {
		return nil, errors.New(fmt.Errorf("migration %s: %w", id, ErrMigrationNotFound)).
			Category(errors.CategoryNotFound).
			Build()
	}
	return &row, nil
}

func (h *fakeHistory) List(_ context.Context, q HistoryQuery) ([]History, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []History
	for _, row := range h.rows {
		if q.DomainType == "" || row.DomainType == q.DomainType {
			out = append(out, row)
		}
	}
	return out, nil
}

func (h *fakeHistory) transition(id string, from, to Status, apply func(*History)) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	row, ok := h.rows[id]
	if !ok {
		return errors.New(ErrMigrationNotFound).Category(errors.CategoryNotFound).Build()
	}
	if row.Status != from {
		return errors.Newf("cannot move to %s: current status is %s, expected %s", to, row.Status, from).
			Category(errors.CategoryState).
			Build()
	}
	row.Status = to
	if apply != nil {
		apply(&row)
	}
	h.rows[id] = row
	return nil
}

func (h *fakeHistory) RequestCancel(_ context.Context, id string) error {
	return h.transition(id, StatusStarted, StatusCancelRequested, nil)
}

func (h *fakeHistory) Finalize(_ context.Context, id string, from, to Status, migrated, failed int64, whenEnded time.Time) error {
	return h.transition(id, from, to, func(row *History) {
		row.RecordsMigrated = migrated
		row.RecordsFailed = failed
		row.WhenEnded = &whenEnded
	})
}

func (h *fakeHistory) get(t *testing.T, id string) History {
	t.Helper()
	row, err := h.Get(context.Background(), id)
	require.NoError(t, err)
	return *row
}

// sentMessage is a message observed by recordingQueue.
type sentMessage struct {
	msg   queue.Message
	delay time.Duration
}

// recordingQueue wraps a memory queue, recording sends and optionally overriding
// the outstanding-work check.
type recordingQueue struct {
	*queue.MemoryQueue
	mu        sync.Mutex
	sent      []sentMessage
	sendErr   error
	failKinds map[TaskKind]error // per-kind send failures
	busy      func() bool
}

func newRecordingQueue(maxDeliveries int) *recordingQueue {
	return &recordingQueue{MemoryQueue: queue.NewMemoryQueue(queue.Options{MaxDeliveries: maxDeliveries})}
}

func (q *recordingQueue) Send(ctx context.Context, msg queue.Message, delay time.Duration) error {
	q.mu.Lock()
	if q.sendErr != nil {
		err := q.sendErr
		q.mu.Unlock()
		return err
	}
	if err := q.failKinds[TaskKind(msg.Kind)]; err != nil {
		q.mu.Unlock()
		return err
	}
	q.sent = append(q.sent, sentMessage{msg: msg, delay: delay})
	q.mu.Unlock()
	return q.MemoryQueue.Send(ctx, msg, delay)
}

func (q *recordingQueue) ProbablyHasMessages(ctx context.Context, migrationID string) (bool, error) {
	if q.busy != nil {
		return q.busy(), nil
	}
	return q.MemoryQueue.ProbablyHasMessages(ctx, migrationID)
}

func (q *recordingQueue) sentKinds() []TaskKind {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]TaskKind, 0, len(q.sent))
	for _, s := range q.sent {
		out = append(out, TaskKind(s.msg.Kind))
	}
	return out
}

func (q *recordingQueue) sentOf(kind TaskKind) []sentMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []sentMessage
	for _, s := range q.sent {
		if TaskKind(s.msg.Kind) == kind {
			out = append(out, s)
		}
	}
	return out
}

func (q *recordingQueue) reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sent = nil
}

// eventRecorder collects telemetry events.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) Track(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) named(name string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

type testEngine = Engine[testFilter, string, sourceEntity, targetEntity]

// harness bundles an engine with its fakes.
type harness struct {
	engine   *testEngine
	source   *fakeSource
	target   *fakeTarget
	mappings *fakeMappings
	history  *fakeHistory
	queue    *recordingQueue
	events   *eventRecorder
}

func newHarness(t *testing.T, entities int, tweak ...func(*Config)) *harness {
	t.Helper()
	h := &harness{
		source:   newFakeSource(entities),
		target:   &fakeTarget{},
		mappings: newFakeMappings(),
		history:  newFakeHistory(),
		queue:    newRecordingQueue(3),
		events:   &eventRecorder{},
	}

	cfg := DefaultConfig("visits")
	cfg.PageSize = 10
	cfg.BusyDelay = 0
	cfg.QuietDelay = 0
	cfg.RetryBaseDelay = 0
	cfg.Workers = 4
	cfg.PollInterval = time.Millisecond
	for _, fn := range tweak {
		fn(&cfg)
	}

	e, err := New(cfg, Capabilities[testFilter, string, sourceEntity, targetEntity]{
		Source:    h.source,
		Target:    h.target,
		Transform: transform,
		LegacyID:  func(k string) string { return k },
		ParseKey:  func(s string) (string, error) { return s, nil },
	}, Dependencies{
		Mappings:  h.mappings,
		History:   h.history,
		Queue:     h.queue,
		Telemetry: h.events,
	})
	require.NoError(t, err)
	h.engine = e
	return h
}

// next receives and processes exactly one message, returning it.
func (h *harness) next(t *testing.T) queue.Delivery {
	t.Helper()
	ctx := context.Background()
	deliveries, err := h.queue.Receive(ctx, 1)
	require.NoError(t, err)
	require.Len(t, deliveries, 1, "expected a visible message")
	h.engine.process(ctx, deliveries[0])
	return deliveries[0]
}

func (h *harness) drain(t *testing.T) {
	t.Helper()
	_, err := h.engine.Drain(context.Background())
	require.NoError(t, err)
}
