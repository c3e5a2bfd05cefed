package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"go-ops/internal/features/activity"
	"go-ops/internal/features/connector"
)

// memStore is a mutex-guarded in-memory stand-in for the two Mongo
// collections. Claim and guard semantics mirror the real repositories so
// service tests exercise the same contracts.
type memStore struct {
	mu     sync.Mutex
	queues map[primitive.ObjectID]*Queue
	lines  map[primitive.ObjectID]*Line
	seq    int
}

func newMemStore() *memStore {
	return &memStore{
		queues: map[primitive.ObjectID]*Queue{},
		lines:  map[primitive.ObjectID]*Line{},
	}
}

func (s *memStore) sortedLines(queueID primitive.ObjectID, state LineState) []*Line {
	var out []*Line
	for _, l := range s.lines {
		if l.QueueID == queueID && (state == "" || l.State == state) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

type memQueueRepo struct{ store *memStore }

func (r *memQueueRepo) Create(ctx context.Context, q *Queue) (*Queue, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	q.ID = primitive.NewObjectID()
	q.State = QueueDraft
	q.CreatedAt = time.Now()
	q.UpdatedAt = q.CreatedAt
	cp := *q
	r.store.queues[q.ID] = &cp
	return q, nil
}

func (r *memQueueRepo) Get(ctx context.Context, tenantID, id primitive.ObjectID) (*Queue, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	q, ok := r.store.queues[id]
	if !ok || q.TenantID != tenantID {
		return nil, mongo.ErrNoDocuments
	}
	cp := *q
	return &cp, nil
}

func (r *memQueueRepo) GetByIdempotencyKey(ctx context.Context, tenantID primitive.ObjectID, key string) (*Queue, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, q := range r.store.queues {
		if q.TenantID == tenantID && q.Config.IdempotencyKey == key {
			cp := *q
			return &cp, nil
		}
	}
	return nil, mongo.ErrNoDocuments
}

func (r *memQueueRepo) List(ctx context.Context, tenantID primitive.ObjectID, filter ListFilter) ([]Queue, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := []Queue{}
	for _, q := range r.store.queues {
		if q.TenantID != tenantID {
			continue
		}
		if filter.State != "" && q.State != filter.State {
			continue
		}
		out = append(out, *q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memQueueRepo) BeginProcessing(ctx context.Context, tenantID, id primitive.ObjectID) (*Queue, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	q, ok := r.store.queues[id]
	if !ok || q.TenantID != tenantID {
		return nil, mongo.ErrNoDocuments
	}
	if q.IsProcessing {
		return nil, ErrAlreadyProcessing
	}
	now := time.Now()
	q.IsProcessing = true
	q.State = QueueProcessing
	q.ProcessCount++
	q.LastProcessedAt = &now
	q.UpdatedAt = now
	cp := *q
	return &cp, nil
}

func (r *memQueueRepo) EndProcessing(ctx context.Context, id primitive.ObjectID, finalState QueueState) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	q, ok := r.store.queues[id]
	if !ok {
		return mongo.ErrNoDocuments
	}
	q.IsProcessing = false
	q.State = finalState
	q.UpdatedAt = time.Now()
	return nil
}

func (r *memQueueRepo) RefreshCounts(ctx context.Context, id primitive.ObjectID) (*Queue, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	q, ok := r.store.queues[id]
	if !ok {
		return nil, mongo.ErrNoDocuments
	}
	counts := map[LineState]int{}
	total := 0
	for _, l := range r.store.lines {
		if l.QueueID == id {
			counts[l.State]++
			total++
		}
	}
	q.TotalCount = total
	q.DraftCount = counts[LineDraft]
	q.DoneCount = counts[LineDone]
	q.FailedCount = counts[LineFailed]
	q.CancelledCount = counts[LineCancelled]
	q.UpdatedAt = time.Now()
	cp := *q
	return &cp, nil
}

func (r *memQueueRepo) FlagActionRequired(ctx context.Context, id primitive.ObjectID, reason string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if q, ok := r.store.queues[id]; ok {
		q.IsActionRequired = true
		q.ActionRequiredReason = reason
	}
	return nil
}

func (r *memQueueRepo) ClearActionRequired(ctx context.Context, id primitive.ObjectID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if q, ok := r.store.queues[id]; ok {
		q.IsActionRequired = false
		q.ActionRequiredReason = ""
	}
	return nil
}

func (r *memQueueRepo) SetState(ctx context.Context, id primitive.ObjectID, state QueueState) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if q, ok := r.store.queues[id]; ok {
		q.State = state
	}
	return nil
}

func (r *memQueueRepo) Touch(ctx context.Context, id primitive.ObjectID) error { return nil }

func (r *memQueueRepo) ListDeletable(ctx context.Context, cutoff time.Time) ([]primitive.ObjectID, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var ids []primitive.ObjectID
	for _, q := range r.store.queues {
		if q.State.IsTerminal() && q.UpdatedAt.Before(cutoff) {
			ids = append(ids, q.ID)
		}
	}
	return ids, nil
}

func (r *memQueueRepo) DeleteByIDs(ctx context.Context, ids []primitive.ObjectID) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var n int64
	for _, id := range ids {
		if _, ok := r.store.queues[id]; ok {
			delete(r.store.queues, id)
			n++
		}
	}
	return n, nil
}

func (r *memQueueRepo) EnsureIndexes(ctx context.Context) error { return nil }

type memLineRepo struct{ store *memStore }

func (r *memLineRepo) Upsert(ctx context.Context, line *Line) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, l := range r.store.lines {
		if l.QueueID == line.QueueID && l.ExternalID == line.ExternalID {
			l.UpdatedAt = time.Now()
			return false, nil
		}
	}
	r.store.seq++
	cp := *line
	cp.ID = primitive.NewObjectID()
	cp.State = LineDraft
	cp.CreatedAt = time.Now().Add(time.Duration(r.store.seq) * time.Microsecond)
	cp.UpdatedAt = cp.CreatedAt
	r.store.lines[cp.ID] = &cp
	return true, nil
}

func (r *memLineRepo) ClaimNext(ctx context.Context, queueID primitive.ObjectID) (*Line, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	drafts := r.store.sortedLines(queueID, LineDraft)
	if len(drafts) == 0 {
		return nil, nil
	}
	l := drafts[0]
	now := time.Now()
	l.State = LineProcessing
	l.ProcessCount++
	l.LastProcessedAt = &now
	cp := *l
	return &cp, nil
}

func (r *memLineRepo) MarkDone(ctx context.Context, id primitive.ObjectID, result string, wasUpdate bool) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	l, ok := r.store.lines[id]
	if !ok || l.State != LineProcessing {
		return fmt.Errorf("line %s not in processing", id.Hex())
	}
	l.State = LineDone
	l.ResultID = result
	l.WasUpdate = wasUpdate
	l.ErrorMessage = ""
	l.ErrorKind = ""
	return nil
}

func (r *memLineRepo) MarkFailed(ctx context.Context, id primitive.ObjectID, kind, message string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	l, ok := r.store.lines[id]
	if !ok || l.State != LineProcessing {
		return fmt.Errorf("line %s not in processing", id.Hex())
	}
	now := time.Now()
	l.State = LineFailed
	l.ErrorKind = kind
	l.ErrorMessage = message
	l.ErrorCount++
	l.LastErrorAt = &now
	return nil
}

func (r *memLineRepo) ResetForRetry(ctx context.Context, ids []primitive.ObjectID) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var n int64
	for _, id := range ids {
		if l, ok := r.store.lines[id]; ok && l.State == LineFailed {
			l.State = LineDraft
			n++
		}
	}
	return n, nil
}

func (r *memLineRepo) CancelOpen(ctx context.Context, queueID primitive.ObjectID) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var n int64
	for _, l := range r.store.lines {
		if l.QueueID == queueID && (l.State == LineDraft || l.State == LineFailed) {
			l.State = LineCancelled
			n++
		}
	}
	return n, nil
}

func (r *memLineRepo) CountByState(ctx context.Context, queueID primitive.ObjectID) (map[LineState]int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	counts := map[LineState]int{}
	for _, l := range r.store.lines {
		if l.QueueID == queueID {
			counts[l.State]++
		}
	}
	return counts, nil
}

func (r *memLineRepo) ListRetryableFailed(ctx context.Context, queueID primitive.ObjectID, maxRetries int) ([]Line, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := []Line{}
	for _, l := range r.store.sortedLines(queueID, LineFailed) {
		if l.ProcessCount < maxRetries && l.ErrorKind != string(connector.KindPermanent) {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (r *memLineRepo) ListByQueue(ctx context.Context, queueID primitive.ObjectID, state LineState, limit int64) ([]Line, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := []Line{}
	for _, l := range r.store.sortedLines(queueID, state) {
		out = append(out, *l)
	}
	return out, nil
}

func (r *memLineRepo) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var n int64
	for _, l := range r.store.lines {
		if l.State == LineProcessing && l.LastProcessedAt != nil && l.LastProcessedAt.Before(cutoff) {
			l.State = LineDraft
			n++
		}
	}
	return n, nil
}

func (r *memLineRepo) DeleteByQueueIDs(ctx context.Context, queueIDs []primitive.ObjectID) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var n int64
	for id, l := range r.store.lines {
		for _, qid := range queueIDs {
			if l.QueueID == qid {
				delete(r.store.lines, id)
				n++
				break
			}
		}
	}
	return n, nil
}

func (r *memLineRepo) EnsureIndexes(ctx context.Context) error { return nil }

type memActivityRepo struct {
	mu      sync.Mutex
	entries []activity.Entry
}

func (r *memActivityRepo) Append(ctx context.Context, entry *activity.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry.ID = primitive.NewObjectID()
	entry.CreatedAt = time.Now()
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *memActivityRepo) List(ctx context.Context, tenantID, queueID primitive.ObjectID, limit int64) ([]activity.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []activity.Entry{}
	for i := len(r.entries) - 1; i >= 0; i-- {
		e := r.entries[i]
		if e.TenantID == tenantID && e.QueueID == queueID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memActivityRepo) EnsureIndexes(ctx context.Context) error { return nil }

// fakeWriter fails the external ids listed in fail with the given error and
// succeeds everything else.
type fakeWriter struct {
	mu       sync.Mutex
	fail     map[string]error
	upserted []string
}

func (w *fakeWriter) Upsert(ctx context.Context, rec connector.Record) (*connector.Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err, ok := w.fail[rec.ExternalID]; ok {
		return nil, err
	}
	w.upserted = append(w.upserted, rec.ExternalID)
	return &connector.Result{InternalID: "int-" + rec.ExternalID, WasUpdate: false}, nil
}

type fakeResolver struct {
	writer connector.Writer
	err    error
}

func (r *fakeResolver) Resolve(ctx context.Context, tenantID, connectorID primitive.ObjectID) (connector.Writer, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.writer, nil
}

type fakeSources struct {
	setting *connector.Setting
	records []connector.Record
	err     error
}

func (s *fakeSources) Get(ctx context.Context, tenantID, id primitive.ObjectID) (*connector.Setting, error) {
	if s.setting == nil {
		return nil, mongo.ErrNoDocuments
	}
	return s.setting, nil
}

func (s *fakeSources) NewSource(setting *connector.Setting) (connector.Source, error) {
	return &fakeSource{records: s.records, err: s.err}, nil
}

type fakeSource struct {
	records []connector.Record
	err     error
}

func (s *fakeSource) Fetch(ctx context.Context, params map[string]string) ([]connector.Record, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.records, nil
}

func (s *fakeSource) TestConnection(ctx context.Context) bool { return s.err == nil }

var errWriterDown = errors.New("target unavailable")
