package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"go-ops/internal/config"
	common_models "go-ops/internal/common/models"
	"go-ops/internal/features/activity"
	"go-ops/internal/features/connector"
	"go-ops/pkg/utils"
)

// WriterResolver hands the processor the landing adapter for a queue's
// connector. Satisfied by connector.ConnectorService.
type WriterResolver interface {
	Resolve(ctx context.Context, tenantID, connectorID primitive.ObjectID) (connector.Writer, error)
}

// SourceResolver hands the sync trigger the fetch side of a connector.
type SourceResolver interface {
	Get(ctx context.Context, tenantID, id primitive.ObjectID) (*connector.Setting, error)
	NewSource(setting *connector.Setting) (connector.Source, error)
}

type LineInput struct {
	ExternalID string `json:"external_id"`
	Payload    bson.M `json:"payload"`
}

type QueueStatus struct {
	Queue           *Queue `json:"queue"`
	Progress        int    `json:"progress"`
	ProcessingCount int    `json:"processing_count"`
}

type QueueService interface {
	CreateQueue(ctx context.Context, q *Queue) (*Queue, error)
	GetQueue(ctx context.Context, tenantID, id primitive.ObjectID) (*Queue, error)
	ListQueues(ctx context.Context, tenantID primitive.ObjectID, filter ListFilter) ([]Queue, error)
	AddLines(ctx context.Context, tenantID, queueID primitive.ObjectID, items []LineInput) (int, error)
	Start(ctx context.Context, tenantID, queueID primitive.ObjectID) error
	RetryFailed(ctx context.Context, tenantID, queueID primitive.ObjectID) (int, error)
	ForceDone(ctx context.Context, tenantID, queueID primitive.ObjectID) (int64, error)
	Status(ctx context.Context, tenantID, queueID primitive.ObjectID) (*QueueStatus, error)
	ListLines(ctx context.Context, tenantID, queueID primitive.ObjectID, state LineState, limit int64) ([]Line, error)
	SyncFromConnector(ctx context.Context, tenantID, connectorID primitive.ObjectID, name string, params map[string]string) (*Queue, error)
	Cleanup(ctx context.Context, retentionDays int) (int64, error)
	ReclaimStale(ctx context.Context, olderThan time.Duration) (int64, error)
	Shutdown()
}

type QueueServiceImpl struct {
	QueueRepo    QueueRepository
	LineRepo     LineRepository
	ActivityRepo activity.ActivityRepository
	Writers      WriterResolver
	Sources      SourceResolver
	Config       *config.Config
	Logger       *zap.Logger

	runCtx  context.Context
	cancel  context.CancelFunc
	running sync.WaitGroup
}

func NewQueueService(
	queueRepo QueueRepository,
	lineRepo LineRepository,
	activityRepo activity.ActivityRepository,
	writers WriterResolver,
	sources SourceResolver,
	cfg *config.Config,
	logger *zap.Logger,
) QueueService {
	ctx, cancel := context.WithCancel(context.Background())
	return &QueueServiceImpl{
		QueueRepo:    queueRepo,
		LineRepo:     lineRepo,
		ActivityRepo: activityRepo,
		Writers:      writers,
		Sources:      sources,
		Config:       cfg,
		Logger:       logger,
		runCtx:       ctx,
		cancel:       cancel,
	}
}

// Shutdown cancels in-flight runs and waits for their workers to unwind.
func (s *QueueServiceImpl) Shutdown() {
	s.cancel()
	s.running.Wait()
}

func (s *QueueServiceImpl) CreateQueue(ctx context.Context, q *Queue) (*Queue, error) {
	if q.Name == "" {
		return nil, &ValidationError{Field: "name", Message: "must not be empty"}
	}

	s.applyDefaults(&q.Config)
	if q.Config.IdempotencyKey == "" {
		q.Config.IdempotencyKey = fmt.Sprintf("%s-%d", utils.Slugify(q.Name), time.Now().UnixNano())
	}
	if err := q.Config.Validate(); err != nil {
		return nil, err
	}

	// Same idempotency key returns the existing queue instead of a twin.
	existing, err := s.QueueRepo.GetByIdempotencyKey(ctx, q.TenantID, q.Config.IdempotencyKey)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, err
	}

	created, err := s.QueueRepo.Create(ctx, q)
	if err != nil {
		return nil, err
	}

	s.logActivity(ctx, created, nil, common_models.ActivityQueueCreated, common_models.ActivityStatusSuccess,
		fmt.Sprintf("Queue %q created", created.Name), nil)

	return created, nil
}

func (s *QueueServiceImpl) applyDefaults(c *QueueConfig) {
	if c.BatchSize == 0 {
		c.BatchSize = s.Config.DefaultBatchSize
	}
	if c.BatchDelayMs == 0 {
		c.BatchDelayMs = s.Config.DefaultBatchDelayMs
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = s.Config.DefaultMaxRetries
	}
	if c.BackoffMultiplier == 0 {
		c.BackoffMultiplier = 2
	}
}

func (s *QueueServiceImpl) GetQueue(ctx context.Context, tenantID, id primitive.ObjectID) (*Queue, error) {
	return s.QueueRepo.Get(ctx, tenantID, id)
}

func (s *QueueServiceImpl) ListQueues(ctx context.Context, tenantID primitive.ObjectID, filter ListFilter) ([]Queue, error) {
	return s.QueueRepo.List(ctx, tenantID, filter)
}

// AddLines enqueues a batch idempotently and recomputes the queue counters
// once at the end. Returns how many lines were actually new.
func (s *QueueServiceImpl) AddLines(ctx context.Context, tenantID, queueID primitive.ObjectID, items []LineInput) (int, error) {
	q, err := s.QueueRepo.Get(ctx, tenantID, queueID)
	if err != nil {
		return 0, err
	}
	if q.State.IsTerminal() {
		return 0, fmt.Errorf("queue is %s, no more lines can be added", q.State)
	}

	inserted := 0
	for _, item := range items {
		if err := ValidateEnqueue(item.ExternalID, item.Payload); err != nil {
			return inserted, err
		}
		isNew, err := s.LineRepo.Upsert(ctx, &Line{
			QueueID:    queueID,
			TenantID:   tenantID,
			ExternalID: item.ExternalID,
			Payload:    item.Payload,
		})
		if err != nil {
			return inserted, err
		}
		if isNew {
			inserted++
		}
	}

	if _, err := s.QueueRepo.RefreshCounts(ctx, queueID); err != nil {
		return inserted, err
	}
	return inserted, nil
}

// Start takes the processing guard and hands the queue to a background
// worker. The worker runs on the service context, not the request context,
// so it survives the HTTP call and dies with the application.
func (s *QueueServiceImpl) Start(ctx context.Context, tenantID, queueID primitive.ObjectID) error {
	existing, err := s.QueueRepo.Get(ctx, tenantID, queueID)
	if err != nil {
		return err
	}
	if existing.ConnectorID.IsZero() {
		return &ValidationError{Field: "connector_id", Message: "queue has no connector to sync through"}
	}

	q, err := s.QueueRepo.BeginProcessing(ctx, tenantID, queueID)
	if err != nil {
		return err
	}

	s.running.Add(1)
	go func() {
		defer s.running.Done()
		s.run(s.runCtx, q)
	}()

	return nil
}

// RetryFailed moves the still-retryable failed lines back to draft and runs
// the queue again. The operator touched the queue, so the attention flag is
// cleared; a further exhausted run will raise it again.
func (s *QueueServiceImpl) RetryFailed(ctx context.Context, tenantID, queueID primitive.ObjectID) (int, error) {
	q, err := s.QueueRepo.Get(ctx, tenantID, queueID)
	if err != nil {
		return 0, err
	}

	retryable, err := s.LineRepo.ListRetryableFailed(ctx, queueID, q.Config.MaxRetries)
	if err != nil {
		return 0, err
	}
	if len(retryable) == 0 {
		return 0, nil
	}

	ids := make([]primitive.ObjectID, len(retryable))
	for i, line := range retryable {
		ids[i] = line.ID
	}
	reset, err := s.LineRepo.ResetForRetry(ctx, ids)
	if err != nil {
		return 0, err
	}

	if err := s.QueueRepo.ClearActionRequired(ctx, queueID); err != nil {
		return int(reset), err
	}

	s.logActivity(ctx, q, nil, common_models.ActivityRetry, common_models.ActivityStatusStarted,
		fmt.Sprintf("Retrying %d failed lines", reset), bson.M{"reset_count": reset})

	if err := s.Start(ctx, tenantID, queueID); err != nil {
		return int(reset), err
	}
	return int(reset), nil
}

// ForceDone abandons everything still open. Draft and failed lines are
// cancelled, the queue lands in done, and the attention flag is dropped.
// Calling it on an already-done queue is a no-op.
func (s *QueueServiceImpl) ForceDone(ctx context.Context, tenantID, queueID primitive.ObjectID) (int64, error) {
	q, err := s.QueueRepo.Get(ctx, tenantID, queueID)
	if err != nil {
		return 0, err
	}
	if q.IsProcessing {
		return 0, ErrAlreadyProcessing
	}

	cancelled, err := s.LineRepo.CancelOpen(ctx, queueID)
	if err != nil {
		return 0, err
	}
	if _, err := s.QueueRepo.RefreshCounts(ctx, queueID); err != nil {
		return cancelled, err
	}
	if err := s.QueueRepo.SetState(ctx, queueID, QueueDone); err != nil {
		return cancelled, err
	}
	if err := s.QueueRepo.ClearActionRequired(ctx, queueID); err != nil {
		return cancelled, err
	}

	s.logActivity(ctx, q, nil, common_models.ActivityForceDone, common_models.ActivityStatusCompleted,
		fmt.Sprintf("Queue forced done, %d open lines cancelled", cancelled),
		bson.M{"cancelled_count": cancelled})

	return cancelled, nil
}

func (s *QueueServiceImpl) Status(ctx context.Context, tenantID, queueID primitive.ObjectID) (*QueueStatus, error) {
	q, err := s.QueueRepo.Get(ctx, tenantID, queueID)
	if err != nil {
		return nil, err
	}
	return &QueueStatus{
		Queue:           q,
		Progress:        q.Progress(),
		ProcessingCount: q.ProcessingCount(),
	}, nil
}

func (s *QueueServiceImpl) ListLines(ctx context.Context, tenantID, queueID primitive.ObjectID, state LineState, limit int64) ([]Line, error) {
	if _, err := s.QueueRepo.Get(ctx, tenantID, queueID); err != nil {
		return nil, err
	}
	return s.LineRepo.ListByQueue(ctx, queueID, state, limit)
}

// SyncFromConnector is the one-call path: fetch from the connector's source,
// build a queue, enqueue every record and start processing.
func (s *QueueServiceImpl) SyncFromConnector(ctx context.Context, tenantID, connectorID primitive.ObjectID, name string, params map[string]string) (*Queue, error) {
	setting, err := s.Sources.Get(ctx, tenantID, connectorID)
	if err != nil {
		return nil, err
	}

	source, err := s.Sources.NewSource(setting)
	if err != nil {
		return nil, err
	}

	records, err := source.Fetch(ctx, params)
	if err != nil {
		return nil, err
	}

	if name == "" {
		name = fmt.Sprintf("%s sync %s", setting.Name, time.Now().Format("2006-01-02 15:04"))
	}

	q, err := s.CreateQueue(ctx, &Queue{
		TenantID:     tenantID,
		Name:         name,
		SourceSystem: setting.SourceSystem,
		ConnectorID:  connectorID,
	})
	if err != nil {
		return nil, err
	}

	items := make([]LineInput, 0, len(records))
	for _, rec := range records {
		items = append(items, LineInput{ExternalID: rec.ExternalID, Payload: bson.M(rec.Data)})
	}
	if _, err := s.AddLines(ctx, tenantID, q.ID, items); err != nil {
		return q, err
	}

	if err := s.Start(ctx, tenantID, q.ID); err != nil {
		return q, err
	}
	return s.QueueRepo.Get(ctx, tenantID, q.ID)
}

// Cleanup deletes terminal queues past retention along with their lines.
// Activity entries are kept: the log is the audit trail.
func (s *QueueServiceImpl) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	ids, err := s.QueueRepo.ListDeletable(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	if _, err := s.LineRepo.DeleteByQueueIDs(ctx, ids); err != nil {
		return 0, err
	}
	deleted, err := s.QueueRepo.DeleteByIDs(ctx, ids)
	if err != nil {
		return deleted, err
	}

	s.Logger.Info("queue cleanup finished",
		zap.Int64("deleted", deleted),
		zap.Int("retention_days", retentionDays))

	return deleted, nil
}

// ReclaimStale rescues lines a dead worker left in processing.
func (s *QueueServiceImpl) ReclaimStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	reclaimed, err := s.LineRepo.ReclaimStale(ctx, time.Now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	if reclaimed > 0 {
		s.Logger.Warn("reclaimed stale processing lines", zap.Int64("count", reclaimed))
	}
	return reclaimed, nil
}

func (s *QueueServiceImpl) logActivity(ctx context.Context, q *Queue, lineID *primitive.ObjectID, typ common_models.ActivityType, status common_models.ActivityStatus, message string, details bson.M) {
	entry := &activity.Entry{
		TenantID: q.TenantID,
		QueueID:  q.ID,
		LineID:   lineID,
		Type:     typ,
		Status:   status,
		Message:  message,
		Details:  details,
	}
	if err := s.ActivityRepo.Append(ctx, entry); err != nil {
		s.Logger.Error("failed to append activity entry",
			zap.String("queue_id", q.ID.Hex()),
			zap.Error(err))
	}
}
