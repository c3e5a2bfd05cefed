package connector

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type ConnectorService struct {
	repo   SettingRepository
	logger *zap.Logger
}

func NewConnectorService(repo SettingRepository, logger *zap.Logger) *ConnectorService {
	return &ConnectorService{repo: repo, logger: logger}
}

func (s *ConnectorService) Create(ctx context.Context, setting *Setting) (*Setting, error) {
	if setting.Name == "" {
		return nil, errors.New("connector name is required")
	}
	return s.repo.Create(ctx, setting)
}

func (s *ConnectorService) Get(ctx context.Context, tenantID, id primitive.ObjectID) (*Setting, error) {
	return s.repo.GetByID(ctx, tenantID, id)
}

func (s *ConnectorService) List(ctx context.Context, tenantID primitive.ObjectID) ([]Setting, error) {
	return s.repo.List(ctx, tenantID)
}

func (s *ConnectorService) Update(ctx context.Context, tenantID, id primitive.ObjectID, update bson.M) (*Setting, error) {
	return s.repo.Update(ctx, tenantID, id, update)
}

func (s *ConnectorService) Delete(ctx context.Context, tenantID, id primitive.ObjectID) error {
	return s.repo.Delete(ctx, tenantID, id)
}

// NewWriter builds the target-side adapter for a connector setting.
func (s *ConnectorService) NewWriter(setting *Setting) (Writer, error) {
	return NewPostgresWriter(setting, s.logger)
}

// Resolve loads a connector setting and builds its writer in one step. The
// queue processor uses this to get the landing adapter for a run.
func (s *ConnectorService) Resolve(ctx context.Context, tenantID, id primitive.ObjectID) (Writer, error) {
	setting, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if !setting.IsActive {
		return nil, errors.New("connector is not active")
	}
	return s.NewWriter(setting)
}

// NewSource builds the source-side adapter for a connector setting.
func (s *ConnectorService) NewSource(setting *Setting) (Source, error) {
	if setting.SourceURL == "" {
		return nil, errors.New("connector setting has no source URL")
	}
	return NewRESTSource(setting), nil
}

// Test probes both sides of a connector: the source endpoint and the target
// database connection.
func (s *ConnectorService) Test(ctx context.Context, tenantID, id primitive.ObjectID) (map[string]bool, error) {
	setting, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	result := map[string]bool{"source": false, "target": false}

	if src, err := s.NewSource(setting); err == nil {
		result["source"] = src.TestConnection(ctx)
	}

	if w, err := NewPostgresWriter(setting, s.logger); err == nil {
		result["target"] = w.db.PingContext(ctx) == nil
		w.Close()
	}

	s.logger.Info("connector test",
		zap.String("connector_id", id.Hex()),
		zap.Bool("source_ok", result["source"]),
		zap.Bool("target_ok", result["target"]))

	return result, nil
}
