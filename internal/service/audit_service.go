package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vantage-academy/portal-api/internal/models"
	"github.com/vantage-academy/portal-api/pkg/config"
	appErrors "github.com/vantage-academy/portal-api/pkg/errors"
	"github.com/vantage-academy/portal-api/pkg/jobs"
)

type auditLogStore interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type auditLogLister interface {
	List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, int, error)
}

type auditQueueMetrics interface {
	SetAuditQueueDepth(depth int)
}

// AuditRecorder writes audit entries through a background worker queue.
// Recording is fire-and-forget: a failed write is logged and retried by the
// queue but never fails or rolls back the operation that produced it.
type AuditRecorder struct {
	queue   *jobs.Queue
	logger  *zap.Logger
	metrics auditQueueMetrics
}

// NewAuditRecorder builds a recorder backed by the given store.
func NewAuditRecorder(store auditLogStore, cfg config.AuditConfig, logger *zap.Logger, metrics auditQueueMetrics) *AuditRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = (*MetricsService)(nil)
	}

	handler := func(ctx context.Context, job jobs.Job) error {
		entry, ok := job.Payload.(*models.AuditLog)
		if !ok {
			logger.Warn("audit job with unexpected payload", zap.String("job_id", job.ID))
			return nil
		}
		return store.CreateAuditLog(ctx, entry)
	}

	queue := jobs.NewQueue("audit", handler, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.MaxRetries,
		Logger:     logger,
	})

	return &AuditRecorder{queue: queue, logger: logger, metrics: metrics}
}

// Start launches the worker pool.
func (r *AuditRecorder) Start(ctx context.Context) {
	r.queue.Start(ctx)
}

// Stop drains the worker pool.
func (r *AuditRecorder) Stop() {
	r.queue.Stop()
}

// Record enqueues an audit entry.
func (r *AuditRecorder) Record(entry *models.AuditLog) {
	if entry == nil {
		return
	}
	if err := r.queue.Enqueue(jobs.Job{ID: uuid.NewString(), Type: entry.Action, Payload: entry}); err != nil {
		r.logger.Warn("failed to enqueue audit entry", zap.String("action", entry.Action), zap.Error(err))
	}
	r.metrics.SetAuditQueueDepth(r.queue.Depth())
}

// AuditQueryService serves the admin audit log listing.
type AuditQueryService struct {
	repo auditLogLister
}

// NewAuditQueryService constructs an AuditQueryService instance.
func NewAuditQueryService(repo auditLogLister) *AuditQueryService {
	return &AuditQueryService{repo: repo}
}

// List returns audit entries matching the filter, newest first.
func (s *AuditQueryService) List(ctx context.Context, filter models.AuditFilter) (*models.AuditListResponse, error) {
	entries, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list audit logs")
	}
	if entries == nil {
		entries = []models.AuditLog{}
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	return &models.AuditListResponse{
		Entries:    entries,
		Pagination: models.Pagination{Page: page, PageSize: pageSize, TotalCount: total},
	}, nil
}
