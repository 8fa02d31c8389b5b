package handler

import (
	"context"
	"log/slog"

	"github.com/alexandre-riera/somafi-ingest/internal/batch"
	"github.com/alexandre-riera/somafi-ingest/internal/dedupe"
	"github.com/alexandre-riera/somafi-ingest/internal/domain"
	"github.com/alexandre-riera/somafi-ingest/internal/queue"
)

// JobService is the queue surface the HTTP handlers drive.
type JobService interface {
	GetByID(ctx context.Context, jobID int64) (*domain.Job, error)
	ReEnqueue(ctx context.Context, jobID int64) error
	ResetStuck(ctx context.Context, thresholdMinutes int) (int64, error)
	Purge(ctx context.Context, status string, retentionDays int) (int64, error)
	GlobalStats(ctx context.Context) (map[string]queue.StatusCounts, error)
	StatsByType(ctx context.Context, jobType string) (queue.StatusCounts, error)
	StatsByAgency(ctx context.Context) (map[string]queue.StatusCounts, error)
	RecentFailures(ctx context.Context, limit int) ([]domain.Job, error)
}

// Deduper partitions incoming equipment rows against existing ones.
type Deduper interface {
	CheckDuplicates(ctx context.Context, agencyCode string, idContact int, annee string, rows []domain.EquipmentRecord) (dedupe.Partition, error)
}

// Importer performs the transactional bulk insert and equipment maintenance.
type Importer interface {
	InsertBatch(ctx context.Context, agencyCode string, rows []domain.EquipmentRecord) (batch.Result, error)
	CountByContact(ctx context.Context, agencyCode string, idContact int) (int, error)
	Archive(ctx context.Context, agencyCode string, equipmentID int64) error
}

// EventPublisher forwards upstream form events to the message broker.
type EventPublisher interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger    *slog.Logger
	Jobs      JobService
	Deduper   Deduper
	Importer  Importer
	Publisher EventPublisher

	// DBHealth is probed by the health endpoint when set.
	DBHealth func(ctx context.Context) error
}

// Handler serves the ingestion API endpoints
type Handler struct {
	logger    *slog.Logger
	jobs      JobService
	deduper   Deduper
	importer  Importer
	publisher EventPublisher
}

// New creates a Handler instance
func New(deps *Dependencies) *Handler {
	return &Handler{
		logger:    deps.Logger,
		jobs:      deps.Jobs,
		deduper:   deps.Deduper,
		importer:  deps.Importer,
		publisher: deps.Publisher,
	}
}
