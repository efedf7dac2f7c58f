package ports

import (
	"context"

	"threadlens/models"
)

// ResearchStore defines the persistence gateway. All write operations are
// idempotent upserts keyed by composite identity (source id, research id);
// on conflict only automation-owned fields are updated, never fields a human
// may have edited.
type ResearchStore interface {
	CreateResearch(ctx context.Context, id, question string, settings models.Settings) error
	GetResearch(ctx context.Context, id string) (*models.Research, error)
	GetHistory(ctx context.Context, limit int) ([]models.Research, error)

	SetStatus(ctx context.Context, id, status string) error
	UpdateStatus(ctx context.Context, id, status string, numThreads, numComments int) error
	GetSettings(ctx context.Context, id string) (models.Settings, error)
	UpdateSettings(ctx context.Context, id string, mutate func(*models.Settings)) error
	SaveSummary(ctx context.Context, id, summary string) error
	SetArchived(ctx context.Context, id string, archived bool) error
	DeleteResearch(ctx context.Context, id string) error

	SaveThreads(ctx context.Context, researchID string, threads []models.Thread) error
	GetThreads(ctx context.Context, researchID string) ([]models.Thread, error)
	ExistingThreadIDs(ctx context.Context, researchID string) (map[string]bool, error)
	DeleteThread(ctx context.Context, researchID, threadID string) error

	SaveComments(ctx context.Context, researchID string, comments []models.Comment) error
	GetComments(ctx context.Context, researchID string) ([]models.Comment, error)
	SetUserNote(ctx context.Context, researchID, commentID, note string) error

	RecalculateCounts(ctx context.Context, researchID string) error
}

// Exporter writes the durable export artifact for a research after finalize
// and after every expand/add/remove mutation.
type Exporter interface {
	Export(ctx context.Context, research *models.Research, threads []models.Thread, comments []models.Comment) (string, error)
}
