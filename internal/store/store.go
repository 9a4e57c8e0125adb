package store

import (
	"context"
	"errors"

	"github.com/AngelCh415/spend-dashboard/internal/models"
)

var ErrNotFound = errors.New("not found")

// InsertResult reports a best-effort batch insert. Individual failures do not
// abort the batch.
type InsertResult struct {
	InsertedCount int      `json:"inserted_count"`
	Errors        []string `json:"errors,omitempty"`
}

type SpendStore interface {
	// ListSpend returns the user's records dated within r. Zero bounds are open.
	ListSpend(ctx context.Context, userID string, r models.DateRange) ([]models.SpendRecord, error)
	InsertSpend(ctx context.Context, records []models.SpendRecord) InsertResult
	ListUploadSpend(ctx context.Context, userID, uploadID string) ([]models.SpendRecord, error)
}

type UploadStore interface {
	CreateUpload(ctx context.Context, u models.Upload) error
	GetUpload(ctx context.Context, userID, uploadID string) (models.Upload, error)
	// ListUploads returns the newest uploads first.
	ListUploads(ctx context.Context, userID string, limit, offset int) ([]models.Upload, error)
	CountUploads(ctx context.Context, userID string) (int, error)
}

// Store is the full persistence surface used by the server.
type Store interface {
	SpendStore
	UploadStore
	Ping(ctx context.Context) error
	Close() error
}

func validateRecord(r models.SpendRecord) error {
	switch {
	case r.UserID == "":
		return errors.New("missing user id")
	case r.CampaignName == "":
		return errors.New("missing campaign name")
	case r.Amount.IsNegative():
		return errors.New("negative amount")
	case r.Date.IsZero():
		return errors.New("missing date")
	}
	return nil
}
