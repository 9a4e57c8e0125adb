package ingest

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/AngelCh415/spend-dashboard/internal/apperr"
	"github.com/AngelCh415/spend-dashboard/internal/models"
	"github.com/AngelCh415/spend-dashboard/internal/store"
)

const PDFContentType = "application/pdf"

type FileHeader struct {
	Name        string
	Size        int64
	ContentType string
}

type UploadResult struct {
	UploadID       string   `json:"upload_id"`
	CampaignsFound int      `json:"campaigns_found"`
	TotalAmount    float64  `json:"total_amount"`
	InsertedCount  int      `json:"inserted_count"`
	InsertErrors   []string `json:"insert_errors,omitempty"`
}

// ParseObserver is notified of every parsed upload.
type ParseObserver interface {
	RecordsParsed(n int)
}

type Uploader struct {
	uploads  store.UploadStore
	spend    store.SpendStore
	extract  TextExtractor
	log      *slog.Logger
	maxBytes int64
	obs      ParseObserver
	now      func() time.Time
	newID    func() string
}

func NewUploader(uploads store.UploadStore, spend store.SpendStore, extract TextExtractor, log *slog.Logger, maxBytes int64) *Uploader {
	return &Uploader{
		uploads:  uploads,
		spend:    spend,
		extract:  extract,
		log:      log,
		maxBytes: maxBytes,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

func (u *Uploader) WithObserver(o ParseObserver) *Uploader {
	u.obs = o
	return u
}

// Validate rejects anything that is not a PDF within the size limit.
func (u *Uploader) Validate(fh FileHeader, data []byte) error {
	if len(data) == 0 {
		return apperr.Validation("No file uploaded")
	}
	if fh.Size > u.maxBytes || int64(len(data)) > u.maxBytes {
		e := apperr.Validationf("File exceeds the %d MB limit", u.maxBytes>>20)
		e.TooLarge = true
		return e
	}
	if fh.ContentType != PDFContentType || http.DetectContentType(data) != PDFContentType {
		return apperr.Validation("Only PDF files allowed")
	}
	return nil
}

// Upload validates, extracts, parses, and stores a spend report. Spend insert
// failures are reported in the result and do not fail the upload.
func (u *Uploader) Upload(ctx context.Context, userID string, fh FileHeader, data []byte) (UploadResult, error) {
	if err := u.Validate(fh, data); err != nil {
		return UploadResult{}, err
	}
	text, err := u.extract.ExtractText(ctx, data)
	if err != nil {
		u.log.Info("pdf unreadable", slog.String("user", userID), slog.String("file", fh.Name), slog.String("err", err.Error()))
		return UploadResult{}, apperr.Validation("Could not read text from PDF")
	}

	rep := ParseSpend(text)
	u.log.Debug("spend parsed", slog.String("file", fh.Name), slog.Int("records", rep.TotalCampaigns), slog.Int("text_bytes", len(text)))
	if u.obs != nil {
		u.obs.RecordsParsed(rep.TotalCampaigns)
	}

	up := models.Upload{
		ID:             u.newID(),
		UserID:         userID,
		Filename:       fh.Name,
		FileSize:       int64(len(data)),
		Status:         models.UploadStatusCompleted,
		TotalCampaigns: rep.TotalCampaigns,
		TotalAmount:    rep.TotalAmount,
		CreatedAt:      u.now().UTC(),
	}
	if err := u.uploads.CreateUpload(ctx, up); err != nil {
		return UploadResult{}, apperr.Internal("Failed to save upload record", err)
	}

	res := UploadResult{
		UploadID:       up.ID,
		CampaignsFound: rep.TotalCampaigns,
		TotalAmount:    rep.TotalAmount.Round(2).InexactFloat64(),
	}
	if len(rep.Records) == 0 {
		return res, nil
	}

	records := make([]models.SpendRecord, len(rep.Records))
	for i, r := range rep.Records {
		r.UserID = userID
		r.UploadID = up.ID
		records[i] = r
	}
	ins := u.spend.InsertSpend(ctx, records)
	res.InsertedCount = ins.InsertedCount
	res.InsertErrors = ins.Errors
	if len(ins.Errors) > 0 {
		u.log.Warn("spend insert partial failure",
			slog.String("upload", up.ID), slog.Int("inserted", ins.InsertedCount), slog.Int("failed", len(ins.Errors)))
	}
	return res, nil
}

// UploadDetail is an upload plus the spend records it produced.
type UploadDetail struct {
	Upload    models.Upload        `json:"upload"`
	Campaigns []models.SpendRecord `json:"campaigns"`
}

func (u *Uploader) Detail(ctx context.Context, userID, uploadID string) (UploadDetail, error) {
	up, err := u.uploads.GetUpload(ctx, userID, uploadID)
	if errors.Is(err, store.ErrNotFound) {
		return UploadDetail{}, apperr.NotFound("Upload not found")
	}
	if err != nil {
		return UploadDetail{}, apperr.Internal("Failed to fetch upload", err)
	}
	recs, err := u.spend.ListUploadSpend(ctx, userID, uploadID)
	if err != nil {
		// la cabecera sigue siendo útil sin el detalle
		u.log.Warn("upload spend unavailable", slog.String("upload", uploadID), slog.String("err", err.Error()))
	}
	if recs == nil {
		recs = []models.SpendRecord{}
	}
	return UploadDetail{Upload: up, Campaigns: recs}, nil
}

func (u *Uploader) History(ctx context.Context, userID string, limit, offset int) ([]models.Upload, error) {
	limit, offset = clampLimitOffset(limit, offset)
	ups, err := u.uploads.ListUploads(ctx, userID, limit, offset)
	if err != nil {
		return nil, apperr.Internal("Failed to fetch upload history", err)
	}
	return ups, nil
}

func clampLimitOffset(limit, offset int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	} // tope sano
	return limit, offset
}
