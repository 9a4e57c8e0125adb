package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/AngelCh415/spend-dashboard/internal/models"
)

// SQLiteStore persists uploads and spend records. Amounts are stored as decimal
// strings so totals are summed without float rounding.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS pdf_uploads (
	id              TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL,
	filename        TEXT NOT NULL,
	file_size       INTEGER NOT NULL,
	status          TEXT NOT NULL,
	total_campaigns INTEGER NOT NULL,
	total_amount    TEXT NOT NULL,
	created_at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_uploads_user ON pdf_uploads(user_id, created_at);

CREATE TABLE IF NOT EXISTS campaigns_spend (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id       TEXT NOT NULL,
	upload_id     TEXT NOT NULL,
	campaign_name TEXT NOT NULL,
	spend_amount  TEXT NOT NULL,
	currency      TEXT NOT NULL,
	date          TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_spend_user_date ON campaigns_spend(user_id, date);
CREATE INDEX IF NOT EXISTS idx_spend_upload ON campaigns_spend(upload_id);
`

// OpenSQLite opens (or creates) the database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *SQLiteStore) Close() error                   { return s.db.Close() }

func (s *SQLiteStore) InsertSpend(ctx context.Context, records []models.SpendRecord) InsertResult {
	var res InsertResult
	if len(records) == 0 {
		return res
	}
	stmt, err := s.db.PrepareContext(ctx, `INSERT INTO campaigns_spend
		(user_id, upload_id, campaign_name, spend_amount, currency, date) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("prepare insert: %v", err))
		return res
	}
	defer stmt.Close()

	for i, r := range records {
		if err := validateRecord(r); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("record %d: %v", i, err))
			continue
		}
		_, err := stmt.ExecContext(ctx, r.UserID, r.UploadID, r.CampaignName, r.Amount.String(), r.Currency, r.Date.Format(models.DateLayout))
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("record %d: %v", i, err))
			continue
		}
		res.InsertedCount++
	}
	return res
}

func (s *SQLiteStore) ListSpend(ctx context.Context, userID string, r models.DateRange) ([]models.SpendRecord, error) {
	q := `SELECT user_id, upload_id, campaign_name, spend_amount, currency, date FROM campaigns_spend WHERE user_id = ?`
	args := []any{userID}
	if !r.Start.IsZero() {
		q += ` AND date >= ?`
		args = append(args, r.StartString())
	}
	if !r.End.IsZero() {
		q += ` AND date <= ?`
		args = append(args, r.EndString())
	}
	q += ` ORDER BY date, id`
	return s.querySpend(ctx, q, args...)
}

func (s *SQLiteStore) ListUploadSpend(ctx context.Context, userID, uploadID string) ([]models.SpendRecord, error) {
	return s.querySpend(ctx, `SELECT user_id, upload_id, campaign_name, spend_amount, currency, date
		FROM campaigns_spend WHERE user_id = ? AND upload_id = ? ORDER BY date DESC, id`, userID, uploadID)
}

func (s *SQLiteStore) querySpend(ctx context.Context, q string, args ...any) ([]models.SpendRecord, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query spend: %w", err)
	}
	defer rows.Close()

	var out []models.SpendRecord
	for rows.Next() {
		var rec models.SpendRecord
		var amount, date string
		if err := rows.Scan(&rec.UserID, &rec.UploadID, &rec.CampaignName, &amount, &rec.Currency, &date); err != nil {
			return nil, fmt.Errorf("scan spend: %w", err)
		}
		if rec.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("spend amount %q: %w", amount, err)
		}
		if rec.Date, err = time.Parse(models.DateLayout, date); err != nil {
			return nil, fmt.Errorf("spend date %q: %w", date, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CreateUpload(ctx context.Context, u models.Upload) error {
	if u.ID == "" || u.UserID == "" {
		return fmt.Errorf("upload id and user id are required")
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO pdf_uploads
		(id, user_id, filename, file_size, status, total_campaigns, total_amount, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.UserID, u.Filename, u.FileSize, u.Status, u.TotalCampaigns, u.TotalAmount.String(),
		u.CreatedAt.UTC().Format(createdLayout))
	if err != nil {
		return fmt.Errorf("insert upload: %w", err)
	}
	return nil
}

// createdLayout is fixed width so created_at sorts as text.
const createdLayout = "2006-01-02T15:04:05.000000000Z07:00"

const uploadColumns = `id, user_id, filename, file_size, status, total_campaigns, total_amount, created_at`

func (s *SQLiteStore) GetUpload(ctx context.Context, userID, uploadID string) (models.Upload, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+uploadColumns+` FROM pdf_uploads WHERE id = ? AND user_id = ?`, uploadID, userID)
	u, err := scanUpload(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Upload{}, ErrNotFound
	}
	return u, err
}

func (s *SQLiteStore) ListUploads(ctx context.Context, userID string, limit, offset int) ([]models.Upload, error) {
	if limit <= 0 {
		limit = -1
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+uploadColumns+` FROM pdf_uploads
		WHERE user_id = ? ORDER BY created_at DESC, id LIMIT ? OFFSET ?`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query uploads: %w", err)
	}
	defer rows.Close()

	out := []models.Upload{}
	for rows.Next() {
		u, err := scanUpload(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CountUploads(ctx context.Context, userID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pdf_uploads WHERE user_id = ?`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count uploads: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUpload(sc scanner) (models.Upload, error) {
	var u models.Upload
	var amount, created string
	if err := sc.Scan(&u.ID, &u.UserID, &u.Filename, &u.FileSize, &u.Status, &u.TotalCampaigns, &amount, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return u, err
		}
		return u, fmt.Errorf("scan upload: %w", err)
	}
	var err error
	if u.TotalAmount, err = decimal.NewFromString(amount); err != nil {
		return u, fmt.Errorf("upload total %q: %w", amount, err)
	}
	if u.CreatedAt, err = time.Parse(createdLayout, created); err != nil {
		// filas antiguas en RFC3339Nano
		if u.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return u, fmt.Errorf("upload created_at %q: %w", created, err)
		}
	}
	return u, nil
}
