package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/AngelCh415/spend-dashboard/internal/models"
)

type MemoryStore struct {
	mu      sync.RWMutex
	spend   map[string][]models.SpendRecord // por usuario
	uploads map[string]models.Upload        // por upload id
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		spend:   make(map[string][]models.SpendRecord),
		uploads: make(map[string]models.Upload),
	}
}

func (s *MemoryStore) InsertSpend(_ context.Context, records []models.SpendRecord) InsertResult {
	var res InsertResult
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range records {
		if err := validateRecord(r); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("record %d: %v", i, err))
			continue
		}
		r.Date = models.Day(r.Date)
		s.spend[r.UserID] = append(s.spend[r.UserID], r)
		res.InsertedCount++
	}
	return res
}

func (s *MemoryStore) ListSpend(_ context.Context, userID string, r models.DateRange) ([]models.SpendRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.SpendRecord
	for _, rec := range s.spend[userID] {
		if r.Contains(rec.Date) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListUploadSpend(_ context.Context, userID, uploadID string) ([]models.SpendRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.SpendRecord
	for _, rec := range s.spend[userID] {
		if rec.UploadID == uploadID {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

func (s *MemoryStore) CreateUpload(_ context.Context, u models.Upload) error {
	if u.ID == "" || u.UserID == "" {
		return fmt.Errorf("upload id and user id are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.uploads[u.ID]; ok {
		return fmt.Errorf("upload %s already exists", u.ID)
	}
	s.uploads[u.ID] = u
	return nil
}

func (s *MemoryStore) GetUpload(_ context.Context, userID, uploadID string) (models.Upload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.uploads[uploadID]
	if !ok || u.UserID != userID {
		return models.Upload{}, ErrNotFound
	}
	return u, nil
}

func (s *MemoryStore) ListUploads(_ context.Context, userID string, limit, offset int) ([]models.Upload, error) {
	s.mu.RLock()
	var all []models.Upload
	for _, u := range s.uploads {
		if u.UserID == userID {
			all = append(all, u)
		}
	}
	s.mu.RUnlock()

	// orden determinista
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})
	return paginate(all, limit, offset), nil
}

func (s *MemoryStore) CountUploads(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, u := range s.uploads {
		if u.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }
func (s *MemoryStore) Close() error                { return nil }

func paginate[T any](rows []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(rows) {
		return []T{}
	}
	end := len(rows)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return rows[offset:end]
}
