package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/securevault/internal/model"
	"github.com/iliyamo/securevault/internal/queue"
	"github.com/iliyamo/securevault/internal/repository"
	"github.com/iliyamo/securevault/internal/storage"
	"github.com/iliyamo/securevault/internal/utils"
)

type memUsers struct {
	mu    sync.Mutex
	byID  map[string]*model.User
	touch int
}

func newMemUsers() *memUsers { return &memUsers{byID: map[string]*model.User{}} }

func (m *memUsers) Create(_ context.Context, name, email, password string, cost int) (*model.User, error) {
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == strings.TrimSpace(email) {
			return nil, repository.ErrEmailExists
		}
	}
	u := &model.User{ID: uuid.NewString(), Name: strings.TrimSpace(name), Email: strings.TrimSpace(email),
		PasswordHash: hash, Role: model.RoleUser, IsActive: true}
	m.byID[u.ID] = u
	cp := *u
	return &cp, nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (m *memUsers) GetByID(_ context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) EmailTaken(_ context.Context, email, exceptID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == email && u.ID != exceptID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memUsers) UpdateProfile(_ context.Context, id string, name, email *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	if name != nil {
		u.Name = *name
	}
	if email != nil {
		u.Email = *email
	}
	return nil
}

func (m *memUsers) UpdatePassword(_ context.Context, id, password string, cost int) error {
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (m *memUsers) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touch++
	if u, ok := m.byID[id]; ok {
		u.LastLogin = &at
	}
	return nil
}

func (m *memUsers) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return repository.ErrUserNotFound
	}
	delete(m.byID, id)
	return nil
}

type memDocs struct {
	mu        sync.Mutex
	byID      map[string]*model.Document
	createErr error
	lastQuery repository.DocumentQuery
}

func newMemDocs() *memDocs { return &memDocs{byID: map[string]*model.Document{}} }

func (m *memDocs) Create(_ context.Context, d *model.Document) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	cp := *d
	m.byID[d.ID] = &cp
	return nil
}

func (m *memDocs) GetByID(_ context.Context, id string) (*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.byID[id]
	if !ok {
		return nil, repository.ErrDocumentNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *memDocs) GetByIDAndOwner(ctx context.Context, id, userID string) (*model.Document, error) {
	d, err := m.GetByID(ctx, id)
	if err != nil || d.UserID != userID {
		return nil, repository.ErrDocumentNotFound
	}
	return d, nil
}

func (m *memDocs) Update(ctx context.Context, id, userID string, upd model.DocumentUpdate) (*model.Document, error) {
	m.mu.Lock()
	d, ok := m.byID[id]
	if ok && d.UserID == userID {
		if upd.Title != nil {
			d.Title = *upd.Title
		}
		if upd.Category != nil {
			d.Category = *upd.Category
		}
		if upd.Description != nil {
			d.Description = *upd.Description
		}
		if upd.Tags != nil {
			d.Tags = append([]string(nil), (*upd.Tags)...)
		}
	}
	m.mu.Unlock()
	return m.GetByIDAndOwner(ctx, id, userID)
}

func (m *memDocs) DeleteByIDAndOwner(_ context.Context, id, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.byID[id]
	if !ok || d.UserID != userID {
		return repository.ErrDocumentNotFound
	}
	delete(m.byID, id)
	return nil
}

func (m *memDocs) owned(userID string) []*model.Document {
	out := []*model.Document{}
	for _, d := range m.byID {
		if d.UserID == userID {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (m *memDocs) List(_ context.Context, q repository.DocumentQuery) ([]*model.Document, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastQuery = q
	var match []*model.Document
	for _, d := range m.owned(q.UserID) {
		if q.Category != "" && q.Category != "all" && d.Category != q.Category {
			continue
		}
		if q.Search != "" && !strings.Contains(d.Title+d.OriginalName+d.Description, q.Search) {
			continue
		}
		match = append(match, d)
	}
	start := (q.Page - 1) * q.Limit
	if start > len(match) {
		start = len(match)
	}
	end := start + q.Limit
	if end > len(match) {
		end = len(match)
	}
	return match[start:end], int64(len(match)), nil
}

func (m *memDocs) Recent(_ context.Context, userID string, n int) ([]*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.owned(userID)
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (m *memDocs) Stats(_ context.Context, userID string, since time.Time) (model.DocumentStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var s model.DocumentStats
	for _, d := range m.owned(userID) {
		s.TotalDocs++
		if d.MimeType == "application/pdf" {
			s.PDFCount++
		}
		if d.CreatedAt.After(since) {
			s.RecentCount++
		}
	}
	return s, nil
}

func (m *memDocs) CategoryCounts(_ context.Context, userID string) ([]model.CategoryCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[string]int64{}
	for _, d := range m.owned(userID) {
		counts[d.Category]++
	}
	out := []model.CategoryCount{}
	for c, n := range counts {
		out = append(out, model.CategoryCount{Category: c, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count == out[j].Count {
			return out[i].Category < out[j].Category
		}
		return out[i].Count > out[j].Count
	})
	return out, nil
}

func (m *memDocs) ListKeysByOwner(_ context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for _, d := range m.owned(userID) {
		keys = append(keys, d.StorageKey)
	}
	return keys, nil
}

var errBlob = errors.New("s3 unreachable")

type memBlobs struct {
	mu        sync.Mutex
	objects   map[string][]byte
	puts      int
	putErr    error
	deleteErr map[string]error
	signedTTL time.Duration
}

func newMemBlobs() *memBlobs {
	return &memBlobs{objects: map[string][]byte{}, deleteErr: map[string]error{}}
}

func (m *memBlobs) Put(_ context.Context, key string, body []byte, _ string) (storage.Location, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	if m.putErr != nil {
		return storage.Location{}, m.putErr
	}
	m.objects[key] = body
	return storage.Location{Bucket: "vault", Region: "us-east-1", Key: key}, nil
}

func (m *memBlobs) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.deleteErr[key]; err != nil {
		return err
	}
	delete(m.objects, key)
	return nil
}

func (m *memBlobs) SignedURL(_ context.Context, key string, op storage.Op, ttl time.Duration) (string, error) {
	m.signedTTL = ttl
	return "https://signed/" + string(op) + "/" + key, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.DocumentEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev queue.DocumentEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}
