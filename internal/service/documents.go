package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/iliyamo/securevault/internal/metrics"
	"github.com/iliyamo/securevault/internal/model"
	"github.com/iliyamo/securevault/internal/queue"
	"github.com/iliyamo/securevault/internal/repository"
	"github.com/iliyamo/securevault/internal/storage"
)

const (
	// MaxUploadSize is the largest accepted file.
	MaxUploadSize = 50 << 20
	// DownloadURLTTL is how long a download link stays valid.
	DownloadURLTTL = time.Hour
	// RecentWindow bounds the "recent" statistic.
	RecentWindow = 7 * 24 * time.Hour

	defaultPageSize = 20
	maxPageSize     = 100
	maxPage         = math.MaxInt32 / maxPageSize
	dashboardRecent = 5
	publishTimeout  = 3 * time.Second
)

// AllowedMIMETypes lists the content types accepted for upload.
var AllowedMIMETypes = map[string]bool{
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"text/plain": true,
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// DocumentStore is the document metadata store.
type DocumentStore interface {
	Create(ctx context.Context, d *model.Document) error
	GetByID(ctx context.Context, id string) (*model.Document, error)
	GetByIDAndOwner(ctx context.Context, id, userID string) (*model.Document, error)
	Update(ctx context.Context, id, userID string, upd model.DocumentUpdate) (*model.Document, error)
	DeleteByIDAndOwner(ctx context.Context, id, userID string) error
	List(ctx context.Context, q repository.DocumentQuery) ([]*model.Document, int64, error)
	Recent(ctx context.Context, userID string, n int) ([]*model.Document, error)
	Stats(ctx context.Context, userID string, since time.Time) (model.DocumentStats, error)
	CategoryCounts(ctx context.Context, userID string) ([]model.CategoryCount, error)
	ListKeysByOwner(ctx context.Context, userID string) ([]string, error)
}

// BlobStore is the object store adapter.
type BlobStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) (storage.Location, error)
	Delete(ctx context.Context, key string) error
	SignedURL(ctx context.Context, key string, op storage.Op, ttl time.Duration) (string, error)
}

// Pagination describes one page of a listing.
type Pagination struct {
	CurrentPage  int   `json:"currentPage"`
	TotalPages   int   `json:"totalPages"`
	TotalItems   int64 `json:"totalItems"`
	ItemsPerPage int   `json:"itemsPerPage"`
}

func newPagination(page, limit int, total int64) Pagination {
	return Pagination{
		CurrentPage:  page,
		TotalPages:   int(math.Ceil(float64(total) / float64(limit))),
		TotalItems:   total,
		ItemsPerPage: limit,
	}
}

// normalizePage clamps page to [1, maxPage] and limit to [1, maxPageSize],
// which keeps the row offset within int32.
func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if page > maxPage {
		page = maxPage
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return page, limit
}

// DocumentList is one page of a user's documents plus their statistics.
type DocumentList struct {
	Documents  []*model.Document   `json:"documents"`
	Pagination Pagination          `json:"pagination"`
	Statistics model.DocumentStats `json:"statistics"`
}

// Dashboard aggregates what the landing page shows.
type Dashboard struct {
	Statistics      model.DocumentStats   `json:"statistics"`
	Categories      []model.CategoryCount `json:"categories"`
	RecentDocuments []*model.Document     `json:"recentDocuments"`
}

// ActivityItem is one entry of the activity feed.
type ActivityItem struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Category  string    `json:"category"`
	Timestamp time.Time `json:"timestamp"`
	Details   string    `json:"details"`
}

// Activity is one page of the activity feed.
type Activity struct {
	Activity   []ActivityItem `json:"activity"`
	Pagination Pagination     `json:"pagination"`
}

// UploadInput is a received file with its form fields.  Size and
// ContentType are the values declared by the client for the file part.
type UploadInput struct {
	UserID       string
	OriginalName string
	ContentType  string
	Size         int64
	Body         []byte
	Title        string
	Category     string
	Description  string
	Tags         []string
}

// DocumentService runs the document lifecycle across the metadata store
// and the object store.  There is no transaction spanning both.
type DocumentService struct {
	docs    DocumentStore
	blobs   BlobStore
	events  queue.Publisher
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewDocumentService wires the document flows.  events may be nil.
func NewDocumentService(docs DocumentStore, blobs BlobStore, events queue.Publisher, m *metrics.Metrics) *DocumentService {
	if events == nil {
		events = queue.NopPublisher{}
	}
	return &DocumentService{docs: docs, blobs: blobs, events: events, metrics: m, now: time.Now}
}

func validateTitle(fe fieldErrors, title string) {
	n := utf8.RuneCountInString(title)
	if n < 1 || n > 255 {
		fe.add("title", "title must be between 1 and 255 characters")
	}
}

func validateCategory(fe fieldErrors, category string) {
	if !model.ValidCategory(category) {
		fe.add("category", "category must be one of "+strings.Join(model.Categories, ", "))
	}
}

func (in *UploadInput) validate() error {
	if in.OriginalName == "" && len(in.Body) == 0 {
		return ErrNoFile
	}
	if in.Size <= 0 {
		return ErrEmptyFile
	}
	if in.Size > MaxUploadSize {
		return ErrFileTooLarge
	}
	if !AllowedMIMETypes[in.ContentType] {
		return ErrFileTypeNotAllowed
	}
	if strings.TrimSpace(in.Title) == "" {
		in.Title = in.OriginalName
	}
	if in.Category == "" {
		in.Category = model.CategoryPersonal
	}
	fe := fieldErrors{}
	validateTitle(fe, in.Title)
	validateCategory(fe, in.Category)
	return fe.err()
}

// Upload stores the blob and then its metadata.  Input is fully validated
// before anything is written.  If the metadata write fails the blob stays
// behind as an orphan; it is logged and counted, not cleaned up.
func (s *DocumentService) Upload(ctx context.Context, in UploadInput) (*model.Document, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	key := storage.NewObjectKey(in.UserID, in.OriginalName)
	loc, err := s.blobs.Put(ctx, key, in.Body, in.ContentType)
	s.metrics.RecordBlobOp("put", err)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordUpload(in.Size)

	tags := in.Tags
	if tags == nil {
		tags = []string{}
	}
	doc := &model.Document{
		UserID:       in.UserID,
		Title:        in.Title,
		FileName:     key,
		OriginalName: in.OriginalName,
		FileSize:     in.Size,
		FileType:     model.Extension(in.OriginalName),
		MimeType:     in.ContentType,
		Category:     in.Category,
		StorageKey:   loc.Key,
		Bucket:       loc.Bucket,
		Region:       loc.Region,
		Tags:         tags,
		Description:  in.Description,
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		s.metrics.RecordOrphan()
		log.Error().Err(err).
			Str("user_id", in.UserID).
			Str("orphan_key", key).
			Msg("upload: blob stored but metadata write failed")
		return nil, fmt.Errorf("%w: %w", ErrMetadataPersist, err)
	}

	s.publish(ctx, queue.NewDocumentEvent(queue.EventDocumentUploaded, doc.ID, doc.UserID, doc.StorageKey, doc.FileSize))
	return doc, nil
}

// Update edits the document's descriptive fields.
func (s *DocumentService) Update(ctx context.Context, doc *model.Document, upd model.DocumentUpdate) (*model.Document, error) {
	if upd.Empty() {
		return nil, ErrNoUpdates
	}
	fe := fieldErrors{}
	if upd.Title != nil {
		validateTitle(fe, *upd.Title)
	}
	if upd.Category != nil {
		validateCategory(fe, *upd.Category)
	}
	if err := fe.err(); err != nil {
		return nil, err
	}
	return s.docs.Update(ctx, doc.ID, doc.UserID, upd)
}

// Delete removes the blob and then the metadata row.  A blob failure does
// not stop the metadata delete; it is reported through blobDeleted.  When
// the row is already gone (a concurrent delete won) the result is
// repository.ErrDocumentNotFound.
func (s *DocumentService) Delete(ctx context.Context, doc *model.Document) (blobDeleted bool, err error) {
	blobErr := s.blobs.Delete(ctx, doc.StorageKey)
	s.metrics.RecordBlobOp("delete", blobErr)
	if blobErr != nil {
		log.Warn().Err(blobErr).
			Str("document_id", doc.ID).
			Str("key", doc.StorageKey).
			Msg("delete: blob not removed, continuing with metadata")
	}

	if err := s.docs.DeleteByIDAndOwner(ctx, doc.ID, doc.UserID); err != nil {
		return blobErr == nil, err
	}

	ev := queue.NewDocumentEvent(queue.EventDocumentDeleted, doc.ID, doc.UserID, doc.StorageKey, doc.FileSize)
	deleted := blobErr == nil
	ev.BlobDeleted = &deleted
	s.publish(ctx, ev)
	return deleted, nil
}

// DownloadURL returns a presigned GET URL valid for DownloadURLTTL.
func (s *DocumentService) DownloadURL(ctx context.Context, doc *model.Document) (string, error) {
	u, err := s.blobs.SignedURL(ctx, doc.StorageKey, storage.OpGet, DownloadURLTTL)
	s.metrics.RecordBlobOp("sign", err)
	return u, err
}

// List returns one page of the user's documents and their statistics.
func (s *DocumentService) List(ctx context.Context, q repository.DocumentQuery) (*DocumentList, error) {
	q.Page, q.Limit = normalizePage(q.Page, q.Limit)
	docs, total, err := s.docs.List(ctx, q)
	if err != nil {
		return nil, err
	}
	stats, err := s.docs.Stats(ctx, q.UserID, s.now().Add(-RecentWindow))
	if err != nil {
		return nil, err
	}
	return &DocumentList{
		Documents:  docs,
		Pagination: newPagination(q.Page, q.Limit, total),
		Statistics: stats,
	}, nil
}

// Categories returns the per-category counts of the user's documents.
func (s *DocumentService) Categories(ctx context.Context, userID string) ([]model.CategoryCount, error) {
	return s.docs.CategoryCounts(ctx, userID)
}

// Dashboard collects statistics, category counts and the newest documents.
func (s *DocumentService) Dashboard(ctx context.Context, userID string) (*Dashboard, error) {
	stats, err := s.docs.Stats(ctx, userID, s.now().Add(-RecentWindow))
	if err != nil {
		return nil, err
	}
	cats, err := s.docs.CategoryCounts(ctx, userID)
	if err != nil {
		return nil, err
	}
	recent, err := s.docs.Recent(ctx, userID, dashboardRecent)
	if err != nil {
		return nil, err
	}
	return &Dashboard{Statistics: stats, Categories: cats, RecentDocuments: recent}, nil
}

// Activity renders the user's uploads, newest first, as a feed.
func (s *DocumentService) Activity(ctx context.Context, userID string, page, limit int) (*Activity, error) {
	page, limit = normalizePage(page, limit)
	docs, total, err := s.docs.List(ctx, repository.DocumentQuery{UserID: userID, Page: page, Limit: limit})
	if err != nil {
		return nil, err
	}
	items := make([]ActivityItem, 0, len(docs))
	for _, d := range docs {
		items = append(items, ActivityItem{
			ID:        d.ID,
			Type:      "document_upload",
			Title:     d.Title,
			Category:  d.Category,
			Timestamp: d.CreatedAt,
			Details:   "Uploaded " + d.OriginalName + " (" + model.FormattedSize(d.FileSize) + ")",
		})
	}
	return &Activity{Activity: items, Pagination: newPagination(page, limit, total)}, nil
}

// publish sends ev without letting broker trouble reach the caller.
func (s *DocumentService) publish(ctx context.Context, ev queue.DocumentEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.events.Publish(ctx, ev); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		log.Debug().Err(err).Str("type", ev.Type).Msg("document event dropped")
	}
}
