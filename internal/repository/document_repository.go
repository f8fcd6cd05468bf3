// Package repository contains data access logic separated from HTTP handlers.
// This file holds the document metadata store.  Every read and write that
// a user can trigger is scoped by the owning user id; GetByID is the only
// unscoped lookup and is reserved for the authorization gate and the admin
// routes.
package repository

import (
	"context"      // context allows passing deadlines and cancellation signals to DB operations
	"database/sql" // sql provides generic database operations and drivers
	"encoding/json"
	"errors" // errors is used to define custom error values
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/securevault/internal/model"
)

// ErrDocumentNotFound is returned when a document cannot be found in the DB.
var ErrDocumentNotFound = errors.New("document not found")

const documentColumns = `id, user_id, title, file_name, original_name, file_size, file_type, mime_type,
	category, s3_key, s3_bucket, s3_region, is_public, tags, description, created_at, updated_at`

// DocumentQuery defines filters & pagination for listing a user's documents.
type DocumentQuery struct {
	UserID   string
	Category string
	Search   string
	Page     int
	Limit    int
}

// DocumentRepo encapsulates all database queries related to documents.
type DocumentRepo struct {
	db *sql.DB
}

// NewDocumentRepo constructs a DocumentRepo with the provided DB handle.
func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(s rowScanner) (*model.Document, error) {
	var (
		d           model.Document
		tags        sql.NullString
		description sql.NullString
	)
	if err := s.Scan(&d.ID, &d.UserID, &d.Title, &d.FileName, &d.OriginalName, &d.FileSize, &d.FileType,
		&d.MimeType, &d.Category, &d.StorageKey, &d.Bucket, &d.Region, &d.IsPublic, &tags, &description,
		&d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.Tags = []string{}
	if tags.Valid && tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &d.Tags); err != nil {
			return nil, err
		}
	}
	d.Description = description.String
	return &d, nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	return string(b), err
}

// Create inserts a new document.  ID and timestamps are filled in when
// empty.  A duplicate storage key is reported as ErrConflict.
func (r *DocumentRepo) Create(ctx context.Context, d *model.Document) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	}
	d.UpdatedAt = d.CreatedAt
	if d.Category == "" {
		d.Category = model.CategoryPersonal
	}
	if d.Tags == nil {
		d.Tags = []string{}
	}
	tags, err := encodeTags(d.Tags)
	if err != nil {
		return err
	}
	const q = `INSERT INTO documents (` + documentColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, q,
		d.ID, d.UserID, d.Title, d.FileName, d.OriginalName, d.FileSize, d.FileType, d.MimeType,
		d.Category, d.StorageKey, d.Bucket, d.Region, d.IsPublic, tags, d.Description, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

// GetByID fetches a document by its ID regardless of owner.
func (r *DocumentRepo) GetByID(ctx context.Context, id string) (*model.Document, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+documentColumns+" FROM documents WHERE id = ?", id)
	d, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDocumentNotFound
		}
		return nil, err
	}
	return d, nil
}

// GetByIDAndOwner fetches a document by id but only if it belongs to the
// specified user.
func (r *DocumentRepo) GetByIDAndOwner(ctx context.Context, id, userID string) (*model.Document, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE id = ? AND user_id = ?", id, userID)
	d, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDocumentNotFound
		}
		return nil, err
	}
	return d, nil
}

// Update applies the set fields of upd to the document if it belongs to
// userID and returns the stored record afterwards.
func (r *DocumentRepo) Update(ctx context.Context, id, userID string, upd model.DocumentUpdate) (*model.Document, error) {
	sets := []string{}
	args := []any{}
	if upd.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *upd.Title)
	}
	if upd.Category != nil {
		sets = append(sets, "category = ?")
		args = append(args, *upd.Category)
	}
	if upd.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *upd.Description)
	}
	if upd.Tags != nil {
		tags, err := encodeTags(*upd.Tags)
		if err != nil {
			return nil, err
		}
		sets = append(sets, "tags = ?")
		args = append(args, tags)
	}
	if len(sets) > 0 {
		sets = append(sets, "updated_at = ?")
		args = append(args, time.Now().UTC().Truncate(time.Microsecond), id, userID)
		q := "UPDATE documents SET " + strings.Join(sets, ", ") + " WHERE id = ? AND user_id = ?"
		if _, err := r.db.ExecContext(ctx, q, args...); err != nil {
			return nil, err
		}
	}
	return r.GetByIDAndOwner(ctx, id, userID)
}

// DeleteByIDAndOwner removes the metadata row.  ErrDocumentNotFound is
// returned when no row was deleted, which is what a second concurrent
// delete of the same document observes.
func (r *DocumentRepo) DeleteByIDAndOwner(ctx context.Context, id, userID string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

// List returns one page of the user's documents, newest first, and the
// total number of matches.  The id tiebreaker keeps pages disjoint when
// several documents share a timestamp.
func (r *DocumentRepo) List(ctx context.Context, q DocumentQuery) ([]*model.Document, int64, error) {
	where := []string{"user_id = ?"}
	args := []any{q.UserID}

	if q.Category != "" && q.Category != "all" {
		where = append(where, "category = ?")
		args = append(args, q.Category)
	}
	if q.Search != "" {
		like := "%" + escapeLike(q.Search) + "%"
		where = append(where, "(title LIKE ? OR original_name LIKE ? OR description LIKE ?)")
		args = append(args, like, like, like)
	}
	cond := strings.Join(where, " AND ")

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := q.Limit
	if limit < 1 {
		limit = 20
	}
	page := q.Page
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * limit

	dataSQL := "SELECT " + documentColumns + " FROM documents WHERE " + cond +
		" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	argsData := append(append([]any{}, args...), limit, offset)

	out, err := r.queryDocuments(ctx, dataSQL, argsData...)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// Recent returns the user's n newest documents.
func (r *DocumentRepo) Recent(ctx context.Context, userID string, n int) ([]*model.Document, error) {
	return r.queryDocuments(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?",
		userID, n)
}

func (r *DocumentRepo) queryDocuments(ctx context.Context, q string, args ...any) ([]*model.Document, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*model.Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Stats counts the user's documents: all of them, PDFs, and those created
// after since.
func (r *DocumentRepo) Stats(ctx context.Context, userID string, since time.Time) (model.DocumentStats, error) {
	const q = `SELECT COUNT(*),
		COALESCE(SUM(mime_type = 'application/pdf'), 0),
		COALESCE(SUM(created_at > ?), 0)
		FROM documents WHERE user_id = ?`
	var s model.DocumentStats
	err := r.db.QueryRowContext(ctx, q, since.UTC(), userID).Scan(&s.TotalDocs, &s.PDFCount, &s.RecentCount)
	return s, err
}

// CategoryCounts groups the user's documents by category, largest first.
func (r *DocumentRepo) CategoryCounts(ctx context.Context, userID string) ([]model.CategoryCount, error) {
	const q = `SELECT category, COUNT(id) AS cnt FROM documents
		WHERE user_id = ? GROUP BY category ORDER BY cnt DESC, category ASC`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.CategoryCount{}
	for rows.Next() {
		var c model.CategoryCount
		if err := rows.Scan(&c.Category, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListKeysByOwner returns the storage keys of every document the user owns.
func (r *DocumentRepo) ListKeysByOwner(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT s3_key FROM documents WHERE user_id = ?", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// escapeLike neutralises LIKE wildcards so that search is a plain substring match.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
