package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/securevault/internal/metrics"
	"github.com/iliyamo/securevault/internal/model"
	"github.com/iliyamo/securevault/internal/queue"
	"github.com/iliyamo/securevault/internal/repository"
)

type docFixture struct {
	svc     *DocumentService
	docs    *memDocs
	blobs   *memBlobs
	events  *recordingPublisher
	metrics *metrics.Metrics
}

func newDocFixture() *docFixture {
	f := &docFixture{docs: newMemDocs(), blobs: newMemBlobs(), events: &recordingPublisher{}, metrics: metrics.New()}
	f.svc = NewDocumentService(f.docs, f.blobs, f.events, f.metrics)
	return f
}

func pdfUpload(userID string) UploadInput {
	body := []byte("%PDF-1.4 test")
	return UploadInput{
		UserID:       userID,
		OriginalName: "Report.pdf",
		ContentType:  "application/pdf",
		Size:         int64(len(body)),
		Body:         body,
		Tags:         []string{"tax"},
	}
}

func TestUpload_Success(t *testing.T) {
	f := newDocFixture()
	doc, err := f.svc.Upload(context.Background(), pdfUpload("u1"))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(doc.StorageKey, "u1/"))
	assert.Equal(t, doc.StorageKey, doc.FileName)
	assert.Equal(t, "Report.pdf", doc.Title)
	assert.Equal(t, "pdf", doc.FileType)
	assert.Equal(t, model.CategoryPersonal, doc.Category)
	assert.Equal(t, "vault", doc.Bucket)
	assert.Contains(t, f.blobs.objects, doc.StorageKey)

	stored, err := f.docs.GetByIDAndOwner(context.Background(), doc.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"tax"}, stored.Tags)

	require.Len(t, f.events.events, 1)
	assert.Equal(t, queue.EventDocumentUploaded, f.events.events[0].Type)
	assert.Equal(t, float64(len("%PDF-1.4 test")), testutil.ToFloat64(f.metrics.BytesUploaded))
}

func TestUpload_RejectsBeforeBlobWrite(t *testing.T) {
	cases := map[string]struct {
		mutate func(*UploadInput)
		want   error
	}{
		"disallowed type": {func(in *UploadInput) { in.ContentType = "application/x-msdownload" }, ErrFileTypeNotAllowed},
		"too large":       {func(in *UploadInput) { in.Size = MaxUploadSize + 1 }, ErrFileTooLarge},
		"empty":           {func(in *UploadInput) { in.Size = 0 }, ErrEmptyFile},
		"no file":         {func(in *UploadInput) { in.OriginalName, in.Body = "", nil }, ErrNoFile},
		"bad category":    {func(in *UploadInput) { in.Category = "secret" }, ErrValidation},
		"long title":      {func(in *UploadInput) { in.Title = strings.Repeat("x", 256) }, ErrValidation},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f := newDocFixture()
			in := pdfUpload("u1")
			tc.mutate(&in)

			_, err := f.svc.Upload(context.Background(), in)
			assert.ErrorIs(t, err, tc.want)
			assert.Zero(t, f.blobs.puts)
			assert.Empty(t, f.docs.byID)
		})
	}
}

func TestUpload_AtSizeLimitIsAccepted(t *testing.T) {
	f := newDocFixture()
	in := pdfUpload("u1")
	in.Size = MaxUploadSize
	_, err := f.svc.Upload(context.Background(), in)
	assert.NoError(t, err)
}

func TestUpload_BlobFailureWritesNoMetadata(t *testing.T) {
	f := newDocFixture()
	f.blobs.putErr = errBlob

	_, err := f.svc.Upload(context.Background(), pdfUpload("u1"))
	assert.ErrorIs(t, err, errBlob)
	assert.Empty(t, f.docs.byID)
	assert.Empty(t, f.events.events)
}

func TestUpload_MetadataFailureLeavesOrphan(t *testing.T) {
	f := newDocFixture()
	f.docs.createErr = errors.New("db down")

	_, err := f.svc.Upload(context.Background(), pdfUpload("u1"))
	assert.ErrorIs(t, err, ErrMetadataPersist)
	assert.Len(t, f.blobs.objects, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.OrphanedBlobs))
	assert.Empty(t, f.events.events)
}

func TestUpload_PublishFailureIsIgnored(t *testing.T) {
	f := newDocFixture()
	f.events.err = errors.New("broker down")

	_, err := f.svc.Upload(context.Background(), pdfUpload("u1"))
	assert.NoError(t, err)
}

func TestDelete_BlobFailureStillRemovesMetadata(t *testing.T) {
	f := newDocFixture()
	ctx := context.Background()
	doc, err := f.svc.Upload(ctx, pdfUpload("u1"))
	require.NoError(t, err)
	f.blobs.deleteErr[doc.StorageKey] = errBlob

	blobDeleted, err := f.svc.Delete(ctx, doc)
	require.NoError(t, err)
	assert.False(t, blobDeleted)

	_, err = f.docs.GetByID(ctx, doc.ID)
	assert.ErrorIs(t, err, repository.ErrDocumentNotFound)

	last := f.events.events[len(f.events.events)-1]
	assert.Equal(t, queue.EventDocumentDeleted, last.Type)
	require.NotNil(t, last.BlobDeleted)
	assert.False(t, *last.BlobDeleted)
}

func TestDelete_SecondDeleteIsNotFound(t *testing.T) {
	f := newDocFixture()
	ctx := context.Background()
	doc, err := f.svc.Upload(ctx, pdfUpload("u1"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Delete(ctx, doc)
		}(i)
	}
	wg.Wait()

	var ok, notFound int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, repository.ErrDocumentNotFound):
			notFound++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, notFound)
	assert.NotContains(t, f.blobs.objects, doc.StorageKey)
}

func TestUpdate(t *testing.T) {
	f := newDocFixture()
	ctx := context.Background()
	doc, _ := f.svc.Upload(ctx, pdfUpload("u1"))

	_, err := f.svc.Update(ctx, doc, model.DocumentUpdate{})
	assert.ErrorIs(t, err, ErrNoUpdates)

	bad := "secret"
	_, err = f.svc.Update(ctx, doc, model.DocumentUpdate{Category: &bad})
	assert.ErrorIs(t, err, ErrValidation)

	title, cat := "Taxes 2024", model.CategoryFinancial
	got, err := f.svc.Update(ctx, doc, model.DocumentUpdate{Title: &title, Category: &cat})
	require.NoError(t, err)
	assert.Equal(t, "Taxes 2024", got.Title)
	assert.Equal(t, model.CategoryFinancial, got.Category)
}

func TestDownloadURL(t *testing.T) {
	f := newDocFixture()
	doc, _ := f.svc.Upload(context.Background(), pdfUpload("u1"))

	u, err := f.svc.DownloadURL(context.Background(), doc)
	require.NoError(t, err)
	assert.Contains(t, u, doc.StorageKey)
	assert.Equal(t, time.Hour, f.blobs.signedTTL)
}

func seedDocs(t *testing.T, f *docFixture, userID string, n int) {
	t.Helper()
	base := time.Now().Add(-time.Hour)
	for i := 0; i < n; i++ {
		mime := "text/plain"
		if i%2 == 0 {
			mime = "application/pdf"
		}
		require.NoError(t, f.docs.Create(context.Background(), &model.Document{
			ID:           fmt.Sprintf("%s-%02d", userID, i),
			UserID:       userID,
			Title:        fmt.Sprintf("doc %d", i),
			OriginalName: fmt.Sprintf("doc%d.txt", i),
			FileSize:     1536,
			MimeType:     mime,
			Category:     model.CategoryWork,
			CreatedAt:    base.Add(time.Duration(i) * time.Second),
		}))
	}
}

func TestList_PaginatesOwnDocumentsOnly(t *testing.T) {
	f := newDocFixture()
	seedDocs(t, f, "u1", 45)
	seedDocs(t, f, "u2", 3)
	ctx := context.Background()

	seen := map[string]bool{}
	for page := 1; page <= 3; page++ {
		res, err := f.svc.List(ctx, repository.DocumentQuery{UserID: "u1", Page: page})
		require.NoError(t, err)
		assert.Equal(t, 3, res.Pagination.TotalPages)
		assert.EqualValues(t, 45, res.Pagination.TotalItems)
		for _, d := range res.Documents {
			assert.Equal(t, "u1", d.UserID)
			assert.False(t, seen[d.ID], "document %s repeated across pages", d.ID)
			seen[d.ID] = true
		}
	}
	assert.Len(t, seen, 45)

	res, err := f.svc.List(ctx, repository.DocumentQuery{UserID: "u1", Page: 1, Limit: 1000})
	require.NoError(t, err)
	assert.Equal(t, maxPageSize, res.Pagination.ItemsPerPage)
	assert.Equal(t, model.DocumentStats{TotalDocs: 45, PDFCount: 23, RecentCount: 45}, res.Statistics)
}

func TestList_HugePageIsClamped(t *testing.T) {
	f := newDocFixture()
	seedDocs(t, f, "u1", 3)

	res, err := f.svc.List(context.Background(), repository.DocumentQuery{UserID: "u1", Page: 1 << 62, Limit: maxPageSize})
	require.NoError(t, err)
	assert.Empty(t, res.Documents)
	assert.Equal(t, maxPage, res.Pagination.CurrentPage)
	assert.Equal(t, maxPage, f.docs.lastQuery.Page)
	assert.Positive(t, (f.docs.lastQuery.Page-1)*f.docs.lastQuery.Limit)

	a, err := f.svc.Activity(context.Background(), "u1", 1<<62, 20)
	require.NoError(t, err)
	assert.Empty(t, a.Activity)
	assert.Equal(t, maxPage, a.Pagination.CurrentPage)
}

func TestDashboardAndActivity(t *testing.T) {
	f := newDocFixture()
	seedDocs(t, f, "u1", 7)
	ctx := context.Background()

	d, err := f.svc.Dashboard(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, d.RecentDocuments, 5)
	assert.Equal(t, "u1-06", d.RecentDocuments[0].ID)
	assert.Equal(t, []model.CategoryCount{{Category: model.CategoryWork, Count: 7}}, d.Categories)

	a, err := f.svc.Activity(ctx, "u1", 2, 5)
	require.NoError(t, err)
	require.Len(t, a.Activity, 2)
	assert.Equal(t, "document_upload", a.Activity[0].Type)
	assert.Equal(t, "Uploaded doc1.txt (1.5 KB)", a.Activity[0].Details)
	assert.Equal(t, 2, a.Pagination.TotalPages)

	cats, err := f.svc.Categories(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, cats)
}
