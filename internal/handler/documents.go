package handler

import (
    "context"
    "encoding/json"
    "errors"
    "io"
    "net/http"
    "strconv"
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/securevault/internal/middleware"
    "github.com/iliyamo/securevault/internal/model"
    "github.com/iliyamo/securevault/internal/repository"
    "github.com/iliyamo/securevault/internal/service"
)

// Documents is the document service as seen by the handlers.
type Documents interface {
    Upload(ctx context.Context, in service.UploadInput) (*model.Document, error)
    Update(ctx context.Context, doc *model.Document, upd model.DocumentUpdate) (*model.Document, error)
    Delete(ctx context.Context, doc *model.Document) (bool, error)
    DownloadURL(ctx context.Context, doc *model.Document) (string, error)
    List(ctx context.Context, q repository.DocumentQuery) (*service.DocumentList, error)
    Categories(ctx context.Context, userID string) ([]model.CategoryCount, error)
}

// DocumentHandler serves /api/documents.  Routes with an :id run behind
// middleware.AuthorizeDocument (or LoadDocument on the admin path), so the
// document is already loaded and checked when a handler runs.
type DocumentHandler struct {
    errorResponder
    Documents Documents
}

func NewDocumentHandler(dev bool, docs Documents) *DocumentHandler {
    return &DocumentHandler{errorResponder: errorResponder{Dev: dev}, Documents: docs}
}

// queryInt reads a positive integer query parameter, def when absent or invalid.
func queryInt(c echo.Context, name string, def int) int {
    n, err := strconv.Atoi(c.QueryParam(name))
    if err != nil || n < 1 {
        return def
    }
    return n
}

// parseTags accepts a JSON array of strings, or a string holding one (the
// form multipart clients send).
func parseTags(raw []byte) ([]string, error) {
    var tags []string
    if err := json.Unmarshal(raw, &tags); err == nil {
        return tags, nil
    }
    var s string
    if err := json.Unmarshal(raw, &s); err != nil {
        return nil, err
    }
    if strings.TrimSpace(s) == "" {
        return []string{}, nil
    }
    if err := json.Unmarshal([]byte(s), &tags); err != nil {
        return nil, err
    }
    return tags, nil
}

var errBadTags = &service.ValidationError{
    Message: "Validation error",
    Details: map[string]string{"tags": "tags must be a JSON array of strings"},
}

// Upload accepts a multipart form with a "file" part and optional title,
// category, description and tags fields.
func (h *DocumentHandler) Upload(c echo.Context) error {
    fh, err := c.FormFile("file")
    if err != nil {
        if errors.Is(err, http.ErrMissingFile) {
            return h.fail(c, service.ErrNoFile, "")
        }
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid multipart body"})
    }

    in := service.UploadInput{
        UserID:       middleware.UserID(c),
        OriginalName: fh.Filename,
        ContentType:  fh.Header.Get("Content-Type"),
        Size:         fh.Size,
        Title:        c.FormValue("title"),
        Category:     c.FormValue("category"),
        Description:  c.FormValue("description"),
    }
    if raw := c.FormValue("tags"); raw != "" {
        var tags []string
        if err := json.Unmarshal([]byte(raw), &tags); err != nil {
            return h.fail(c, errBadTags, "")
        }
        in.Tags = tags
    }

    if in.Size > 0 && in.Size <= service.MaxUploadSize {
        f, err := fh.Open()
        if err != nil {
            return h.fail(c, err, "Internal server error during upload")
        }
        defer f.Close()
        in.Body, err = io.ReadAll(io.LimitReader(f, service.MaxUploadSize))
        if err != nil {
            return h.fail(c, err, "Internal server error during upload")
        }
    }

    ctx, cancel := requestCtx(c)
    defer cancel()
    doc, err := h.Documents.Upload(ctx, in)
    if err != nil {
        return h.fail(c, err, "Failed to upload file to storage")
    }
    return c.JSON(http.StatusCreated, echo.Map{"message": "Document uploaded successfully", "document": doc})
}

// List returns a page of the user's documents with statistics.
func (h *DocumentHandler) List(c echo.Context) error {
    ctx, cancel := requestCtx(c)
    defer cancel()
    res, err := h.Documents.List(ctx, repository.DocumentQuery{
        UserID:   middleware.UserID(c),
        Category: c.QueryParam("category"),
        Search:   strings.TrimSpace(c.QueryParam("search")),
        Page:     queryInt(c, "page", 1),
        Limit:    queryInt(c, "limit", 20),
    })
    if err != nil {
        return h.fail(c, err, "Internal server error while fetching documents")
    }
    return c.JSON(http.StatusOK, res)
}

// Categories returns the per-category counts.
func (h *DocumentHandler) Categories(c echo.Context) error {
    ctx, cancel := requestCtx(c)
    defer cancel()
    cats, err := h.Documents.Categories(ctx, middleware.UserID(c))
    if err != nil {
        return h.fail(c, err, "Internal server error while fetching categories")
    }
    return c.JSON(http.StatusOK, echo.Map{"categories": cats})
}

// Get returns the authorized document.
func (h *DocumentHandler) Get(c echo.Context) error {
    return c.JSON(http.StatusOK, echo.Map{"document": middleware.CurrentDocument(c)})
}

type updateReq struct {
    Title       *string         `json:"title"`
    Category    *string         `json:"category"`
    Description *string         `json:"description"`
    Tags        json.RawMessage `json:"tags"`
}

// Update edits title, category, description or tags.
func (h *DocumentHandler) Update(c echo.Context) error {
    var req updateReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    upd := model.DocumentUpdate{Title: req.Title, Category: req.Category, Description: req.Description}
    if upd.Title != nil && *upd.Title == "" {
        upd.Title = nil
    }
    if upd.Category != nil && *upd.Category == "" {
        upd.Category = nil
    }
    if len(req.Tags) > 0 && string(req.Tags) != "null" {
        tags, err := parseTags(req.Tags)
        if err != nil {
            return h.fail(c, errBadTags, "")
        }
        upd.Tags = &tags
    }

    ctx, cancel := requestCtx(c)
    defer cancel()
    doc, err := h.Documents.Update(ctx, middleware.CurrentDocument(c), upd)
    if err != nil {
        return h.fail(c, err, "Internal server error while updating document")
    }
    return c.JSON(http.StatusOK, echo.Map{"message": "Document updated successfully", "document": doc})
}

// Delete removes the blob and the metadata.  blobDeleted is false when the
// object store refused; the document is gone either way.
func (h *DocumentHandler) Delete(c echo.Context) error {
    ctx, cancel := requestCtx(c)
    defer cancel()
    blobDeleted, err := h.Documents.Delete(ctx, middleware.CurrentDocument(c))
    if err != nil {
        return h.fail(c, err, "Internal server error while deleting document")
    }
    return c.JSON(http.StatusOK, echo.Map{"message": "Document deleted successfully", "blobDeleted": blobDeleted})
}

// Download returns a short-lived signed link instead of streaming bytes.
func (h *DocumentHandler) Download(c echo.Context) error {
    doc := middleware.CurrentDocument(c)
    ctx, cancel := requestCtx(c)
    defer cancel()
    u, err := h.Documents.DownloadURL(ctx, doc)
    if err != nil {
        return h.fail(c, err, "Failed to generate download link")
    }
    return c.JSON(http.StatusOK, echo.Map{"downloadUrl": u, "fileName": doc.OriginalName, "expiresIn": "1 hour"})
}
