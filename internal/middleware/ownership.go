package middleware

import (
    "context"
    "errors"
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/rs/zerolog/log"

    "github.com/iliyamo/securevault/internal/model"
    "github.com/iliyamo/securevault/internal/repository"
)

// DocumentLookup finds a document regardless of owner.
type DocumentLookup interface {
    GetByID(ctx context.Context, id string) (*model.Document, error)
}

// AuthorizeDocument loads the document named by the :id path parameter and
// lets the request through only when it belongs to the authenticated user.
// A missing document is 404, someone else's is 403.  The admin routes use
// LoadDocument instead and never pass through here.
func AuthorizeDocument(docs DocumentLookup) echo.MiddlewareFunc {
    return loadDocument(docs, true)
}

// LoadDocument is AuthorizeDocument without the ownership check.  Only mount
// it behind RequireRole.
func LoadDocument(docs DocumentLookup) echo.MiddlewareFunc {
    return loadDocument(docs, false)
}

func loadDocument(docs DocumentLookup, checkOwner bool) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            id := strings.TrimSpace(c.Param("id"))
            if id == "" {
                return c.JSON(http.StatusBadRequest, echo.Map{"error": "Resource ID is required."})
            }

            ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
            defer cancel()
            d, err := docs.GetByID(ctx, id)
            if err != nil {
                if errors.Is(err, repository.ErrDocumentNotFound) {
                    return c.JSON(http.StatusNotFound, echo.Map{"error": "Resource not found."})
                }
                log.Error().Err(err).Str("document_id", id).Msg("authorize: load document")
                return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal server error during authorization."})
            }
            if checkOwner && d.UserID != UserID(c) {
                return c.JSON(http.StatusForbidden, echo.Map{"error": "Access denied. You can only access your own resources."})
            }

            c.Set(ctxDocument, d)
            return next(c)
        }
    }
}
