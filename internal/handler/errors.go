package handler

import (
    "errors"
    "net/http"

    "github.com/labstack/echo/v4"
    "github.com/rs/zerolog/log"

    "github.com/iliyamo/securevault/internal/repository"
    "github.com/iliyamo/securevault/internal/service"
    "github.com/iliyamo/securevault/internal/storage"
)

// errorResponder renders service errors.  Dev enables the raw error text in
// 500 responses.
type errorResponder struct {
    Dev bool
}

// fail maps err onto a status code and JSON body.  fallback is the message
// used for unexpected failures.
func (r errorResponder) fail(c echo.Context, err error, fallback string) error {
    var ve *service.ValidationError
    switch {
    case errors.As(err, &ve):
        if len(ve.Details) > 0 {
            return c.JSON(http.StatusBadRequest, echo.Map{"error": "Validation error", "details": ve.Details})
        }
        return c.JSON(http.StatusBadRequest, echo.Map{"error": ve.Message})
    case errors.Is(err, service.ErrInvalidCredentials):
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Invalid email or password"})
    case errors.Is(err, service.ErrInactive):
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Account is deactivated. Please contact support."})
    case errors.Is(err, service.ErrWrongPassword):
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Password is incorrect"})
    case errors.Is(err, repository.ErrUserNotFound):
        return c.JSON(http.StatusNotFound, echo.Map{"error": "User not found"})
    case errors.Is(err, repository.ErrDocumentNotFound):
        return c.JSON(http.StatusNotFound, echo.Map{"error": "Document not found"})
    case errors.Is(err, repository.ErrEmailExists):
        return c.JSON(http.StatusConflict, echo.Map{"error": "Email is already taken by another user"})
    case errors.Is(err, repository.ErrConflict):
        return c.JSON(http.StatusConflict, echo.Map{"error": "Resource already exists"})
    case errors.Is(err, service.ErrMetadataPersist):
        return r.internal(c, err, "Failed to save document metadata", "metadata_persist_failed")
    case errors.Is(err, storage.ErrStoreUnavailable):
        return r.internal(c, err, fallback, "storage_unavailable")
    }
    return r.internal(c, err, fallback, "")
}

func (r errorResponder) internal(c echo.Context, err error, msg, code string) error {
    log.Error().Err(err).Str("path", c.Path()).Str("code", code).Msg(msg)
    body := echo.Map{"error": msg, "message": "Internal server error"}
    if r.Dev {
        body["message"] = err.Error()
    }
    if code != "" {
        body["code"] = code
    }
    return c.JSON(http.StatusInternalServerError, body)
}

// NewHTTPErrorHandler renders errors that escape handlers and middleware
// (unknown routes, body limit, recovered panics).
func NewHTTPErrorHandler(dev bool) echo.HTTPErrorHandler {
    return func(err error, c echo.Context) {
        if c.Response().Committed {
            return
        }
        var (
            code = http.StatusInternalServerError
            body echo.Map
        )
        var he *echo.HTTPError
        if errors.As(err, &he) {
            code = he.Code
            switch code {
            case http.StatusNotFound, http.StatusMethodNotAllowed:
                code = http.StatusNotFound
                body = echo.Map{"error": "Route not found"}
            case http.StatusRequestEntityTooLarge:
                body = echo.Map{"error": service.ErrFileTooLarge.Message}
            default:
                if msg, ok := he.Message.(string); ok {
                    body = echo.Map{"error": msg}
                } else {
                    body = echo.Map{"error": http.StatusText(code)}
                }
            }
        }
        if body == nil || code >= 500 {
            log.Error().Err(err).Str("method", c.Request().Method).Str("path", c.Request().URL.Path).Msg("unhandled error")
            msg := "Internal server error"
            if dev {
                msg = err.Error()
            }
            body = echo.Map{"error": "Something went wrong!", "message": msg}
        }

        if c.Request().Method == http.MethodHead {
            err = c.NoContent(code)
        } else {
            err = c.JSON(code, body)
        }
        if err != nil {
            log.Error().Err(err).Msg("write error response")
        }
    }
}
