package middleware

// identity.go holds the context keys set by Authenticate and
// AuthorizeDocument and the accessors handlers use to read them.

import (
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/securevault/internal/model"
)

const (
    ctxUser     = "user"
    ctxUserID   = "user_id"
    ctxRole     = "role"
    ctxDocument = "document"
)

func setUser(c echo.Context, u *model.User) {
    c.Set(ctxUser, u)
    c.Set(ctxUserID, u.ID)
    c.Set(ctxRole, u.Role)
}

// CurrentUser returns the authenticated user, or nil outside Authenticate.
func CurrentUser(c echo.Context) *model.User {
    u, _ := c.Get(ctxUser).(*model.User)
    return u
}

// UserID returns the authenticated user's id, or "" when unauthenticated.
func UserID(c echo.Context) string {
    s, _ := c.Get(ctxUserID).(string)
    return s
}

// CurrentDocument returns the document loaded by AuthorizeDocument.
func CurrentDocument(c echo.Context) *model.Document {
    d, _ := c.Get(ctxDocument).(*model.Document)
    return d
}

// userKey identifies the caller for rate limiting; "anon" before
// authentication has run.
func userKey(c echo.Context) string {
    if id := UserID(c); id != "" {
        return id
    }
    return "anon"
}
