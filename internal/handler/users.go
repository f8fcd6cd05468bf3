package handler

import (
    "context"
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/securevault/internal/middleware"
    "github.com/iliyamo/securevault/internal/service"
)

// Insights is the read side of the document service used by the user routes.
type Insights interface {
    Dashboard(ctx context.Context, userID string) (*service.Dashboard, error)
    Activity(ctx context.Context, userID string, page, limit int) (*service.Activity, error)
}

// UserHandler serves the /api/users routes.  Profile and password changes
// are shared with AuthHandler.
type UserHandler struct {
    errorResponder
    Accounts Accounts
    Insights Insights
}

func NewUserHandler(dev bool, accounts Accounts, insights Insights) *UserHandler {
    return &UserHandler{errorResponder: errorResponder{Dev: dev}, Accounts: accounts, Insights: insights}
}

// Dashboard returns statistics, category breakdown and recent documents.
func (h *UserHandler) Dashboard(c echo.Context) error {
    ctx, cancel := requestCtx(c)
    defer cancel()
    d, err := h.Insights.Dashboard(ctx, middleware.UserID(c))
    if err != nil {
        return h.fail(c, err, "Internal server error while fetching dashboard data")
    }
    return c.JSON(http.StatusOK, d)
}

// Activity lists the user's uploads as a feed.
func (h *UserHandler) Activity(c echo.Context) error {
    ctx, cancel := requestCtx(c)
    defer cancel()
    a, err := h.Insights.Activity(ctx, middleware.UserID(c), queryInt(c, "page", 1), queryInt(c, "limit", 20))
    if err != nil {
        return h.fail(c, err, "Internal server error while fetching activity")
    }
    return c.JSON(http.StatusOK, a)
}

type deleteAccountReq struct {
    Password string `json:"password"`
}

// DeleteAccount removes the user and everything they own.
func (h *UserHandler) DeleteAccount(c echo.Context) error {
    var req deleteAccountReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    ctx, cancel := requestCtx(c)
    defer cancel()
    if err := h.Accounts.DeleteAccount(ctx, middleware.UserID(c), req.Password); err != nil {
        return h.fail(c, err, "Internal server error while deleting account")
    }
    return c.JSON(http.StatusOK, echo.Map{"message": "Account deleted successfully"})
}
