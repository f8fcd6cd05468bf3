package handler

import (
    "context"
    "errors"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/securevault/internal/config"
    "github.com/iliyamo/securevault/internal/middleware"
    "github.com/iliyamo/securevault/internal/model"
    "github.com/iliyamo/securevault/internal/repository"
    "github.com/iliyamo/securevault/internal/service"
    "github.com/iliyamo/securevault/internal/utils"
)

// Accounts is the account service as seen by the handlers.
type Accounts interface {
    Register(ctx context.Context, name, email, password string) (*model.User, error)
    Login(ctx context.Context, email, password string) (*model.User, error)
    UpdateProfile(ctx context.Context, userID string, upd service.ProfileUpdate) (*model.User, error)
    ChangePassword(ctx context.Context, userID, current, next string) error
    DeleteAccount(ctx context.Context, userID, password string) error
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
    errorResponder
    Cfg      config.Config
    Accounts Accounts
}

func NewAuthHandler(cfg config.Config, accounts Accounts) *AuthHandler {
    return &AuthHandler{errorResponder: errorResponder{Dev: cfg.IsDevelopment()}, Cfg: cfg, Accounts: accounts}
}

// ----- DTOs -----

type registerReq struct {
    Name     string `json:"name"`
    Email    string `json:"email"`
    Password string `json:"password"`
}
type loginReq struct {
    Email    string `json:"email"`
    Password string `json:"password"`
}
type profileReq struct {
    Name  *string `json:"name"`
    Email *string `json:"email"`
}
type changePasswordReq struct {
    CurrentPassword string `json:"currentPassword"`
    NewPassword     string `json:"newPassword"`
}

type authResp struct {
    Message string      `json:"message"`
    User    *model.User `json:"user"`
    Token   string      `json:"token"`
}

func requestCtx(c echo.Context) (context.Context, context.CancelFunc) {
    return context.WithTimeout(c.Request().Context(), 10*time.Second)
}

// Register: create user and return a token immediately.
func (h *AuthHandler) Register(c echo.Context) error {
    var req registerReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    ctx, cancel := requestCtx(c)
    defer cancel()

    u, err := h.Accounts.Register(ctx, req.Name, req.Email, req.Password)
    if err != nil {
        if errors.Is(err, repository.ErrEmailExists) {
            return c.JSON(http.StatusConflict, echo.Map{"error": "User with this email already exists"})
        }
        return h.fail(c, err, "Internal server error during registration")
    }
    tok, err := utils.IssueToken(h.Cfg.JWTSecret, u.ID, h.Cfg.TokenTTL)
    if err != nil {
        return h.fail(c, err, "Internal server error during registration")
    }
    return c.JSON(http.StatusCreated, authResp{Message: "User registered successfully", User: u, Token: tok.Token})
}

// Login: verify credentials and return a token.
func (h *AuthHandler) Login(c echo.Context) error {
    var req loginReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    ctx, cancel := requestCtx(c)
    defer cancel()

    u, err := h.Accounts.Login(ctx, req.Email, req.Password)
    if err != nil {
        return h.fail(c, err, "Internal server error during login")
    }
    tok, err := utils.IssueToken(h.Cfg.JWTSecret, u.ID, h.Cfg.TokenTTL)
    if err != nil {
        return h.fail(c, err, "Internal server error during login")
    }
    return c.JSON(http.StatusOK, authResp{Message: "Login successful", User: u, Token: tok.Token})
}

// Profile returns the authenticated user.
func (h *AuthHandler) Profile(c echo.Context) error {
    return c.JSON(http.StatusOK, echo.Map{"user": middleware.CurrentUser(c)})
}

// UpdateProfile changes name and/or email.
func (h *AuthHandler) UpdateProfile(c echo.Context) error {
    var req profileReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    ctx, cancel := requestCtx(c)
    defer cancel()

    u, err := h.Accounts.UpdateProfile(ctx, middleware.UserID(c), service.ProfileUpdate{Name: req.Name, Email: req.Email})
    if err != nil {
        return h.fail(c, err, "Internal server error while updating profile")
    }
    return c.JSON(http.StatusOK, echo.Map{"message": "Profile updated successfully", "user": u})
}

// ChangePassword replaces the password after checking the current one.
func (h *AuthHandler) ChangePassword(c echo.Context) error {
    var req changePasswordReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    ctx, cancel := requestCtx(c)
    defer cancel()

    err := h.Accounts.ChangePassword(ctx, middleware.UserID(c), req.CurrentPassword, req.NewPassword)
    if err != nil {
        if errors.Is(err, service.ErrWrongPassword) {
            return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Current password is incorrect"})
        }
        return h.fail(c, err, "Internal server error while changing password")
    }
    return c.JSON(http.StatusOK, echo.Map{"message": "Password changed successfully"})
}

// Logout: tokens are stateless, so the client simply discards its token.
// It stays valid until it expires.
func (h *AuthHandler) Logout(c echo.Context) error {
    return c.JSON(http.StatusOK, echo.Map{"message": "Logged out successfully"})
}
