package middleware // declare the middleware package; contains reusable HTTP middleware functions

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
    "github.com/iliyamo/securevault/internal/utils"
)

// UserLookup loads the account a token was issued for.
type UserLookup interface {
    GetByID(ctx context.Context, id string) (*model.User, error)
}

// Authenticate returns an Echo middleware that validates a Bearer token,
// loads the user it names and rejects the request unless that user exists
// and is active.  Downstream handlers read the user with CurrentUser and
// its id with UserID.  Nothing but the user lookup is consulted.
func Authenticate(secret string, users UserLookup) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            auth := c.Request().Header.Get("Authorization")
            if !strings.HasPrefix(auth, "Bearer ") {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Access denied. No token provided."})
            }
            raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
            if raw == "" {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Access denied. No token provided."})
            }

            uid, err := utils.ParseToken(secret, raw)
            if err != nil {
                if errors.Is(err, utils.ErrTokenExpired) {
                    return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Token expired. Please login again."})
                }
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Invalid token."})
            }

            ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
            defer cancel()
            u, err := users.GetByID(ctx, uid)
            if err != nil {
                if errors.Is(err, repository.ErrUserNotFound) {
                    return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Invalid token. User not found or inactive."})
                }
                log.Error().Err(err).Str("user_id", uid).Msg("auth: load user")
                return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal server error during authentication."})
            }
            if !u.IsActive {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Invalid token. User not found or inactive."})
            }

            setUser(c, u)
            return next(c)
        }
    }
}
