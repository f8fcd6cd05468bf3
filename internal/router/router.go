package router // package router defines how HTTP routes are registered for the API

import (
	"net/http"

	"github.com/labstack/echo/v4"                    // import the Echo web framework to handle routing
	echomw "github.com/labstack/echo/v4/middleware" // stock Echo middleware (recover, CORS, headers, body limits)
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/securevault/internal/config"
	"github.com/iliyamo/securevault/internal/handler" // import the handlers that implement business logic
	"github.com/iliyamo/securevault/internal/metrics"
	"github.com/iliyamo/securevault/internal/middleware" // import middleware for JWT authentication and document authorization
	"github.com/iliyamo/securevault/internal/model"
)

// Body limits.  Uploads get a little headroom over the 50MB file limit for
// the multipart envelope; everything else is small JSON.
const (
	uploadBodyLimit = "51M"
	jsonBodyLimit   = "1M"
)

// Deps is everything the router needs to mount the API.
type Deps struct {
	Config    config.Config
	Users     middleware.UserLookup
	Docs      middleware.DocumentLookup
	Redis     *redis.Client // nil selects the in-memory rate limiter
	Metrics   *metrics.Metrics
	Auth      *handler.AuthHandler
	Documents *handler.DocumentHandler
	UserPages *handler.UserHandler
}

// New builds the Echo instance with the global middleware chain and every
// route registered.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.NewHTTPErrorHandler(d.Config.IsDevelopment())

	e.Use(echomw.Recover())
	e.Use(middleware.RequestLog(d.Metrics))
	e.Use(echomw.SecureWithConfig(echomw.SecureConfig{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "SAMEORIGIN",
		HSTSMaxAge:         15552000,
	}))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     []string{d.Config.FrontendURL},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderAuthorization, echo.HeaderContentType},
		AllowCredentials: true,
	}))
	e.Use(middleware.NewRateLimiter(d.Config.RateLimit, d.Redis, d.Metrics))

	RegisterRoutes(e, d.Metrics)
	RegisterAuth(e, d)
	RegisterDocuments(e, d)
	RegisterUsers(e, d)
	RegisterAdmin(e, d)
	return e
}

// RegisterRoutes registers routes that do not require authentication: the
// health check and the Prometheus scrape endpoint.
func RegisterRoutes(e *echo.Echo, m *metrics.Metrics) {
	e.GET("/health", handler.Health)
	if m != nil {
		e.GET("/metrics", echo.WrapHandler(m.Handler()))
	}
}

// RegisterAuth mounts /api/auth.  Register and login are open; the rest
// require a bearer token.
func RegisterAuth(e *echo.Echo, d Deps) {
	g := e.Group("/api/auth", echomw.BodyLimit(jsonBodyLimit))
	g.POST("/register", d.Auth.Register)
	g.POST("/login", d.Auth.Login)

	auth := middleware.Authenticate(d.Config.JWTSecret, d.Users)
	g.GET("/profile", d.Auth.Profile, auth)
	g.PUT("/profile", d.Auth.UpdateProfile, auth)
	g.PUT("/change-password", d.Auth.ChangePassword, auth)
	g.POST("/logout", d.Auth.Logout, auth)
}

// RegisterDocuments mounts /api/documents.  Every route needs a token and
// every :id route passes through the ownership check first.
func RegisterDocuments(e *echo.Echo, d Deps) {
	g := e.Group("/api/documents", middleware.Authenticate(d.Config.JWTSecret, d.Users))
	owns := middleware.AuthorizeDocument(d.Docs)
	small := echomw.BodyLimit(jsonBodyLimit)

	g.POST("/upload", d.Documents.Upload, echomw.BodyLimit(uploadBodyLimit))
	g.GET("", d.Documents.List)
	g.GET("/categories/list", d.Documents.Categories)
	g.GET("/:id", d.Documents.Get, owns)
	g.PUT("/:id", d.Documents.Update, small, owns)
	g.DELETE("/:id", d.Documents.Delete, owns)
	g.GET("/:id/download", d.Documents.Download, owns)
}

// RegisterUsers mounts /api/users.
func RegisterUsers(e *echo.Echo, d Deps) {
	g := e.Group("/api/users",
		echomw.BodyLimit(jsonBodyLimit),
		middleware.Authenticate(d.Config.JWTSecret, d.Users))
	g.GET("/dashboard", d.UserPages.Dashboard)
	g.GET("/profile", d.Auth.Profile)
	g.PUT("/profile", d.Auth.UpdateProfile)
	g.PUT("/change-password", d.Auth.ChangePassword)
	g.DELETE("/account", d.UserPages.DeleteAccount)
	g.GET("/activity", d.UserPages.Activity)
}

// RegisterAdmin mounts the elevated document routes.  They skip the
// ownership check, so the role check must run first.
func RegisterAdmin(e *echo.Echo, d Deps) {
	g := e.Group("/api/admin",
		middleware.Authenticate(d.Config.JWTSecret, d.Users),
		middleware.RequireRole(model.RoleAdmin))
	load := middleware.LoadDocument(d.Docs)
	g.GET("/documents/:id", d.Documents.Get, load)
	g.DELETE("/documents/:id", d.Documents.Delete, load)
}
