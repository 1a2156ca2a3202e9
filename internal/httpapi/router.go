package httpapi

import (
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rollcall/internal/httpmiddleware"
	"rollcall/internal/tracker"
)

// RouterConfig tunes the middleware stack.
type RouterConfig struct {
	RateLimitPerMin int
	AllowOrigins    []string
}

// NewRouter builds the gin engine serving the API.
func NewRouter(tr *tracker.Tracker, cfg RouterConfig) *gin.Engine {
	h := New(tr)

	corsCfg := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       24 * time.Hour,
	}
	if len(cfg.AllowOrigins) == 0 || slices.Contains(cfg.AllowOrigins, "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowOrigins
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.Observe("/healthz", "/metrics"))
	r.Use(cors.New(corsCfg))
	r.Use(httpmiddleware.SecurityHeaders())

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api", httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())
	{
		api.GET("/students", h.ListStudents)
		api.POST("/students", h.AddStudent)
		api.PUT("/students/:id", h.UpdateStudent)
		api.DELETE("/students/:id", h.RemoveStudent)

		api.GET("/attendance/:date", h.Sheet)
		api.GET("/attendance/:date/:studentId", h.StatusOf)
		api.PUT("/attendance/:date/:studentId", h.Mark)

		api.GET("/events", h.Events)
	}

	return r
}
