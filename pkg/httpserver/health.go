package httpserver

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	errorWindow        = 5 * time.Minute
	degradedErrorCount = 10
)

// ErrorCounter reports unresolved error records newer than since.
type ErrorCounter interface {
	CountUnresolvedSince(ctx context.Context, since time.Time) (int, error)
}

// Check is a named dependency health check, e.g. a database ping.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

type Health struct {
	service string
	started time.Time
	errors  ErrorCounter
	checks  []Check
	now     func() time.Time
}

func NewHealth(service string, errors ErrorCounter, checks ...Check) *Health {
	return &Health{
		service: service,
		started: time.Now(),
		errors:  errors,
		checks:  checks,
		now:     time.Now,
	}
}

func (h *Health) Register(r gin.IRouter) {
	r.GET("/health", h.basic)
	r.GET("/health/detailed", h.detailed)
}

func (h *Health) basic(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": h.now().UTC(),
		"uptime":    h.now().Sub(h.started).Seconds(),
		"service":   h.service,
	})
}

func (h *Health) detailed(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	status := "healthy"
	checks := gin.H{}

	for _, chk := range h.checks {
		if err := chk.Ping(ctx); err != nil {
			checks[chk.Name] = gin.H{"healthy": false, "error": err.Error()}
			status = "unhealthy"
			continue
		}
		checks[chk.Name] = gin.H{"healthy": true}
	}

	if h.errors != nil {
		n, err := h.errors.CountUnresolvedSince(ctx, h.now().Add(-errorWindow))
		switch {
		case err != nil:
			checks["errors"] = gin.H{"healthy": false, "error": err.Error()}
		default:
			checks["errors"] = gin.H{"recentCount": n, "healthy": n < degradedErrorCount}
			if n >= degradedErrorCount && status == "healthy" {
				status = "degraded"
			}
		}
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	checks["memory"] = gin.H{
		"heapAllocMB": mem.HeapAlloc >> 20,
		"heapSysMB":   mem.HeapSys >> 20,
		"goroutines":  runtime.NumGoroutine(),
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": h.now().UTC(),
		"uptime":    h.now().Sub(h.started).Seconds(),
		"checks":    checks,
	})
}
