// Package admin exposes channel pools over HTTP, for operators, for
// producers that cannot reach Redis and for consumers long-polling a channel.
package admin

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/vtex/go-oneshot/event"
	"github.com/vtex/go-oneshot/prefs"
	"github.com/vtex/go-oneshot/prometheus"
	"github.com/vtex/go-oneshot/worker"
)

const maxEventBodySize = 64 * 1024

// HealthCheck reports a dependency problem by returning an error.
type HealthCheck func() error

type handlers struct {
	pool   *event.Pool
	loop   *worker.Loop
	gate   *prefs.Gate
	checks []HealthCheck
}

// NewRouter builds the admin routes. Emits and resets run on loop when given.
// With a gate, emits carrying a "once" query parameter are skipped if that
// key was consumed before.
func NewRouter(pool *event.Pool, loop *worker.Loop, gate *prefs.Gate, checks ...HealthCheck) *gin.Engine {
	h := &handlers{pool: pool, loop: loop, gate: gate, checks: checks}

	router := gin.New()
	router.Use(gin.Recovery(), logRequests)

	router.GET("/healthcheck", h.healthcheck)
	router.GET("/metrics", prometheus.Handler())
	router.GET("/channels", h.listChannels)
	router.GET("/channels/:id/events", h.poll)
	router.POST("/channels/:id/events", h.emit)
	router.POST("/channels/:id/reset", h.reset)
	return router
}

func (h *handlers) healthcheck(c *gin.Context) {
	for _, check := range h.checks {
		if err := check(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handlers) listChannels(c *gin.Context) {
	c.JSON(http.StatusOK, h.pool.Snapshot())
}

func (h *handlers) emit(c *gin.Context) {
	id := c.Param("id")
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxEventBodySize))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return
	}

	env, ev, err := event.Decode(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if env.Channel != id {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Envelope channel does not match the URL"})
		return
	}

	once := c.Query("once")
	if once != "" && h.gate == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Once-gates are not configured"})
		return
	}

	h.run(c, func() {
		var err error
		if once != "" {
			_, err = h.gate.EmitOnceTo(h.pool, id, once, ev)
		} else {
			err = h.pool.Emit(id, ev)
		}
		if err != nil {
			logError(err, "admin_emit_error", id, "Failed to emit event")
		}
	}, gin.H{"id": env.ID, "channel": id})
}

func (h *handlers) reset(c *gin.Context) {
	id := c.Param("id")
	h.run(c, func() {
		if err := h.pool.Reset(id); err != nil {
			logError(err, "admin_reset_error", id, "Failed to reset channel")
		}
	}, gin.H{"channel": id})
}

func (h *handlers) run(c *gin.Context, job worker.Job, response gin.H) {
	if h.loop == nil {
		job()
	} else if !h.loop.Post(job) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Worker loop is stopped"})
		return
	}
	c.JSON(http.StatusAccepted, response)
}

func logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()

	entry := logrus.WithFields(logrus.Fields{
		"category": "admin_http",
		"method":   c.Request.Method,
		"path":     c.FullPath(),
		"status":   c.Writer.Status(),
		"duration": time.Since(start).String(),
	})
	if c.Writer.Status() >= http.StatusInternalServerError {
		entry.Warn("Admin request failed")
	} else {
		entry.Debug("Admin request")
	}
}

func logError(err error, code, channel, msg string) {
	logrus.WithError(err).
		WithFields(logrus.Fields{
			"code":     code,
			"category": "admin_http",
			"channel":  channel,
		}).
		Error(msg)
}
