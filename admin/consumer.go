package admin

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/vtex/go-oneshot/event"
)

const (
	defaultPollTimeout = 30 * time.Second
	maxPollTimeout     = 2 * time.Minute
)

// pollSlot holds the one event a poll request answers with. Once the request
// is done with it, further offers fail and their events are vetoed, leaving
// them pending for the next poll.
type pollSlot struct {
	lock   sync.Mutex
	closed bool
	env    *event.Envelope
	ready  chan struct{}
}

func newPollSlot() *pollSlot {
	return &pollSlot{ready: make(chan struct{})}
}

func (s *pollSlot) offer(env event.Envelope) bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.closed || s.env != nil {
		return false
	}
	s.env = &env
	close(s.ready)
	return true
}

func (s *pollSlot) take() *event.Envelope {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.closed = true
	return s.env
}

// poll attaches the request as the channel's subscriber until one event is
// delivered or the timeout passes.
func (h *handlers) poll(c *gin.Context) {
	id := c.Param("id")
	timeout, err := pollTimeout(c.Query("timeout"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	slot := newPollSlot()
	sub, err := h.pool.Attach(ctx, id, event.AlwaysActive, func(d *event.Delivery[event.Event]) {
		env, err := event.NewEnvelope(id, d.Event)
		if err != nil {
			logError(err, "admin_poll_encode_error", id, "Dropping event that cannot be sent over HTTP")
			return
		}
		if !slot.offer(env) {
			d.Veto()
		}
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer h.pool.Detach(id, sub)

	select {
	case <-slot.ready:
	case <-ctx.Done():
	case <-sub.Done():
	}

	if env := slot.take(); env != nil {
		c.JSON(http.StatusOK, env)
		return
	}
	select {
	case <-sub.Done():
		if ctx.Err() == nil {
			logrus.WithFields(logrus.Fields{
				"code":     "admin_poll_replaced",
				"category": "admin_http",
				"channel":  id,
			}).Debug("Poll replaced by a newer subscriber")
			c.JSON(http.StatusConflict, gin.H{"error": "Replaced by another subscriber"})
			return
		}
	default:
	}
	c.Status(http.StatusNoContent)
}

func pollTimeout(raw string) (time.Duration, error) {
	if raw == "" {
		return defaultPollTimeout, nil
	}
	timeout, err := time.ParseDuration(raw)
	if err != nil {
		return 0, errors.Wrapf(err, "Invalid poll timeout %q", raw)
	}
	if timeout <= 0 || timeout > maxPollTimeout {
		return 0, errors.Errorf("Poll timeout must be in (0, %s]", maxPollTimeout)
	}
	return timeout, nil
}
