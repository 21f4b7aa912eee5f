package server

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"arstate/internal/media"
	"arstate/internal/processor"
)

// conversionStatus is the JSON view of a user's latest conversion.
type conversionStatus struct {
	State     string `json:"state"`
	Total     int    `json:"total"`
	Processed int    `json:"processed"`
	Errors    int    `json:"errors"`
	Current   string `json:"current,omitempty"`
	Error     string `json:"error,omitempty"`
}

type progress struct {
	state     media.State
	total     int
	processed int
	errors    int
	current   string
	message   string
}

// tracker keeps the lifecycle of the latest conversion per user.
type tracker struct {
	mu     sync.Mutex
	byUser map[string]*progress
}

func newTracker() *tracker {
	return &tracker{byUser: make(map[string]*progress)}
}

func (t *tracker) apply(user string, u processor.ProgressUpdate) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.byUser[user]
	if !ok || u.State == media.StateConverting {
		p = &progress{}
		t.byUser[user] = p
	}
	if u.State != media.StateIdle {
		p.state = u.State
	}
	p.total += u.TotalDelta
	p.processed += u.ProcessedDelta
	p.errors += u.ErrorDelta
	if u.Current != "" {
		p.current = u.Current
	}
}

func (t *tracker) fail(user, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.byUser[user]
	if !ok {
		p = &progress{}
		t.byUser[user] = p
	}
	p.state = media.StateFailed
	p.message = message
}

func (t *tracker) get(user string) conversionStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.byUser[user]
	if !ok {
		return conversionStatus{State: media.StateIdle.String()}
	}
	st := conversionStatus{
		State:     p.state.String(),
		Total:     p.total,
		Processed: p.processed,
		Errors:    p.errors,
		Error:     p.message,
	}
	if p.state == media.StateConverting {
		st.Current = p.current
	}
	return st
}

func (s *Server) convertStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.status.get(c.Param("user")))
}
