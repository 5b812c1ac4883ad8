package devserver

import (
	"log/slog"
	"time"
)

const (
	defaultHousekeepingInterval = time.Minute
	maxEvents                   = 10_000
)

// housekeeper periodically drops expired MFA challenges, lapsed lockouts,
// sessions whose token can no longer be refreshed, and old audit events.
type housekeeper struct {
	s        *Server
	logger   *slog.Logger
	interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

func newHousekeeper(s *Server, interval time.Duration) *housekeeper {
	if interval <= 0 {
		interval = defaultHousekeepingInterval
	}
	return &housekeeper{
		s:        s,
		logger:   s.logger.With("worker", "housekeeping"),
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs the sweep loop in the background. Stop must be called once.
func (h *housekeeper) Start() {
	go h.run()
	h.logger.Debug("housekeeping started", "interval", h.interval)
}

// Stop ends the loop and waits for an in-progress sweep.
func (h *housekeeper) Stop() {
	close(h.stopCh)
	<-h.doneCh
}

func (h *housekeeper) run() {
	defer close(h.doneCh)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.sweep()
			h.sweepLimiters()
		case <-h.stopCh:
			return
		}
	}
}

// sweepStats counts what one sweep removed.
type sweepStats struct {
	challenges, lockouts, sessions, events int
}

func (h *housekeeper) sweep() sweepStats {
	st := h.s.st
	now := h.s.now()
	// A session is dead once its last token is past the refresh grace.
	idle := h.s.cfg.TokenTTL + h.s.cfg.RefreshGrace

	st.mu.Lock()
	defer st.mu.Unlock()

	var out sweepStats
	for key, ch := range st.challenges {
		if now.After(ch.expires) {
			delete(st.challenges, key)
			out.challenges++
		}
	}
	for _, a := range st.accounts.rows {
		if !a.lockedUntil.IsZero() && !a.locked(now) {
			a.lockedUntil = time.Time{}
			out.lockouts++
		}
	}
	for id, se := range st.sessions.rows {
		if now.Sub(se.lastActive) > idle {
			delete(st.sessions.rows, id)
			out.sessions++
		}
	}
	if n := len(st.events) - maxEvents; n > 0 {
		st.events = append(st.events[:0:0], st.events[n:]...)
		out.events = n
	}

	if out != (sweepStats{}) {
		h.logger.Info("housekeeping sweep",
			"challenges", out.challenges,
			"lockouts", out.lockouts,
			"sessions", out.sessions,
			"events", out.events,
		)
	}
	return out
}

// sweepLimiters forgets rate-limit buckets that have refilled.
func (h *housekeeper) sweepLimiters() int {
	n := 0
	for _, l := range h.s.limiters {
		n += l.Sweep()
	}
	if n > 0 {
		h.logger.Debug("rate limit buckets dropped", "count", n)
	}
	return n
}
