package shopsdk

import (
	"context"
	"net/http"
)

const refreshKey = "refresh"

// RefreshSession exchanges the stored token for a fresh one. It reports
// whether the client now holds a usable token; failures are logged, never
// returned. Concurrent callers share a single refresh request.
func (c *Client) RefreshSession(ctx context.Context) bool {
	creds, err := c.storage.Load(ctx)
	if err != nil {
		c.logger.Warn("refresh skipped: credentials unavailable", "err", err)
		return false
	}
	return c.refreshFrom(ctx, creds.Token)
}

// refreshFrom recovers from a 401 seen while holding stale. When the stored
// token already differs from stale, another caller refreshed in the
// meantime and there is nothing to do.
func (c *Client) refreshFrom(ctx context.Context, stale string) bool {
	if stale == "" || c.refreshFailed(stale) {
		return false
	}
	if fresh, ok := c.tokenMoved(ctx, stale); ok {
		return fresh
	}

	v, _, _ := c.refreshGroup.Do(refreshKey, func() (any, error) {
		// A refresh that finished between our check and joining the group
		// has already replaced the token, or already failed for it.
		if c.refreshFailed(stale) {
			return false, nil
		}
		if fresh, ok := c.tokenMoved(ctx, stale); ok {
			return fresh, nil
		}
		ok := c.doRefresh(context.WithoutCancel(ctx), stale)
		if !ok {
			c.failedMu.Lock()
			c.failedToken = stale
			c.failedMu.Unlock()
		}
		return ok, nil
	})
	ok, _ := v.(bool)
	return ok
}

// refreshFailed reports whether a refresh was already attempted and
// rejected for token.
func (c *Client) refreshFailed(token string) bool {
	c.failedMu.Lock()
	defer c.failedMu.Unlock()
	return c.failedToken == token
}

// tokenMoved reports (hasToken, true) when the stored token is no longer
// stale.
func (c *Client) tokenMoved(ctx context.Context, stale string) (bool, bool) {
	creds, err := c.storage.Load(ctx)
	if err != nil {
		return false, false
	}
	if creds.Token == stale {
		return false, false
	}
	return creds.Token != "", true
}

// doRefresh performs the refresh call and persists the result. The request
// skips the 401 recovery path so it can never recurse.
func (c *Client) doRefresh(ctx context.Context, token string) bool {
	req := request{
		method:    http.MethodPost,
		path:      "/auth/refresh",
		body:      refreshRequest{Token: token},
		noRefresh: true,
	}

	res, err := call[AuthResult](ctx, c, req)
	if err != nil {
		c.logger.Warn("token refresh failed", "err", err)
		return false
	}
	if res.Token == "" {
		c.logger.Warn("token refresh returned no token")
		return false
	}

	if err := c.storage.Save(ctx, Credentials{Token: res.Token, User: res.User}); err != nil {
		c.logger.Error("failed to persist refreshed token", "err", err)
		return false
	}

	c.logger.Debug("token refreshed")
	return true
}

// expire ends the session that was holding stale. Storage is cleared and
// handlers notified only if stale is still the stored token, so concurrent
// callers failing on the same refresh produce a single logout.
func (c *Client) expire(ctx context.Context, stale string) error {
	c.expireMu.Lock()
	cleared := false
	if creds, err := c.storage.Load(ctx); err == nil && creds.Token == stale {
		if err := c.storage.Clear(context.WithoutCancel(ctx)); err != nil {
			c.logger.Error("failed to clear credentials", "err", err)
		}
		cleared = true
	}
	c.expireMu.Unlock()

	if cleared {
		c.logger.Info("session expired", "redirect", LoginRoute)
		c.notifyExpired()
	}
	return ErrSessionExpired
}

type refreshRequest struct {
	Token string `json:"token"`
}
