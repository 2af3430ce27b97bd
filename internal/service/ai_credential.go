package service

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

type sessionLoginer interface {
	Login(ctx context.Context) (string, error)
}

// CredentialCache holds the chat endpoint session token shared by all review workers.
type CredentialCache struct {
	login  sessionLoginer
	logger *zap.Logger

	mu    sync.Mutex
	token string
}

// NewCredentialCache constructs an empty cache backed by login.
func NewCredentialCache(login sessionLoginer, logger *zap.Logger) *CredentialCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CredentialCache{login: login, logger: logger}
}

// GetOrRefresh returns the cached token, logging in once when it is absent.
// Callers arriving during a refresh wait for it and share its result. Failures return ("", false).
func (c *CredentialCache) GetOrRefresh(ctx context.Context) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" {
		return c.token, true
	}

	token, err := c.login.Login(ctx)
	if err != nil {
		c.logger.Sugar().Warnw("ai session login failed", "error", err)
		return "", false
	}
	if token == "" {
		return "", false
	}
	c.token = token
	c.logger.Sugar().Infow("ai session refreshed")
	return token, true
}

// Invalidate drops the cached token so the next caller logs in again.
func (c *CredentialCache) Invalidate() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}
