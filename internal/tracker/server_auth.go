// SPDX-License-Identifier: MPL-2.0

package tracker

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/charmbracelet/ssh"
	"github.com/google/uuid"
)

type tokenContextKey struct{}

// GenerateToken issues a credential valid for the configured TTL.
func (s *Server) GenerateToken(label string) (*Token, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	now := s.clock.Now()
	token := &Token{
		ID:        uuid.NewString(),
		Value:     TokenValue(hex.EncodeToString(raw)),
		Label:     label,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.TokenTTL),
	}

	s.tokenMu.Lock()
	s.tokens[token.Value] = token
	s.tokenMu.Unlock()

	s.logger.Debug("generated token", "id", token.ID, "label", label)
	return token, nil
}

// ValidateToken returns the live token for value. Expired tokens are revoked.
func (s *Server) ValidateToken(value TokenValue) (*Token, bool) {
	s.tokenMu.RLock()
	token, ok := s.tokens[value]
	s.tokenMu.RUnlock()
	if !ok {
		return nil, false
	}
	if s.clock.Now().After(token.ExpiresAt) {
		s.RevokeToken(value)
		return nil, false
	}
	return token, true
}

// RevokeToken invalidates value.
func (s *Server) RevokeToken(value TokenValue) {
	s.tokenMu.Lock()
	delete(s.tokens, value)
	s.tokenMu.Unlock()
}

// ConnectionInfo issues a token and returns the dial parameters for it.
func (s *Server) ConnectionInfo(label string) (*ConnectionInfo, error) {
	if !s.IsRunning() {
		return nil, fmt.Errorf("tracker is not running (state: %s)", s.State())
	}
	token, err := s.GenerateToken(label)
	if err != nil {
		return nil, err
	}
	return &ConnectionInfo{
		Addr:     s.Address(),
		User:     DefaultUser,
		Token:    token.Value,
		ExpireAt: token.ExpiresAt,
	}, nil
}

// pruneTokens drops expired tokens and returns how many were removed.
func (s *Server) pruneTokens() int {
	s.tokenMu.Lock()
	defer s.tokenMu.Unlock()
	now := s.clock.Now()
	removed := 0
	for value, token := range s.tokens {
		if now.After(token.ExpiresAt) {
			delete(s.tokens, value)
			removed++
		}
	}
	return removed
}

func (s *Server) cleanupExpiredTokens() {
	defer s.DoneGoroutine()

	ctx := s.Context()
	if ctx == nil {
		return
	}
	ticker := time.NewTicker(tokenCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.pruneTokens(); n > 0 {
				s.logger.Debug("pruned expired tokens", "count", n)
			}
		}
	}
}

func (s *Server) passwordHandler(ctx ssh.Context, password string) bool {
	token, ok := s.ValidateToken(TokenValue(password))
	if !ok {
		s.logger.Warn("invalid token authentication attempt", "user", ctx.User(), "remote", ctx.RemoteAddr())
		return false
	}
	ctx.SetValue(tokenContextKey{}, token)
	s.logger.Debug("token authentication succeeded", "id", token.ID, "user", ctx.User())
	return true
}

// publicKeyHandler rejects keys; only token passwords are accepted.
func (s *Server) publicKeyHandler(ssh.Context, ssh.PublicKey) bool {
	return false
}
