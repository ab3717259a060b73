// Package auth resolves bearer tokens into an explicit per-request session.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/TobiSchelling/BiasLens/internal/apperr"
	"github.com/TobiSchelling/BiasLens/internal/database"
)

// Session is the authenticated identity of one request.
type Session struct {
	UserID string
}

type sessionKey struct{}

// WithSession returns a context carrying s.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// FromContext returns the session in ctx, or nil for anonymous requests.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(sessionKey{}).(*Session)
	return s
}

// UserID returns the authenticated user in ctx, or "".
func UserID(ctx context.Context) string {
	if s := FromContext(ctx); s != nil {
		return s.UserID
	}
	return ""
}

// HashToken returns the hex sha256 of a raw token. Only hashes are stored.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// Issued is a newly created user credential. Token is shown once.
type Issued struct {
	UserID string
	Token  string
}

// TokenStore issues and checks API tokens.
type TokenStore struct {
	db *database.DB
}

// NewTokenStore creates a TokenStore.
func NewTokenStore(db *database.DB) *TokenStore {
	return &TokenStore{db: db}
}

// Issue creates a token for userID. An empty userID creates a new user with
// a display name.
func (s *TokenStore) Issue(ctx context.Context, userID, displayName, label string) (*Issued, error) {
	if userID == "" {
		userID = uuid.NewString()
	}
	token := uuid.NewString()

	err := s.db.WithTx(ctx, func(tx *database.Tx) error {
		if err := tx.EnsureProfile(ctx, userID); err != nil {
			return err
		}
		if displayName != "" {
			if err := tx.SetDisplayName(ctx, userID, displayName); err != nil {
				return err
			}
		}
		return tx.InsertAPIToken(ctx, HashToken(token), userID, label)
	})
	if err != nil {
		return nil, fmt.Errorf("issuing token: %w", err)
	}
	return &Issued{UserID: userID, Token: token}, nil
}

// Authenticate resolves a raw token into a session.
func (s *TokenStore) Authenticate(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, apperr.Unauthorized("authentication required")
	}
	t, err := s.db.LookupAPIToken(ctx, HashToken(token))
	if err != nil {
		return nil, apperr.Persistence("failed to check credentials", err)
	}
	if t == nil {
		return nil, apperr.Unauthorized("invalid or expired token")
	}
	return &Session{UserID: t.UserID}, nil
}
