package auth

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/BiasLens/internal/apperr"
	"github.com/TobiSchelling/BiasLens/internal/database"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestIssueAndAuthenticate(t *testing.T) {
	db := openTestDB(t)
	store := NewTokenStore(db)
	ctx := context.Background()

	issued, err := store.Issue(ctx, "", "Ada", "laptop")
	require.NoError(t, err)
	assert.NotEmpty(t, issued.UserID)
	assert.NotEmpty(t, issued.Token)

	s, err := store.Authenticate(ctx, issued.Token)
	require.NoError(t, err)
	assert.Equal(t, issued.UserID, s.UserID)

	p, err := db.GetProfile(ctx, issued.UserID)
	require.NoError(t, err)
	require.NotNil(t, p.DisplayName)
	assert.Equal(t, "Ada", *p.DisplayName)

	tokens, err := db.ListAPITokens(ctx)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.NotEqual(t, issued.Token, tokens[0].TokenHash, "raw token must not be stored")
	assert.Equal(t, HashToken(issued.Token), tokens[0].TokenHash)
}

func TestIssueForExistingUser(t *testing.T) {
	db := openTestDB(t)
	store := NewTokenStore(db)

	issued, err := store.Issue(context.Background(), "user-42", "", "")
	require.NoError(t, err)
	assert.Equal(t, "user-42", issued.UserID)
}

func TestAuthenticateRejects(t *testing.T) {
	store := NewTokenStore(openTestDB(t))

	_, err := store.Authenticate(context.Background(), "")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	_, err = store.Authenticate(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	assert.Equal(t, "", BearerToken(r))

	r.Header.Set("Authorization", "Bearer abc123")
	assert.Equal(t, "abc123", BearerToken(r))

	r.Header.Set("Authorization", "bearer  xyz ")
	assert.Equal(t, "xyz", BearerToken(r))

	r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	assert.Equal(t, "", BearerToken(r))
}

func TestSessionContext(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, FromContext(ctx))
	assert.Equal(t, "", UserID(ctx))

	ctx = WithSession(ctx, &Session{UserID: "u1"})
	assert.Equal(t, "u1", UserID(ctx))
}
