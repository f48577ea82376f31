package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"teestyle/internal/models"
)

func TestTokenRoundTrip(t *testing.T) {
	m := NewManager("test-secret")
	u := models.User{ID: primitive.NewObjectID(), IsAdmin: true}

	raw, err := m.IssueToken(u, time.Hour)
	require.NoError(t, err)

	id, err := m.ParseToken(raw)
	require.NoError(t, err)
	assert.Equal(t, u.ID.Hex(), id.UserID)
	assert.True(t, id.IsAdmin)
}

func TestParseTokenWrongSecret(t *testing.T) {
	u := models.User{ID: primitive.NewObjectID()}

	raw, err := NewManager("one-secret").IssueToken(u, time.Hour)
	require.NoError(t, err)

	_, err = NewManager("another-secret").ParseToken(raw)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestParseTokenExpired(t *testing.T) {
	m := NewManager("test-secret")
	u := models.User{ID: primitive.NewObjectID()}

	raw, err := m.IssueToken(u, -time.Minute)
	require.NoError(t, err)

	_, err = m.ParseToken(raw)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestParseTokenGarbage(t *testing.T) {
	_, err := NewManager("test-secret").ParseToken("not.a.token")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}
