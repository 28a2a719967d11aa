package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour)

	raw, err := tm.Issue(42, "Maria")
	require.NoError(t, err)

	s, err := tm.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, int64(42), s.UserID)
	assert.Equal(t, "Maria", s.UserName)
	assert.Equal(t, raw, s.Token)
	assert.True(t, s.Authenticated())
}

func TestParseRejectsForeignSignature(t *testing.T) {
	raw, err := NewTokenManager("other", time.Hour).Issue(1, "x")
	require.NoError(t, err)

	_, err = NewTokenManager("secret", time.Hour).Parse(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsExpired(t *testing.T) {
	tm := NewTokenManager("secret", time.Minute)
	tm.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	raw, err := tm.Issue(1, "x")
	require.NoError(t, err)

	tm.now = time.Now
	_, err = tm.Parse(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestContextRoundTrip(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	ctx := WithContext(context.Background(), Session{UserID: 7})
	s, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, int64(7), s.UserID)
}
