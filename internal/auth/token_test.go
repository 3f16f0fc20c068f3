package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	tok, err := Issue("s3cret", Principal{Login: "alice", Roles: []string{"admin"}, Admin: true}, time.Hour)
	require.NoError(t, err)

	p, err := Verify("s3cret", tok)
	require.NoError(t, err)
	assert.Equal(t, Principal{Login: "alice", Roles: []string{"admin"}, Admin: true}, p)
}

func TestVerifyRejects(t *testing.T) {
	tok, err := Issue("s3cret", Principal{Login: "alice"}, time.Hour)
	require.NoError(t, err)

	_, err = Verify("other", tok)
	assert.Error(t, err)

	expired, err := Issue("s3cret", Principal{Login: "alice"}, -time.Minute)
	require.NoError(t, err)
	_, err = Verify("s3cret", expired)
	assert.Error(t, err, "expired")

	_, err = Verify("", tok)
	assert.ErrorIs(t, err, ErrNoSecret)

	_, err = Issue("s3cret", Principal{}, 0)
	assert.ErrorIs(t, err, ErrNoSubject)
}

func TestBearerToken(t *testing.T) {
	tok, ok := BearerToken("Bearer abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", tok)

	_, ok = BearerToken("Basic abc")
	assert.False(t, ok)
	_, ok = BearerToken("bearer")
	assert.False(t, ok)
}
