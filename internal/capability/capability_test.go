package capability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMintAndVerify(t *testing.T) {
	iss, err := NewIssuer("s3cret", "reelgate", time.Minute)
	require.NoError(t, err)

	token, err := iss.Mint("user-1", "run-1", "proj-1", "studio:generate")
	require.NoError(t, err)

	claims, err := iss.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "run-1", claims.RunID)
	assert.Equal(t, "proj-1", claims.ProjectID)
	assert.True(t, claims.HasScope("studio:generate"))
	assert.False(t, claims.HasScope("admin"))
	assert.WithinDuration(t, time.Now().Add(time.Minute), claims.ExpiresAt, 2*time.Second)
}

func TestVerify_Rejects(t *testing.T) {
	iss, err := NewIssuer("s3cret", "reelgate", time.Minute)
	require.NoError(t, err)
	token, err := iss.Mint("user-1", "", "")
	require.NoError(t, err)

	other, err := NewIssuer("different", "reelgate", time.Minute)
	require.NoError(t, err)
	_, err = other.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	wrongIssuer, err := NewIssuer("s3cret", "someone-else", time.Minute)
	require.NoError(t, err)
	_, err = wrongIssuer.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = iss.Verify("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_Expired(t *testing.T) {
	iss, err := NewIssuer("s3cret", "", time.Minute)
	require.NoError(t, err)

	iss.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, err := iss.Mint("user-1", "run-1", "")
	require.NoError(t, err)

	iss.now = time.Now
	_, err = iss.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewIssuer_RequiresSecret(t *testing.T) {
	_, err := NewIssuer("", "x", 0)
	assert.ErrorIs(t, err, ErrNoSecret)

	secret, err := RandomSecret()
	require.NoError(t, err)
	assert.Len(t, secret, 64)
}

func TestSubjectContext(t *testing.T) {
	_, ok := SubjectFromContext(context.Background())
	assert.False(t, ok)

	sub, ok := SubjectFromContext(WithSubject(context.Background(), "user-9"))
	assert.True(t, ok)
	assert.Equal(t, "user-9", sub)
}
