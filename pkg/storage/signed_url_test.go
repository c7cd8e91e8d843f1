package storage

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignedURLSignerGenerateAndParse(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, expiresAt, err := signer.Generate("exp-1", "stats/tribe.csv")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	grant, err := signer.Parse(token, false)
	require.NoError(t, err)
	assert.Equal(t, "exp-1", grant.Reference)
	assert.Equal(t, "stats/tribe.csv", grant.Path)
	assert.True(t, expiresAt.Equal(grant.ExpiresAt))
}

func TestSignedURLSignerExpired(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	signer.now = func() time.Time { return now }
	token, _, err := signer.Generate("exp-1", "stats/tribe.csv")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = signer.Parse(token, false)
	assert.True(t, errors.Is(err, ErrTokenExpired))

	grant, err := signer.Parse(token, true)
	require.NoError(t, err)
	assert.Equal(t, "stats/tribe.csv", grant.Path)
}

func TestSignedURLSignerRejectsTampering(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, _, err := signer.Generate("exp-1", "stats/tribe.csv")
	require.NoError(t, err)

	other := NewSignedURLSigner("other", time.Hour)
	_, err = other.Parse(token, false)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = signer.Parse("not-a-token", false)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, _, err = signer.Generate("a.b", "x.csv")
	assert.Error(t, err)
}

func TestLocalStorageLifecycle(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	name, err := store.Save("stats/report.csv", []byte("a,b\n"))
	require.NoError(t, err)
	file, err := store.Open(name)
	require.NoError(t, err)
	require.NoError(t, file.Close())

	_, err = store.Save("../escape.csv", []byte("x"))
	assert.ErrorIs(t, err, ErrOutsideBase)

	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(store.Path(name), old, old))
	deleted, err := store.CleanupOlderThan(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []string{"stats/report.csv"}, deleted)

	require.NoError(t, store.Delete(name))
}
