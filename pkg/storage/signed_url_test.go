package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignedURLRoundTrip(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)

	token, expiresAt, err := signer.Generate("mat-1", "c-1/file.pdf")
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	materialID, relPath, parsedExpiry, err := signer.Parse(token, false)
	require.NoError(t, err)
	assert.Equal(t, "mat-1", materialID)
	assert.Equal(t, "c-1/file.pdf", relPath)
	assert.Equal(t, expiresAt.Unix(), parsedExpiry.Unix())
}

func TestSignedURLTamperedSignature(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)
	token, _, err := signer.Generate("mat-1", "c-1/file.pdf")
	require.NoError(t, err)

	_, _, _, err = signer.Parse(token+"ff", false)
	assert.Error(t, err)
}

func TestSignedURLWrongSecret(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)
	other := NewSignedURLSigner("other", time.Minute)

	token, _, err := signer.Generate("mat-1", "c-1/file.pdf")
	require.NoError(t, err)

	_, _, _, err = other.Parse(token, false)
	assert.Error(t, err)
}

func TestSignedURLExpired(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Nanosecond)
	token, _, err := signer.Generate("mat-1", "c-1/file.pdf")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	_, _, _, err = signer.Parse(token, false)
	assert.Error(t, err)

	// Cleanup paths still need to resolve expired tokens.
	materialID, _, _, err := signer.Parse(token, true)
	require.NoError(t, err)
	assert.Equal(t, "mat-1", materialID)
}

func TestSignedURLMalformed(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)
	_, _, _, err := signer.Parse("not-a-token", false)
	assert.Error(t, err)
}
