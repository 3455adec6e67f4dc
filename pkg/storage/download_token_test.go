package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloadSignerRoundTrip(t *testing.T) {
	signer := NewDownloadSigner("secret", time.Hour)
	token, expiresAt, err := signer.Sign("rep-1", "reports/rep-1/broadsheet.pdf")
	require.NoError(t, err)

	grant, err := signer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "rep-1", grant.ReportID)
	assert.Equal(t, "reports/rep-1/broadsheet.pdf", grant.File)
	assert.True(t, expiresAt.Equal(grant.ExpiresAt))
}

func TestDownloadSignerExpired(t *testing.T) {
	signer := NewDownloadSigner("secret", time.Minute)
	now := time.Now()
	signer.now = func() time.Time { return now }
	token, _, err := signer.Sign("rep-1", "a.csv")
	require.NoError(t, err)

	signer.now = func() time.Time { return now.Add(2 * time.Minute) }
	grant, err := signer.Verify(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.Equal(t, "rep-1", grant.ReportID)
}

func TestDownloadSignerRejectsTampering(t *testing.T) {
	signer := NewDownloadSigner("secret", time.Hour)
	token, _, err := signer.Sign("rep-1", "a.csv")
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	parts[0] = "rep-2"
	_, err = signer.Verify(strings.Join(parts, "."))
	assert.ErrorIs(t, err, ErrTokenSignature)

	_, err = NewDownloadSigner("other", time.Hour).Verify(token)
	assert.ErrorIs(t, err, ErrTokenSignature)

	_, err = signer.Verify("garbage")
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestDownloadSignerRequiresInputs(t *testing.T) {
	_, _, err := NewDownloadSigner("", time.Hour).Sign("rep-1", "a.csv")
	assert.Error(t, err)
	_, _, err = NewDownloadSigner("s", time.Hour).Sign("", "a.csv")
	assert.Error(t, err)
}
