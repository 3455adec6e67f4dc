package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrTokenMalformed = errors.New("storage: malformed download token")
	ErrTokenSignature = errors.New("storage: download token signature mismatch")
	ErrTokenExpired   = errors.New("storage: download token expired")
)

// DownloadGrant is what a download token authorises.
type DownloadGrant struct {
	ReportID  string
	File      string
	ExpiresAt time.Time
}

// DownloadSigner issues HMAC-SHA256 tokens that let a browser fetch a
// generated report without further credentials.
type DownloadSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewDownloadSigner builds a signer. A non-positive ttl means one hour.
func NewDownloadSigner(secret string, ttl time.Duration) *DownloadSigner {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &DownloadSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Sign returns a token for file, produced by report reportID.
func (s *DownloadSigner) Sign(reportID, file string) (string, time.Time, error) {
	if reportID == "" || file == "" {
		return "", time.Time{}, fmt.Errorf("report id and file required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("download signing secret missing")
	}
	expiresAt := s.now().Add(s.ttl).Truncate(time.Second)
	fields := []string{
		reportID,
		strconv.FormatInt(expiresAt.Unix(), 10),
		base64.RawURLEncoding.EncodeToString([]byte(file)),
	}
	fields = append(fields, s.mac(fields))
	return strings.Join(fields, "."), expiresAt, nil
}

// Verify checks the token's signature and expiry.
func (s *DownloadSigner) Verify(token string) (DownloadGrant, error) {
	fields := strings.Split(token, ".")
	if len(fields) != 4 {
		return DownloadGrant{}, ErrTokenMalformed
	}
	if !hmac.Equal([]byte(s.mac(fields[:3])), []byte(fields[3])) {
		return DownloadGrant{}, ErrTokenSignature
	}
	expUnix, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return DownloadGrant{}, ErrTokenMalformed
	}
	file, err := base64.RawURLEncoding.DecodeString(fields[2])
	if err != nil {
		return DownloadGrant{}, ErrTokenMalformed
	}
	grant := DownloadGrant{ReportID: fields[0], File: string(file), ExpiresAt: time.Unix(expUnix, 0)}
	if s.now().After(grant.ExpiresAt) {
		return grant, ErrTokenExpired
	}
	return grant, nil
}

func (s *DownloadSigner) mac(fields []string) string {
	h := hmac.New(sha256.New, s.secret)
	_, _ = h.Write([]byte(strings.Join(fields, "|")))
	return hex.EncodeToString(h.Sum(nil))
}
