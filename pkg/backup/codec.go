// Package backup seals gradebook exports with a password.
//
// A sealed file is JSON: the key is derived with PBKDF2-SHA256 over a random
// 16-byte salt, and the payload is encrypted with AES-256-GCM under a random
// 12-byte nonce. Binary fields are standard base64.
package backup

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// FormatVersion is the only sealed-file version this package writes or reads.
	FormatVersion = 1

	Iterations = 100000
	SaltSize   = 16
	NonceSize  = 12
	KeySize    = 32
)

var (
	// ErrWrongPassword means authentication failed. A tampered file is
	// indistinguishable from a wrong password.
	ErrWrongPassword = errors.New("backup: incorrect password or corrupted file")
	// ErrCorruptFile means the envelope itself could not be parsed.
	ErrCorruptFile = errors.New("backup: file is corrupted or not an encrypted backup")
	// ErrUnsupportedVersion means the envelope has a version this build cannot read.
	ErrUnsupportedVersion = errors.New("backup: unsupported encrypted file version")
	// ErrEmptyPassword rejects blank passwords.
	ErrEmptyPassword = errors.New("backup: password required")
)

// EncryptedFile is the on-disk envelope.
type EncryptedFile struct {
	Version   int    `json:"version"`
	Encrypted bool   `json:"encrypted"`
	Salt      string `json:"salt"`
	IV        string `json:"iv"`
	Data      string `json:"data"`
	Hint      string `json:"hint,omitempty"`
}

// Codec seals and opens payloads. The zero value reads randomness from
// crypto/rand.
type Codec struct {
	Rand io.Reader
}

var defaultCodec Codec

// Encrypt seals plaintext with password. hint is stored in the clear.
func Encrypt(plaintext []byte, password, hint string) (*EncryptedFile, error) {
	return defaultCodec.Encrypt(plaintext, password, hint)
}

// Decrypt opens file with password.
func Decrypt(file *EncryptedFile, password string) ([]byte, error) {
	return defaultCodec.Decrypt(file, password)
}

// EncryptJSON marshals v and seals the result.
func EncryptJSON(v interface{}, password, hint string) (*EncryptedFile, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode backup payload: %w", err)
	}
	return Encrypt(plaintext, password, hint)
}

// DecryptJSON opens file and unmarshals the plaintext into dest. A payload
// that decrypts but does not parse is reported as ErrCorruptFile.
func DecryptJSON(file *EncryptedFile, password string, dest interface{}) error {
	plaintext, err := Decrypt(file, password)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(plaintext, dest); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptFile, err)
	}
	return nil
}

// Encrypt seals plaintext with password.
func (c Codec) Encrypt(plaintext []byte, password, hint string) (*EncryptedFile, error) {
	if password == "" {
		return nil, ErrEmptyPassword
	}
	salt := make([]byte, SaltSize)
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(c.random(), salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	if _, err := io.ReadFull(c.random(), nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	aead, err := newAEAD(password, salt)
	if err != nil {
		return nil, err
	}
	sealed := aead.Seal(nil, nonce, plaintext, nil)

	return &EncryptedFile{
		Version:   FormatVersion,
		Encrypted: true,
		Salt:      base64.StdEncoding.EncodeToString(salt),
		IV:        base64.StdEncoding.EncodeToString(nonce),
		Data:      base64.StdEncoding.EncodeToString(sealed),
		Hint:      hint,
	}, nil
}

// Decrypt opens file with password.
func (c Codec) Decrypt(file *EncryptedFile, password string) ([]byte, error) {
	if file == nil || !file.Encrypted {
		return nil, ErrCorruptFile
	}
	if file.Version != FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, file.Version)
	}
	if password == "" {
		return nil, ErrEmptyPassword
	}

	salt, err := decodeField(file.Salt, SaltSize)
	if err != nil {
		return nil, err
	}
	nonce, err := decodeField(file.IV, NonceSize)
	if err != nil {
		return nil, err
	}
	sealed, err := decodeField(file.Data, 0)
	if err != nil {
		return nil, err
	}

	aead, err := newAEAD(password, salt)
	if err != nil {
		return nil, err
	}
	if len(sealed) < aead.Overhead() {
		return nil, ErrCorruptFile
	}
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrWrongPassword
	}
	return plaintext, nil
}

func (c Codec) random() io.Reader {
	if c.Rand != nil {
		return c.Rand
	}
	return rand.Reader
}

// IsEncryptedFile reports whether raw is a sealed envelope rather than a
// plaintext backup.
func IsEncryptedFile(raw []byte) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return false
	}
	var probe struct {
		Encrypted *bool   `json:"encrypted"`
		Salt      *string `json:"salt"`
		IV        *string `json:"iv"`
		Data      *string `json:"data"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	return probe.Encrypted != nil && *probe.Encrypted &&
		probe.Salt != nil && probe.IV != nil && probe.Data != nil
}

// ParseEncryptedFile decodes a sealed envelope and rejects versions this
// build cannot open.
func ParseEncryptedFile(raw []byte) (*EncryptedFile, error) {
	if !IsEncryptedFile(raw) {
		return nil, ErrCorruptFile
	}
	var file EncryptedFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptFile, err)
	}
	if file.Version != FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, file.Version)
	}
	return &file, nil
}

func newAEAD(password string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, Iterations, KeySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return aead, nil
}

// decodeField base64-decodes a field; size > 0 enforces an exact length.
func decodeField(value string, size int) ([]byte, error) {
	if value == "" {
		return nil, ErrCorruptFile
	}
	out, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptFile, err)
	}
	if size > 0 && len(out) != size {
		return nil, ErrCorruptFile
	}
	return out, nil
}
