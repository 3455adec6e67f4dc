package storage

import (
	"errors"
	"strings"
	"syscall"
)

// sqliteFull is SQLITE_FULL; extended codes keep it in the low byte.
const sqliteFull = 13

type codedError interface {
	Code() int
}

// IsQuotaError reports whether err means storage space ran out.
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrQuotaExceeded) || errors.Is(err, syscall.ENOSPC) {
		return true
	}
	var coded codedError
	if errors.As(err, &coded) && coded.Code()&0xff == sqliteFull {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database or disk is full") ||
		strings.Contains(msg, "disk quota exceeded") ||
		strings.Contains(msg, "no space left on device")
}
