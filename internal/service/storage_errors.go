package service

import (
	appErrors "github.com/noah-isme/repota/pkg/errors"
	"github.com/noah-isme/repota/pkg/storage"
)

// StorageError maps a storage failure onto the API error taxonomy. Only a
// full store is surfaced as its own kind.
func StorageError(err error, message string) error {
	if storage.IsQuotaError(err) {
		return appErrors.Wrap(err, appErrors.ErrQuotaExceeded.Code, appErrors.ErrQuotaExceeded.Status, appErrors.ErrQuotaExceeded.Message)
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}
