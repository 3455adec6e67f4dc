package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/repota/internal/models"
	"github.com/noah-isme/repota/pkg/backup"
	appErrors "github.com/noah-isme/repota/pkg/errors"
)

type rosterReplacer interface {
	Snapshot() []models.StudentRecord
	Replace(ctx context.Context, records []models.StudentRecord) error
}

type settingsReplacer interface {
	Get() models.SchoolSettings
	Replace(ctx context.Context, settings models.SchoolSettings) error
}

type flusher interface {
	Flush(ctx context.Context) error
}

// BackupFile is a rendered backup ready to hand to the user.
type BackupFile struct {
	Filename  string `json:"filename"`
	Encrypted bool   `json:"encrypted"`
	Body      []byte `json:"-"`
}

// ImportSummary describes a completed import.
type ImportSummary struct {
	Students         int       `json:"students"`
	SettingsImported bool      `json:"settingsImported"`
	Encrypted        bool      `json:"encrypted"`
	ExportDate       time.Time `json:"exportDate"`
}

// BackupService exports and imports whole-device backups.
type BackupService struct {
	roster    rosterReplacer
	settings  settingsReplacer
	flushers  []flusher
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewBackupService constructs the backup service. flushers are flushed after
// an import so the restored data is on disk before the call returns.
func NewBackupService(roster rosterReplacer, settings settingsReplacer, validate *validator.Validate, logger *zap.Logger, flushers ...flusher) *BackupService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BackupService{
		roster:    roster,
		settings:  settings,
		flushers:  flushers,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// Export renders the roster and settings. A non-empty password seals the
// file; hint is stored beside the ciphertext in the clear.
func (s *BackupService) Export(_ context.Context, password, hint string) (*BackupFile, error) {
	now := s.now().UTC()
	settings := s.settings.Get()
	payload := models.BackupPayload{
		Version:    models.BackupVersion,
		ExportDate: now,
		Students:   s.roster.Snapshot(),
		Settings:   &settings,
	}
	file := &BackupFile{Filename: fmt.Sprintf("repota-backup-%s.json", now.Format("2006-01-02"))}

	var (
		body []byte
		err  error
	)
	if password == "" {
		body, err = json.MarshalIndent(payload, "", "  ")
	} else {
		var sealed *backup.EncryptedFile
		sealed, err = backup.EncryptJSON(payload, password, hint)
		if err == nil {
			body, err = json.Marshal(sealed)
		}
		file.Encrypted = true
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build backup")
	}
	file.Body = body
	s.logger.Info("backup exported", zap.Int("students", len(payload.Students)), zap.Bool("encrypted", file.Encrypted))
	return file, nil
}

// Import restores a backup produced by Export. Nothing is replaced unless
// the whole file is readable and valid.
func (s *BackupService) Import(ctx context.Context, raw []byte, password string) (*ImportSummary, error) {
	raw = bytes.TrimSpace(raw)
	summary := &ImportSummary{}

	plaintext := raw
	if backup.IsEncryptedFile(raw) {
		summary.Encrypted = true
		sealed, err := backup.ParseEncryptedFile(raw)
		if err != nil {
			return nil, classifyBackupError(err)
		}
		if password == "" {
			msg := appErrors.ErrPasswordRequired.Message
			if sealed.Hint != "" {
				msg = fmt.Sprintf("%s (hint: %s)", msg, sealed.Hint)
			}
			return nil, appErrors.Clone(appErrors.ErrPasswordRequired, msg)
		}
		plaintext, err = backup.Decrypt(sealed, password)
		if err != nil {
			return nil, classifyBackupError(err)
		}
	}

	var payload struct {
		Version    string                  `json:"version"`
		ExportDate time.Time               `json:"exportDate"`
		Students   *[]models.StudentRecord `json:"students"`
		Settings   *models.SchoolSettings  `json:"settings"`
	}
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrCorruptBackup.Code, appErrors.ErrCorruptBackup.Status, appErrors.ErrCorruptBackup.Message)
	}
	if payload.Version != models.BackupVersion {
		return nil, appErrors.Clone(appErrors.ErrUnsupportedBackup, fmt.Sprintf("backup version %q is not supported", payload.Version))
	}
	if payload.Students == nil {
		return nil, appErrors.Clone(appErrors.ErrCorruptBackup, "backup file has no students")
	}

	students := *payload.Students
	for _, record := range students {
		if err := s.validator.Struct(record); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrCorruptBackup.Code, appErrors.ErrCorruptBackup.Status, "backup contains an invalid student record")
		}
	}
	if payload.Settings != nil {
		settings := withSettingsDefaults(*payload.Settings)
		settings.Level = models.ParseSchoolLevel(string(settings.Level))
		if err := s.validator.Struct(settings); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrCorruptBackup.Code, appErrors.ErrCorruptBackup.Status, "backup contains invalid settings")
		}
		if err := s.settings.Replace(ctx, settings); err != nil {
			return nil, err
		}
		summary.SettingsImported = true
	}
	if err := s.roster.Replace(ctx, students); err != nil {
		return nil, err
	}

	for _, f := range s.flushers {
		if err := f.Flush(ctx); err != nil {
			return nil, StorageError(err, "failed to save imported data")
		}
	}

	summary.Students = len(students)
	summary.ExportDate = payload.ExportDate
	s.logger.Info("backup imported", zap.Int("students", summary.Students), zap.Bool("encrypted", summary.Encrypted))
	return summary, nil
}

func classifyBackupError(err error) error {
	switch {
	case errors.Is(err, backup.ErrWrongPassword):
		return appErrors.Wrap(err, appErrors.ErrWrongPassword.Code, appErrors.ErrWrongPassword.Status, appErrors.ErrWrongPassword.Message)
	case errors.Is(err, backup.ErrUnsupportedVersion):
		return appErrors.Wrap(err, appErrors.ErrUnsupportedBackup.Code, appErrors.ErrUnsupportedBackup.Status, appErrors.ErrUnsupportedBackup.Message)
	case errors.Is(err, backup.ErrEmptyPassword):
		return appErrors.ErrPasswordRequired
	default:
		return appErrors.Wrap(err, appErrors.ErrCorruptBackup.Code, appErrors.ErrCorruptBackup.Status, appErrors.ErrCorruptBackup.Message)
	}
}
