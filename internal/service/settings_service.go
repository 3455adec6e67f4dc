package service

import (
	"context"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/repota/internal/models"
	appErrors "github.com/noah-isme/repota/pkg/errors"
)

type snapshotReader interface {
	Get(ctx context.Context, key string, dest interface{}) bool
}

type snapshotSink interface {
	Update(value interface{}) error
}

// SettingsListener is told about every applied settings change.
type SettingsListener interface {
	SettingsChanged(ctx context.Context, prev, next models.SchoolSettings)
}

// NewValidator returns a validator with the gradebook's struct rules registered.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterStructValidation(validateSettingsSplit, models.SchoolSettings{})
	return v
}

// validateSettingsSplit requires the class and exam maxima to share 100 marks.
func validateSettingsSplit(sl validator.StructLevel) {
	settings := sl.Current().Interface().(models.SchoolSettings)
	if settings.ClassScoreMax+settings.ExamScoreMax != 100 {
		sl.ReportError(settings.ExamScoreMax, "ExamScoreMax", "examScoreMax", "split100", "")
	}
}

// SettingsService owns the device's SchoolSettings.
type SettingsService struct {
	store     snapshotReader
	autosave  snapshotSink
	validator *validator.Validate
	logger    *zap.Logger

	mu        sync.RWMutex
	settings  models.SchoolSettings
	listeners []SettingsListener
}

// NewSettingsService constructs the settings service with default settings.
func NewSettingsService(store snapshotReader, autosave snapshotSink, validate *validator.Validate, logger *zap.Logger) *SettingsService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SettingsService{
		store:     store,
		autosave:  autosave,
		validator: validate,
		logger:    logger,
		settings:  models.DefaultSettings(),
	}
}

// Load reads persisted settings, keeping defaults when none are stored or
// the stored value is invalid.
func (s *SettingsService) Load(ctx context.Context) bool {
	var stored models.SchoolSettings
	if !s.store.Get(ctx, models.KeySettings, &stored) {
		return false
	}
	stored = withSettingsDefaults(stored)
	if err := s.validator.Struct(stored); err != nil {
		s.logger.Warn("stored settings invalid, using defaults", zap.Error(err))
		return true
	}
	s.mu.Lock()
	s.settings = stored
	s.mu.Unlock()
	return true
}

// Subscribe registers l for settings changes made through Update or Replace.
func (s *SettingsService) Subscribe(l SettingsListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Get returns a copy of the current settings.
func (s *SettingsService) Get() models.SchoolSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.Clone()
}

// Update validates and applies new settings.
func (s *SettingsService) Update(ctx context.Context, next models.SchoolSettings) (models.SchoolSettings, error) {
	next.Level = models.ParseSchoolLevel(string(next.Level))
	next = withSettingsDefaults(next)
	if err := s.validator.Struct(next); err != nil {
		return models.SchoolSettings{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid settings payload")
	}
	s.mu.Lock()
	prev := s.settings.Clone()
	s.settings = next.Clone()
	listeners := append([]SettingsListener(nil), s.listeners...)
	s.mu.Unlock()
	s.persist(next)

	for _, l := range listeners {
		l.SettingsChanged(ctx, prev, next.Clone())
	}
	return next.Clone(), nil
}

// Replace is Update for imported data.
func (s *SettingsService) Replace(ctx context.Context, next models.SchoolSettings) error {
	_, err := s.Update(ctx, next)
	return err
}

func (s *SettingsService) persist(settings models.SchoolSettings) {
	if s.autosave == nil {
		return
	}
	if err := s.autosave.Update(settings.Clone()); err != nil {
		s.logger.Warn("settings autosave rejected", zap.Error(err))
	}
}

func withSettingsDefaults(settings models.SchoolSettings) models.SchoolSettings {
	if settings.DefaultSubjects == nil {
		settings.DefaultSubjects = []string{}
	}
	if settings.ComponentLibrary == nil {
		settings.ComponentLibrary = []models.ComponentTemplate{}
	}
	if settings.SubjectComponentMap == nil {
		settings.SubjectComponentMap = map[string][]string{}
	}
	return settings
}
