package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/repota/internal/models"
	appErrors "github.com/noah-isme/repota/pkg/errors"
)

type settingsProvider interface {
	Get() models.SchoolSettings
}

// StudentInput is the editable part of a StudentRecord.
type StudentInput struct {
	Name              string                `json:"name" validate:"required,max=120"`
	ClassName         string                `json:"className" validate:"required,max=60"`
	Gender            string                `json:"gender" validate:"omitempty,oneof=Male Female"`
	DateOfBirth       string                `json:"dateOfBirth" validate:"omitempty,datetime=2006-01-02"`
	AttendancePresent *int                  `json:"attendancePresent" validate:"omitempty,gte=0"`
	Conduct           string                `json:"conduct"`
	Interest          string                `json:"interest"`
	PictureURL        string                `json:"pictureUrl"`
	Subjects          []models.SavedSubject `json:"subjects" validate:"omitempty,dive"`
}

// SubjectScoresInput changes one subject's scores. Components, when sent,
// replace the class score; a bare class score switches the subject back to
// direct entry.
type SubjectScoresInput struct {
	ClassScore           *float64                     `json:"classScore" validate:"omitempty,gte=0"`
	ExamScore            *float64                     `json:"examScore" validate:"omitempty,gte=0"`
	ClassScoreComponents []models.ClassScoreComponent `json:"classScoreComponents" validate:"omitempty,dive"`
}

type trashedStudent struct {
	record    models.StudentRecord
	index     int
	deletedAt time.Time
}

// StudentService owns the in-memory roster. Every mutation hands a full
// snapshot to the students autosave coordinator.
type StudentService struct {
	store      snapshotReader
	autosave   snapshotSink
	settings   settingsProvider
	validator  *validator.Validate
	logger     *zap.Logger
	undoWindow time.Duration
	now        func() time.Time
	newID      func() string

	mu       sync.RWMutex
	students []models.StudentRecord
	trash    map[string]trashedStudent
}

// NewStudentService constructs the roster service.
func NewStudentService(store snapshotReader, autosave snapshotSink, settings settingsProvider, validate *validator.Validate, undoWindow time.Duration, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if undoWindow <= 0 {
		undoWindow = 10 * time.Second
	}
	return &StudentService{
		store:      store,
		autosave:   autosave,
		settings:   settings,
		validator:  validate,
		logger:     logger,
		undoWindow: undoWindow,
		now:        time.Now,
		newID:      func() string { return uuid.NewString() },
		students:   []models.StudentRecord{},
		trash:      make(map[string]trashedStudent),
	}
}

// Load reads the persisted roster. It reports how many students were found
// and whether the key existed at all.
func (s *StudentService) Load(ctx context.Context) (int, bool) {
	var stored []models.StudentRecord
	if !s.store.Get(ctx, models.KeyStudents, &stored) {
		return 0, false
	}
	if stored == nil {
		stored = []models.StudentRecord{}
	}
	s.mu.Lock()
	s.students = stored
	s.mu.Unlock()
	return len(stored), true
}

// List returns the roster, optionally restricted to one class.
func (s *StudentService) List(className string) []models.StudentRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.StudentRecord, 0, len(s.students))
	for _, student := range s.students {
		if className != "" && !sameClass(student.ClassName, className) {
			continue
		}
		out = append(out, student.Clone())
	}
	return out
}

// Get returns one student.
func (s *StudentService) Get(id string) (models.StudentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.indexOf(id)
	if idx < 0 {
		return models.StudentRecord{}, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	return s.students[idx].Clone(), nil
}

// Add creates a student. Without subjects the settings' default subjects are
// seeded, including their configured SBA components.
func (s *StudentService) Add(_ context.Context, input StudentInput) (models.StudentRecord, error) {
	if err := s.validator.Struct(input); err != nil {
		return models.StudentRecord{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	settings := s.currentSettings()

	record := s.recordFromInput(s.newID(), input, settings)
	if len(input.Subjects) == 0 {
		record.Subjects = s.defaultSubjects(settings)
	}

	s.mu.Lock()
	s.students = append(s.students, record)
	snapshot := models.CloneStudents(s.students)
	s.mu.Unlock()

	s.persist(snapshot)
	return record.Clone(), nil
}

// Update replaces a student's editable fields. Subjects are only replaced
// when the input carries some.
func (s *StudentService) Update(_ context.Context, id string, input StudentInput) (models.StudentRecord, error) {
	if err := s.validator.Struct(input); err != nil {
		return models.StudentRecord{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	settings := s.currentSettings()

	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return models.StudentRecord{}, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	record := s.recordFromInput(id, input, settings)
	if len(input.Subjects) == 0 {
		record.Subjects = s.students[idx].Clone().Subjects
	}
	s.students[idx] = record
	snapshot := models.CloneStudents(s.students)
	s.mu.Unlock()

	s.persist(snapshot)
	return record.Clone(), nil
}

// UpdateSubject changes the scores of one subject.
func (s *StudentService) UpdateSubject(_ context.Context, id, subjectID string, input SubjectScoresInput) (models.StudentRecord, error) {
	if err := s.validator.Struct(input); err != nil {
		return models.StudentRecord{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}
	settings := s.currentSettings()

	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return models.StudentRecord{}, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	record := s.students[idx].Clone()
	subjectIdx := -1
	for i, subject := range record.Subjects {
		if subject.ID == subjectID {
			subjectIdx = i
			break
		}
	}
	if subjectIdx < 0 {
		s.mu.Unlock()
		return models.StudentRecord{}, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
	}

	subject := record.Subjects[subjectIdx]
	switch {
	case input.ClassScoreComponents != nil:
		subject.ClassScoreComponents = append([]models.ClassScoreComponent(nil), input.ClassScoreComponents...)
	case input.ClassScore != nil:
		subject.ClassScoreComponents = nil
		subject.ClassScore = *input.ClassScore
	}
	if input.ExamScore != nil {
		subject.ExamScore = *input.ExamScore
	}
	record.Subjects[subjectIdx] = s.normalizeSubject(subject, settings)

	s.students[idx] = record
	snapshot := models.CloneStudents(s.students)
	s.mu.Unlock()

	s.persist(snapshot)
	return record.Clone(), nil
}

// Delete removes a student. The record can be restored with Undo until the
// undo window passes.
func (s *StudentService) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	now := s.now()
	s.purgeTrash(now)
	s.trash[id] = trashedStudent{record: s.students[idx], index: idx, deletedAt: now}
	s.students = append(s.students[:idx:idx], s.students[idx+1:]...)
	snapshot := models.CloneStudents(s.students)
	s.mu.Unlock()

	s.persist(snapshot)
	return nil
}

// Undo restores a deleted student at its previous position.
func (s *StudentService) Undo(_ context.Context, id string) (models.StudentRecord, error) {
	s.mu.Lock()
	entry, ok := s.trash[id]
	if !ok {
		s.mu.Unlock()
		return models.StudentRecord{}, appErrors.Clone(appErrors.ErrNotFound, "no deleted student with that id")
	}
	delete(s.trash, id)
	if s.now().Sub(entry.deletedAt) > s.undoWindow {
		s.mu.Unlock()
		return models.StudentRecord{}, appErrors.ErrUndoExpired
	}
	if s.indexOf(id) >= 0 {
		s.mu.Unlock()
		return models.StudentRecord{}, appErrors.Clone(appErrors.ErrConflict, "student already present")
	}
	idx := entry.index
	if idx > len(s.students) {
		idx = len(s.students)
	}
	s.students = append(s.students, models.StudentRecord{})
	copy(s.students[idx+1:], s.students[idx:])
	s.students[idx] = entry.record
	snapshot := models.CloneStudents(s.students)
	s.mu.Unlock()

	s.persist(snapshot)
	return entry.record.Clone(), nil
}

// Replace swaps the whole roster, as an import does. Records are validated
// and their component-derived class scores recomputed.
func (s *StudentService) Replace(_ context.Context, records []models.StudentRecord) error {
	settings := s.currentSettings()
	next := make([]models.StudentRecord, 0, len(records))
	for _, record := range records {
		if err := s.validator.Struct(record); err != nil {
			return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student record")
		}
		record = record.Clone()
		if strings.TrimSpace(record.ID) == "" {
			record.ID = s.newID()
		}
		for i := range record.Subjects {
			record.Subjects[i] = s.normalizeSubject(record.Subjects[i], settings)
		}
		next = append(next, record)
	}

	s.mu.Lock()
	s.students = next
	s.trash = make(map[string]trashedStudent)
	snapshot := models.CloneStudents(s.students)
	s.mu.Unlock()

	s.persist(snapshot)
	return nil
}

// SettingsChanged re-derives component-based class scores when the class
// score maximum changes, keeping every stored class score in step with its
// components.
func (s *StudentService) SettingsChanged(_ context.Context, prev, next models.SchoolSettings) {
	if prev.ClassScoreMax == next.ClassScoreMax {
		return
	}

	s.mu.Lock()
	changed := 0
	for i, record := range s.students {
		derived := withDerivedClassScores(record, next.ClassScoreMax)
		for j := range derived.Subjects {
			if derived.Subjects[j].ClassScore != record.Subjects[j].ClassScore {
				changed++
			}
		}
		s.students[i] = derived
	}
	for id, entry := range s.trash {
		entry.record = withDerivedClassScores(entry.record, next.ClassScoreMax)
		s.trash[id] = entry
	}
	var snapshot []models.StudentRecord
	if changed > 0 {
		snapshot = models.CloneStudents(s.students)
	}
	s.mu.Unlock()

	if snapshot == nil {
		return
	}
	s.logger.Info("class scores re-derived for new class score maximum",
		zap.Float64("class_score_max", next.ClassScoreMax),
		zap.Int("subjects", changed),
	)
	s.persist(snapshot)
}

// Snapshot returns a deep copy of the whole roster.
func (s *StudentService) Snapshot() []models.StudentRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.CloneStudents(s.students)
}

func (s *StudentService) recordFromInput(id string, input StudentInput, settings models.SchoolSettings) models.StudentRecord {
	record := models.StudentRecord{
		ID:                id,
		Name:              strings.TrimSpace(input.Name),
		ClassName:         strings.TrimSpace(input.ClassName),
		Gender:            input.Gender,
		DateOfBirth:       input.DateOfBirth,
		AttendancePresent: input.AttendancePresent,
		Conduct:           input.Conduct,
		Interest:          input.Interest,
		PictureURL:        input.PictureURL,
	}
	record.Subjects = make([]models.SavedSubject, 0, len(input.Subjects))
	for _, subject := range input.Subjects {
		record.Subjects = append(record.Subjects, s.normalizeSubject(subject, settings))
	}
	return record.Clone()
}

func (s *StudentService) defaultSubjects(settings models.SchoolSettings) []models.SavedSubject {
	library := make(map[string]models.ComponentTemplate, len(settings.ComponentLibrary))
	for _, template := range settings.ComponentLibrary {
		library[template.ID] = template
	}
	subjects := make([]models.SavedSubject, 0, len(settings.DefaultSubjects))
	for _, name := range settings.DefaultSubjects {
		subject := models.SavedSubject{ID: s.newID(), Name: name}
		for _, componentID := range settings.SubjectComponentMap[name] {
			template, ok := library[componentID]
			if !ok {
				continue
			}
			subject.ClassScoreComponents = append(subject.ClassScoreComponents, models.ClassScoreComponent{
				ID:       s.newID(),
				Name:     template.Name,
				MaxScore: template.MaxScore,
				Category: template.Category,
			})
		}
		subjects = append(subjects, subject)
	}
	return subjects
}

// normalizeSubject fills missing ids and keeps a component-based class
// score in step with its components.
func (s *StudentService) normalizeSubject(subject models.SavedSubject, settings models.SchoolSettings) models.SavedSubject {
	if subject.ID == "" {
		subject.ID = s.newID()
	}
	subject.Name = strings.TrimSpace(subject.Name)
	if !subject.UsesComponents() {
		subject.ClassScoreComponents = nil
		return subject
	}
	components := make([]models.ClassScoreComponent, len(subject.ClassScoreComponents))
	for i, component := range subject.ClassScoreComponents {
		if component.ID == "" {
			component.ID = s.newID()
		}
		components[i] = component
	}
	subject.ClassScoreComponents = components
	subject.ClassScore = ClassScoreFromComponents(components, settings.ClassScoreMax)
	return subject
}

func (s *StudentService) currentSettings() models.SchoolSettings {
	if s.settings == nil {
		return models.DefaultSettings()
	}
	return s.settings.Get()
}

func (s *StudentService) indexOf(id string) int {
	for i, student := range s.students {
		if student.ID == id {
			return i
		}
	}
	return -1
}

func (s *StudentService) purgeTrash(now time.Time) {
	for id, entry := range s.trash {
		if now.Sub(entry.deletedAt) > s.undoWindow {
			delete(s.trash, id)
		}
	}
}

func (s *StudentService) persist(snapshot []models.StudentRecord) {
	if s.autosave == nil {
		return
	}
	if err := s.autosave.Update(snapshot); err != nil {
		s.logger.Warn("roster autosave rejected", zap.Error(err))
	}
}
