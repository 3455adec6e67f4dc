package models

import (
	"encoding/json"
	"time"
)

// BackupVersion is the only plaintext backup format this build reads and writes.
const BackupVersion = "1.0"

// Storage keys shared by every backend.
const (
	KeyStudents = "students"
	KeySettings = "settings"
)

// BackupPayload is the plaintext export file body.
type BackupPayload struct {
	Version    string          `json:"version"`
	ExportDate time.Time       `json:"exportDate"`
	Students   []StudentRecord `json:"students"`
	Settings   *SchoolSettings `json:"settings,omitempty"`
}

// MigrationResult describes one legacy-to-primary migration attempt.
type MigrationResult struct {
	Success          bool   `json:"success"`
	StudentsCount    *int   `json:"studentsCount,omitempty"`
	SettingsMigrated bool   `json:"settingsMigrated,omitempty"`
	Error            string `json:"error,omitempty"`
}

// BootReport summarises the startup sequence for the UI.
type BootReport struct {
	Backend           string           `json:"backend"`
	Migration         *MigrationResult `json:"migration,omitempty"`
	DataLossSuspected bool             `json:"dataLossSuspected"`
	LastHeartbeat     *time.Time       `json:"lastHeartbeat,omitempty"`
	StudentsLoaded    int              `json:"studentsLoaded"`
	SettingsLoaded    bool             `json:"settingsLoaded"`
}

// SaveStatus exposes one autosave coordinator's state.
type SaveStatus struct {
	Key       string     `json:"key"`
	IsSaving  bool       `json:"isSaving"`
	LastSaved *time.Time `json:"lastSaved,omitempty"`
	LastError string     `json:"lastError,omitempty"`
}

// StorageStatus is returned by the storage status endpoint.
type StorageStatus struct {
	Backend string       `json:"backend"`
	Boot    *BootReport  `json:"boot,omitempty"`
	Saves   []SaveStatus `json:"saves"`
}

// ImportFile is the body of an import request.
type ImportFile struct {
	File     json.RawMessage `json:"file"`
	Password string          `json:"password,omitempty"`
}
