// Package storage enthält die Persistenzschicht: die drei Namespaces
// (pending, sessions, verifications) hinter schmalen Interfaces, backed
// durch GORM/PostgreSQL, plus den S3-Export.
package storage

import (
	"errors"
	"time"

	"bsky-verifier/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound wird zurückgegeben, wenn ein Schlüssel in keinem Namespace existiert.
var ErrNotFound = errors.New("record not found")

// PendingStore verwaltet den pending-authorization-Namespace. Schlüssel ist
// der vollständige gepackte State-String.
type PendingStore interface {
	PutPending(p *models.PendingAuthorization) error
	GetPending(key string) (*models.PendingAuthorization, error)
	DeletePending(key string) error
	DeleteExpiredPending(now time.Time) (int64, error)
}

// SessionStore verwaltet den Session-Namespace (AT-Proto-Sessions, per DID).
type SessionStore interface {
	PutSession(key string, document []byte) error
	GetSession(key string) (*models.SessionRecord, error)
	DeleteSession(key string) error
}

// VerificationStore verwaltet die Verifikations-Records (per ORCID iD, mit
// Handle als Sekundärindex). Schreiben ist immer ein Upsert.
type VerificationStore interface {
	PutVerification(v *models.VerificationRecord) error
	GetVerification(orcidID string) (*models.VerificationRecord, error)
	GetVerificationByHandle(handle string) (*models.VerificationRecord, error)
}

// Store bündelt alle drei Namespaces über eine GORM-Verbindung.
type Store struct {
	DB *gorm.DB
}

// NewStore erstellt einen Store und migriert die Tabellen.
func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(
		&models.PendingAuthorization{},
		&models.SessionRecord{},
		&models.VerificationRecord{},
	); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// PutPending schreibt eine Pending-Authorization. Ein zweiter Start mit
// demselben State überschreibt die Zeile (last write wins).
func (s *Store) PutPending(p *models.PendingAuthorization) error {
	return s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		UpdateAll: true,
	}).Create(p).Error
}

// GetPending liest eine Pending-Authorization per gepacktem State.
func (s *Store) GetPending(key string) (*models.PendingAuthorization, error) {
	var p models.PendingAuthorization
	err := s.DB.Where("key = ?", key).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// DeletePending entfernt eine Pending-Authorization nach Abschluss des Flows.
func (s *Store) DeletePending(key string) error {
	return s.DB.Where("key = ?", key).Delete(&models.PendingAuthorization{}).Error
}

// DeleteExpiredPending räumt alle Zeilen mit überschrittener TTL ab und gibt
// die Anzahl zurück. Wird vom Cron-Sweep aufgerufen.
func (s *Store) DeleteExpiredPending(now time.Time) (int64, error) {
	res := s.DB.Where("ttl > 0 AND ttl < ?", now.Unix()).Delete(&models.PendingAuthorization{})
	return res.RowsAffected, res.Error
}

// PutSession schreibt ein Session-Dokument (Upsert per Key).
func (s *Store) PutSession(key string, document []byte) error {
	rec := &models.SessionRecord{
		Key:       key,
		Document:  document,
		Timestamp: time.Now(),
	}
	return s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		UpdateAll: true,
	}).Create(rec).Error
}

// GetSession liest ein Session-Dokument per Key.
func (s *Store) GetSession(key string) (*models.SessionRecord, error) {
	var rec models.SessionRecord
	err := s.DB.Where("key = ?", key).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// DeleteSession entfernt ein Session-Dokument.
func (s *Store) DeleteSession(key string) error {
	return s.DB.Where("key = ?", key).Delete(&models.SessionRecord{}).Error
}

// PutVerification schreibt einen Verifikations-Record (Upsert per ORCID iD).
func (s *Store) PutVerification(v *models.VerificationRecord) error {
	return s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "orcid_id"}},
		UpdateAll: true,
	}).Create(v).Error
}

// GetVerification liest einen Verifikations-Record per ORCID iD.
func (s *Store) GetVerification(orcidID string) (*models.VerificationRecord, error) {
	var v models.VerificationRecord
	err := s.DB.Where("orcid_id = ?", orcidID).First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// GetVerificationByHandle liest den jüngsten Record für ein Bluesky-Handle.
// Mehrere ORCID iDs können dasselbe Handle beansprucht haben.
func (s *Store) GetVerificationByHandle(handle string) (*models.VerificationRecord, error) {
	var v models.VerificationRecord
	err := s.DB.Where("bluesky_handle = ?", handle).Order("updated_at DESC").First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}
