package models

import (
	"encoding/json"
	"time"
)

// Status-Werte eines VerificationRecord. `verified` wird erst gesetzt, wenn
// beide Token-Exchanges (ORCID und AT-Proto) unabhängig erfolgreich waren.
const (
	StatusPendingBluesky = "pending_bluesky"
	StatusVerified       = "verified"
	StatusFailed         = "failed"
)

// VerificationRecord ist das dauerhafte Ergebnis einer abgeschlossenen (oder
// halb abgeschlossenen) Verifikation. Primärer Schlüssel ist die ORCID iD,
// der Bluesky-Handle dient als Sekundärindex.
type VerificationRecord struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	OrcidID       string `json:"orcid_id" gorm:"column:orcid_id;uniqueIndex;not null"`
	BlueskyHandle string `json:"bluesky_handle,omitempty" gorm:"index"`
	BlueskyDID    string `json:"bluesky_did,omitempty" gorm:"column:bluesky_did"`

	Name            string `json:"name,omitempty"`
	NumPublications int    `json:"num_publications"`
	Status          string `json:"status" gorm:"index"`

	// Profile ist das serialisierte AcademicProfile-Dokument.
	Profile json.RawMessage `json:"profile,omitempty" gorm:"type:jsonb"`

	// Session enthält das Token-Material der AT-Proto-Session. Wird persistiert,
	// weil der Labeler es später braucht; taucht in HTTP-Antworten nie auf.
	Session json.RawMessage `json:"-" gorm:"type:jsonb"`

	VerifiedAt *time.Time `json:"verified_at,omitempty"`
}

// DecodeProfile entpackt das eingebettete AcademicProfile-Dokument.
func (v *VerificationRecord) DecodeProfile() (*AcademicProfile, error) {
	var p AcademicProfile
	if len(v.Profile) == 0 {
		return &p, nil
	}
	if err := json.Unmarshal(v.Profile, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
