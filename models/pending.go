package models

import (
	"encoding/json"
	"time"
)

// PendingAuthorization überbrückt den Redirect-Hop zwischen ORCID-Leg und
// AT-Proto-Leg. Key ist der gepackte State-String; geht die Zeile verloren,
// muss der Nutzer beim ORCID-Schritt neu anfangen.
type PendingAuthorization struct {
	Key     string `json:"key" gorm:"primaryKey;column:key"`
	OrcidID string `json:"orcid_id" gorm:"index"`
	Handle  string `json:"handle"`

	// Profile ist das serialisierte AcademicProfile, das durch den State
	// geschleust wird (zusätzlich serverseitig abgelegt).
	Profile json.RawMessage `json:"profile,omitempty" gorm:"type:jsonb"`

	Timestamp time.Time `json:"timestamp"`
	// TTL ist advisory (Unix-Sekunden): der Cron-Sweep räumt ab, Leser prüfen trotzdem.
	TTL int64 `json:"ttl"`
}

// Expired meldet, ob die advisory TTL überschritten ist.
func (p *PendingAuthorization) Expired(now time.Time) bool {
	return p.TTL > 0 && now.Unix() > p.TTL
}

// SessionRecord ist ein Eintrag im Session-Namespace: flacher key→JSON-Speicher
// für AT-Proto-Sessiondokumente, gekeyed per DID.
type SessionRecord struct {
	Key       string          `json:"key" gorm:"primaryKey;column:key"`
	Document  json.RawMessage `json:"document" gorm:"type:jsonb"`
	Timestamp time.Time       `json:"timestamp"`
}
