package providers

import "bsky-verifier/models"

// Enricher ist das Interface für sekundäre bibliographische Quellen (z.B. PubMed),
// die ein bereits aufgebautes AcademicProfile um weitere Daten anreichern.
type Enricher interface {
	// Enrich ergänzt das Profil in-place. Ein Fehler bricht den Gesamt-Fetch
	// nicht ab, sondern lässt das Profil unangereichert.
	Enrich(orcidID string, profile *models.AcademicProfile) error

	// Name gibt den eindeutigen Namen des Enrichers zurück (z.B. "pubmed").
	Name() string
}
