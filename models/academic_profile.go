package models

// AcademicProfile repräsentiert das normalisierte ORCID-Profil eines Forschers,
// angereichert um den PubMed-Querverweis. Einmal zusammengebaut, wird es nicht
// mehr partiell aktualisiert.
type AcademicProfile struct {
	OrcidID             string   `json:"orcidId"`
	Name                string   `json:"name"`
	Institutions        []string `json:"institutions"`
	NumPublications     int      `json:"numPublications"`
	PublicationYears    []int    `json:"publicationYears"`
	PublicationTypes    []string `json:"publicationTypes"`
	PublicationTitles   []string `json:"publicationTitles"`
	PublicationJournals []string `json:"publicationJournals"`
	MeshTerms           []string `json:"meshTerms,omitempty"`
}
