package services

import (
	"fmt"

	"bsky-verifier/models"
	"bsky-verifier/providers"
	"bsky-verifier/providers/orcid"

	"go.uber.org/zap"
)

// ProfileService baut das akademische Profil aus der ORCID-API auf und lässt
// es von den konfigurierten Enrichern ergänzen.
type ProfileService struct {
	Orcid     *orcid.Fetcher
	Enrichers []providers.Enricher
	Logger    *zap.Logger
}

// NewProfileService erstellt einen ProfileService.
func NewProfileService(fetcher *orcid.Fetcher, enrichers []providers.Enricher, logger *zap.Logger) *ProfileService {
	return &ProfileService{Orcid: fetcher, Enrichers: enrichers, Logger: logger}
}

// Build holt Person, Affiliations und Works für eine ORCID iD. Der Person-Record
// ist Pflicht, alle anderen Quellen degradieren zu leeren Feldern. Enricher
// laufen danach, ihre Fehler werden nur geloggt.
func (s *ProfileService) Build(orcidID string) (*models.AcademicProfile, error) {
	log := s.Logger.With(zap.String("orcid_id", orcidID))

	name, err := s.Orcid.FetchPerson(orcidID)
	if err != nil {
		return nil, fmt.Errorf("fehler beim Aufbau des Profils für %s: %w", orcidID, err)
	}

	profile := &models.AcademicProfile{
		OrcidID:          orcidID,
		Name:             name,
		PublicationYears: []int{},
	}

	if institutions, err := s.Orcid.FetchInstitutions(orcidID); err != nil {
		log.Warn("Affiliations nicht abrufbar, fahre ohne fort", zap.Error(err))
	} else {
		profile.Institutions = institutions
	}

	if works, err := s.Orcid.FetchWorks(orcidID); err != nil {
		log.Warn("Works nicht abrufbar, fahre ohne fort", zap.Error(err))
	} else {
		profile.NumPublications = works.NumPublications
		if len(works.PublicationYears) > 0 {
			profile.PublicationYears = works.PublicationYears
		}
		profile.PublicationTypes = works.PublicationTypes
		profile.PublicationTitles = works.PublicationTitles
		profile.PublicationJournals = works.PublicationJournals
	}

	for _, enricher := range s.Enrichers {
		if err := enricher.Enrich(orcidID, profile); err != nil {
			log.Warn("Enricher fehlgeschlagen, Profil bleibt unangereichert",
				zap.String("enricher", enricher.Name()), zap.Error(err))
		}
	}

	log.Info("Profil aufgebaut",
		zap.String("name", profile.Name),
		zap.Int("num_publications", profile.NumPublications),
		zap.Int("institutions", len(profile.Institutions)))
	return profile, nil
}
