package orcid

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"bsky-verifier/config"

	"go.uber.org/zap"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

// Fetcher kapselt die Interaktion mit der öffentlichen ORCID-API und dem
// OAuth-Token-Endpoint.
type Fetcher struct {
	Config *config.Config
	Logger *zap.Logger
}

// NewFetcher erstellt eine neue Instanz des ORCID-Fetchers.
func NewFetcher(cfg *config.Config, logger *zap.Logger) *Fetcher {
	return &Fetcher{Config: cfg, Logger: logger}
}

// ExchangeCode tauscht einen Authorization-Code gegen ein Access-Token.
// Client-Credentials gehen als Basic-Auth-Header mit, der Code als Form-Body.
func (f *Fetcher) ExchangeCode(code string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", f.Config.OrcidRedirectURI())

	req, err := http.NewRequest(http.MethodPost, f.Config.OrcidTokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(f.Config.OrcidClientID, f.Config.OrcidClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		f.Logger.Error("ORCID Token-Exchange fehlgeschlagen", zap.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("orcid token exchange failed: status %d", resp.StatusCode)
	}

	var tr TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("fehler beim Parsen der Token-Antwort: %w", err)
	}
	if tr.AccessToken == "" || tr.Orcid == "" {
		return nil, fmt.Errorf("no access token or ORCID iD in token response")
	}
	return &tr, nil
}

// FetchPerson holt den Anzeigenamen (given + family) für eine ORCID iD.
// Ein Fehler hier ist fatal für den gesamten Profil-Fetch.
func (f *Fetcher) FetchPerson(orcidID string) (string, error) {
	log := f.Logger.With(zap.String("orcid_id", orcidID))
	log.Info("Hole ORCID Person-Record.")

	var person personResponse
	if err := f.getJSON(fmt.Sprintf("%s/%s/person", f.Config.OrcidAPIURL, orcidID), &person); err != nil {
		log.Error("Person-Abruf fehlgeschlagen", zap.Error(err))
		return "", err
	}

	given := person.Name.GivenNames.Value
	family := person.Name.FamilyName.Value
	name := strings.TrimSpace(given + " " + family)
	if name == "" {
		return "", fmt.Errorf("kein Name im Person-Record für %s", orcidID)
	}
	return name, nil
}

// FetchInstitutions holt die de-duplizierten Organisationsnamen aus
// Employments und Educations.
func (f *Fetcher) FetchInstitutions(orcidID string) ([]string, error) {
	log := f.Logger.With(zap.String("orcid_id", orcidID))
	log.Debug("Hole ORCID Activities.")

	var activities activitiesResponse
	if err := f.getJSON(fmt.Sprintf("%s/%s/activities", f.Config.OrcidAPIURL, orcidID), &activities); err != nil {
		return nil, err
	}

	var institutions []string
	seen := make(map[string]bool)
	for _, section := range []affiliationSection{activities.Employments, activities.Educations} {
		for _, group := range section.AffiliationGroup {
			for _, entry := range group.Summaries {
				summary := entry.EmploymentSummary
				if summary == nil {
					summary = entry.EducationSummary
				}
				if summary == nil || summary.Organization.Name == "" {
					continue
				}
				if !seen[summary.Organization.Name] {
					seen[summary.Organization.Name] = true
					institutions = append(institutions, summary.Organization.Name)
				}
			}
		}
	}
	return institutions, nil
}

// FetchWorks holt die Publikationsliste und normalisiert sie: Jahre, Typen und
// Journals werden de-dupliziert, Titel behalten ihre Reihenfolge.
func (f *Fetcher) FetchWorks(orcidID string) (*WorksSummary, error) {
	log := f.Logger.With(zap.String("orcid_id", orcidID))
	log.Debug("Hole ORCID Works.")

	var works worksResponse
	if err := f.getJSON(fmt.Sprintf("%s/%s/works", f.Config.OrcidAPIURL, orcidID), &works); err != nil {
		return nil, err
	}

	summary := &WorksSummary{NumPublications: len(works.Group)}
	seenYears := make(map[int]bool)
	seenTypes := make(map[string]bool)
	seenJournals := make(map[string]bool)

	for _, group := range works.Group {
		if len(group.WorkSummary) == 0 {
			continue
		}
		ws := group.WorkSummary[0]

		if y := ws.PublicationDate.Year.Value; y != "" {
			if year, err := strconv.Atoi(y); err == nil && !seenYears[year] {
				seenYears[year] = true
				summary.PublicationYears = append(summary.PublicationYears, year)
			}
		}
		if ws.Type != "" && !seenTypes[ws.Type] {
			seenTypes[ws.Type] = true
			summary.PublicationTypes = append(summary.PublicationTypes, ws.Type)
		}
		if t := ws.Title.Title.Value; t != "" {
			summary.PublicationTitles = append(summary.PublicationTitles, t)
		}
		if j := ws.JournalTitle.Value; j != "" && !seenJournals[j] {
			seenJournals[j] = true
			summary.PublicationJournals = append(summary.PublicationJournals, j)
		}
		// Erste DOI pro Work reicht
		for _, extID := range group.ExternalIDs.ExternalID {
			if extID.Type == "doi" && extID.Value != "" {
				summary.DOIs = append(summary.DOIs, extID.Value)
				break
			}
		}
	}
	log.Info("ORCID Works abgeschlossen", zap.Int("num_publications", summary.NumPublications))
	return summary, nil
}

// getJSON führt einen GET gegen die ORCID-API aus und dekodiert die JSON-Antwort.
func (f *Fetcher) getJSON(rawURL string, out interface{}) error {
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("orcid api returned status %d for %s", resp.StatusCode, rawURL)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
