package pubmed

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"bsky-verifier/config"
	"bsky-verifier/models"

	"go.uber.org/zap"
)

var httpClient = &http.Client{Timeout: 60 * time.Second}

// Fetcher implementiert das Enricher-Interface für PubMed.
type Fetcher struct {
	Config *config.Config
	Logger *zap.Logger
}

// NewFetcher erstellt eine neue Instanz des PubMed-Fetchers.
func NewFetcher(cfg *config.Config, logger *zap.Logger) *Fetcher {
	return &Fetcher{Config: cfg, Logger: logger}
}

// Name gibt den Namen des Enrichers zurück.
func (f *Fetcher) Name() string {
	return "pubmed"
}

// Enrich sucht PMIDs zur ORCID iD und merged die EFetch-Metadaten in das Profil.
// Jahre, Typen und Journals werden de-dupliziert gegen den ORCID-Bestand.
func (f *Fetcher) Enrich(orcidID string, profile *models.AcademicProfile) error {
	log := f.Logger.With(zap.String("orcid_id", orcidID))
	log.Info("Starte PubMed-Querverweis.")

	pmids, err := f.searchByOrcid(orcidID)
	if err != nil {
		return fmt.Errorf("fehler bei der PubMed ID-Suche: %w", err)
	}
	if len(pmids) == 0 {
		log.Debug("Keine PMIDs für ORCID iD gefunden.")
		return nil
	}

	articles, err := f.fetchMetadata(pmids)
	if err != nil {
		return fmt.Errorf("fehler beim Holen der PubMed-Metadaten: %w", err)
	}

	seenYears := make(map[int]bool)
	for _, y := range profile.PublicationYears {
		seenYears[y] = true
	}
	seenTypes := make(map[string]bool)
	for _, t := range profile.PublicationTypes {
		seenTypes[t] = true
	}
	seenJournals := make(map[string]bool)
	for _, j := range profile.PublicationJournals {
		seenJournals[j] = true
	}
	seenTitles := make(map[string]bool)
	for _, t := range profile.PublicationTitles {
		seenTitles[t] = true
	}
	seenMesh := make(map[string]bool)
	for _, m := range profile.MeshTerms {
		seenMesh[m] = true
	}

	for _, article := range articles {
		cit := article.MedlineCitation
		if y := cit.Article.Journal.JournalIssue.PubDate.Year; y != "" {
			if year, err := strconv.Atoi(y); err == nil && !seenYears[year] {
				seenYears[year] = true
				profile.PublicationYears = append(profile.PublicationYears, year)
			}
		}
		for _, pt := range cit.Article.PublicationTypeList.PublicationType {
			if pt != "" && !seenTypes[pt] {
				seenTypes[pt] = true
				profile.PublicationTypes = append(profile.PublicationTypes, pt)
			}
		}
		if j := cit.Article.Journal.Title; j != "" && !seenJournals[j] {
			seenJournals[j] = true
			profile.PublicationJournals = append(profile.PublicationJournals, j)
		}
		if t := cit.Article.Title; t != "" && !seenTitles[t] {
			seenTitles[t] = true
			profile.PublicationTitles = append(profile.PublicationTitles, t)
		}
		for _, mh := range cit.MeshHeadingList.MeshHeading {
			if mh.DescriptorName != "" && !seenMesh[mh.DescriptorName] {
				seenMesh[mh.DescriptorName] = true
				profile.MeshTerms = append(profile.MeshTerms, mh.DescriptorName)
			}
		}
	}

	log.Info("PubMed-Querverweis abgeschlossen", zap.Int("pmids", len(pmids)), zap.Int("articles", len(articles)))
	return nil
}

// searchByOrcid führt eine ESearch-Abfrage mit dem [aid]-Feld aus.
func (f *Fetcher) searchByOrcid(orcidID string) ([]string, error) {
	term := fmt.Sprintf("%s[aid]", orcidID)
	searchURL := fmt.Sprintf("%s/esearch.fcgi?db=pubmed&term=%s&retmode=json",
		f.Config.PubMedBaseURL, url.QueryEscape(term))
	if f.Config.PubMedAPIKey != "" {
		searchURL += "&api_key=" + f.Config.PubMedAPIKey
	}
	f.Logger.Debug("Rufe ESearch-URL auf", zap.String("url", searchURL))

	resp, err := httpClient.Get(searchURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("esearch failed: status %d", resp.StatusCode)
	}

	var esearchResp ESearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&esearchResp); err != nil {
		return nil, err
	}
	return esearchResp.ESearchResult.IdList, nil
}

// fetchMetadata holt die Metadaten für eine PMID-Liste in einem einzigen EFetch-Call.
func (f *Fetcher) fetchMetadata(pmids []string) ([]PubmedArticle, error) {
	efetchURL := fmt.Sprintf("%s/efetch.fcgi?db=pubmed&id=%s&retmode=xml",
		f.Config.PubMedBaseURL, strings.Join(pmids, ","))
	if f.Config.PubMedAPIKey != "" {
		efetchURL += "&api_key=" + f.Config.PubMedAPIKey
	}
	f.Logger.Debug("Rufe EFetch-URL auf", zap.String("url", efetchURL))

	resp, err := httpClient.Get(efetchURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("efetch metadata failed: status %d", resp.StatusCode)
	}

	var articleSet PubmedArticleSet
	if err := xml.NewDecoder(resp.Body).Decode(&articleSet); err != nil {
		return nil, err
	}
	return articleSet.PubmedArticle, nil
}
