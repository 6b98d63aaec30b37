package services

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"bsky-verifier/config"
	"bsky-verifier/models"
	"bsky-verifier/providers"
	"bsky-verifier/providers/orcid"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testOrcidID = "0000-0001-2345-6789"

func newOrcidAPIServer(t *testing.T, personStatus int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/person"):
			if personStatus != http.StatusOK {
				w.WriteHeader(personStatus)
				return
			}
			fmt.Fprint(w, `{"name":{"given-names":{"value":"Marie"},"family-name":{"value":"Curie"}}}`)
		case strings.HasSuffix(r.URL.Path, "/activities"):
			fmt.Fprint(w, `{
				"employments":{"affiliation-group":[{"summaries":[{"employment-summary":{"organization":{"name":"Sorbonne"}}}]}]},
				"educations":{"affiliation-group":[{"summaries":[{"education-summary":{"organization":{"name":"Sorbonne"}}},{"education-summary":{"organization":{"name":"ESPCI"}}}]}]}
			}`)
		case strings.HasSuffix(r.URL.Path, "/works"):
			fmt.Fprint(w, `{"group":[
				{"external-ids":{"external-id":[{"external-id-type":"doi","external-id-value":"10.1/a"}]},"work-summary":[{"title":{"title":{"value":"Paper A"}},"type":"journal-article","publication-date":{"year":{"value":"1903"}},"journal-title":{"value":"Comptes Rendus"}}]},
				{"external-ids":{"external-id":[]},"work-summary":[{"title":{"title":{"value":"Paper B"}},"type":"journal-article","publication-date":{"year":{"value":"1903"}},"journal-title":{"value":"Comptes Rendus"}}]},
				{"external-ids":{"external-id":[]},"work-summary":[{"title":{"title":{"value":"Paper C"}},"type":"book-chapter","publication-date":{"year":{"value":"1911"}},"journal-title":{"value":"Nature"}}]}
			]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

type failingEnricher struct{}

func (e *failingEnricher) Enrich(orcidID string, profile *models.AcademicProfile) error {
	return fmt.Errorf("upstream down")
}

func (e *failingEnricher) Name() string { return "failing" }

func TestProfileBuild(t *testing.T) {
	srv := newOrcidAPIServer(t, http.StatusOK)
	defer srv.Close()

	cfg := &config.Config{OrcidAPIURL: srv.URL}
	svc := NewProfileService(orcid.NewFetcher(cfg, zap.NewNop()), nil, zap.NewNop())

	profile, err := svc.Build(testOrcidID)
	require.NoError(t, err)

	assert.Equal(t, testOrcidID, profile.OrcidID)
	assert.Equal(t, "Marie Curie", profile.Name)
	assert.Equal(t, []string{"Sorbonne", "ESPCI"}, profile.Institutions)
	assert.Equal(t, 3, profile.NumPublications)
	assert.Equal(t, []int{1903, 1911}, profile.PublicationYears)
	assert.Equal(t, []string{"journal-article", "book-chapter"}, profile.PublicationTypes)
	assert.Equal(t, []string{"Paper A", "Paper B", "Paper C"}, profile.PublicationTitles)
	assert.Equal(t, []string{"Comptes Rendus", "Nature"}, profile.PublicationJournals)
}

func TestProfileBuildPersonFailureIsFatal(t *testing.T) {
	srv := newOrcidAPIServer(t, http.StatusNotFound)
	defer srv.Close()

	cfg := &config.Config{OrcidAPIURL: srv.URL}
	svc := NewProfileService(orcid.NewFetcher(cfg, zap.NewNop()), nil, zap.NewNop())

	_, err := svc.Build(testOrcidID)
	assert.Error(t, err)
}

func TestProfileBuildEnricherFailureIsTolerated(t *testing.T) {
	srv := newOrcidAPIServer(t, http.StatusOK)
	defer srv.Close()

	cfg := &config.Config{OrcidAPIURL: srv.URL}
	svc := NewProfileService(orcid.NewFetcher(cfg, zap.NewNop()), []providers.Enricher{&failingEnricher{}}, zap.NewNop())

	profile, err := svc.Build(testOrcidID)
	require.NoError(t, err)
	assert.Equal(t, "Marie Curie", profile.Name)
}

func TestProfileBuildYearsParseableAndUnique(t *testing.T) {
	srv := newOrcidAPIServer(t, http.StatusOK)
	defer srv.Close()

	cfg := &config.Config{OrcidAPIURL: srv.URL}
	svc := NewProfileService(orcid.NewFetcher(cfg, zap.NewNop()), nil, zap.NewNop())

	profile, err := svc.Build(testOrcidID)
	require.NoError(t, err)

	seen := map[int]bool{}
	for _, y := range profile.PublicationYears {
		assert.False(t, seen[y], "duplicate year %d", y)
		seen[y] = true
	}
}
