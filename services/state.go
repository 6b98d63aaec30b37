// Package services enthält die Kernlogik des Verifiers: Profil-Aufbau,
// State-Codec, OAuth-Orchestrierung und Label-Weiterleitung.
package services

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"bsky-verifier/models"

	"github.com/google/uuid"
)

// stateDelimiter trennt die positionalen Segmente des gepackten States.
// Pipe-Zeichen in Feldwerten (etwa Publikationstiteln) verschieben beim
// Entpacken alle folgenden Segmente.
const stateDelimiter = "|"

// PackState serialisiert das akademische Profil in den OAuth-State-Parameter:
// token|orcidId|handle|name|institutions|numPublications|years|types|titles|journals.
// Das erste Segment ist ein frisches UUID-Token, Listen werden als JSON eingebettet.
func PackState(handle string, profile *models.AcademicProfile) (string, error) {
	token := uuid.New().String()

	institutions, err := json.Marshal(profile.Institutions)
	if err != nil {
		return "", err
	}
	years, err := json.Marshal(profile.PublicationYears)
	if err != nil {
		return "", err
	}
	types, err := json.Marshal(profile.PublicationTypes)
	if err != nil {
		return "", err
	}
	titles, err := json.Marshal(profile.PublicationTitles)
	if err != nil {
		return "", err
	}
	journals, err := json.Marshal(profile.PublicationJournals)
	if err != nil {
		return "", err
	}

	segments := []string{
		token,
		profile.OrcidID,
		handle,
		profile.Name,
		string(institutions),
		strconv.Itoa(profile.NumPublications),
		string(years),
		string(types),
		string(titles),
		string(journals),
	}
	return strings.Join(segments, stateDelimiter), nil
}

// UnpackState dekodiert einen gepackten State positional. Fehlende Segmente am
// Ende ergeben Nullwerte, defekte JSON-Listen lassen das Feld leer. Nur ein
// komplett leerer State ist ein Fehler.
func UnpackState(state string) (token, orcidID, handle string, profile *models.AcademicProfile, err error) {
	if state == "" {
		return "", "", "", nil, fmt.Errorf("empty state")
	}

	segments := strings.Split(state, stateDelimiter)
	get := func(i int) string {
		if i < len(segments) {
			return segments[i]
		}
		return ""
	}

	token = get(0)
	orcidID = get(1)
	handle = get(2)

	profile = &models.AcademicProfile{
		OrcidID: orcidID,
		Name:    get(3),
	}
	if s := get(4); s != "" {
		_ = json.Unmarshal([]byte(s), &profile.Institutions)
	}
	if s := get(5); s != "" {
		if n, convErr := strconv.Atoi(s); convErr == nil {
			profile.NumPublications = n
		}
	}
	if s := get(6); s != "" {
		_ = json.Unmarshal([]byte(s), &profile.PublicationYears)
	}
	if s := get(7); s != "" {
		_ = json.Unmarshal([]byte(s), &profile.PublicationTypes)
	}
	if s := get(8); s != "" {
		_ = json.Unmarshal([]byte(s), &profile.PublicationTitles)
	}
	if s := get(9); s != "" {
		_ = json.Unmarshal([]byte(s), &profile.PublicationJournals)
	}
	return token, orcidID, handle, profile, nil
}

// ProfileFromQuery liest die im ORCID-Leg gewonnenen Profilfelder aus den
// Query-Parametern des atproto-Authorize-Aufrufs. Listen kommen JSON-codiert,
// defekte Werte lassen das Feld leer.
func ProfileFromQuery(q url.Values) *models.AcademicProfile {
	profile := &models.AcademicProfile{
		OrcidID: q.Get("orcidId"),
		Name:    q.Get("name"),
	}
	if s := q.Get("institutions"); s != "" {
		_ = json.Unmarshal([]byte(s), &profile.Institutions)
	}
	if s := q.Get("numPublications"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			profile.NumPublications = n
		}
	}
	if s := q.Get("publicationYears"); s != "" {
		_ = json.Unmarshal([]byte(s), &profile.PublicationYears)
	}
	if s := q.Get("publicationTypes"); s != "" {
		_ = json.Unmarshal([]byte(s), &profile.PublicationTypes)
	}
	if s := q.Get("publicationTitles"); s != "" {
		_ = json.Unmarshal([]byte(s), &profile.PublicationTitles)
	}
	if s := q.Get("publicationJournals"); s != "" {
		_ = json.Unmarshal([]byte(s), &profile.PublicationJournals)
	}
	return profile
}
