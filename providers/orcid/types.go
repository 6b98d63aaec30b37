// Package orcid enthält die Logik für die Interaktion mit der öffentlichen ORCID-API
// und dem ORCID-OAuth-Token-Endpoint.
package orcid

// TokenResponse repräsentiert die JSON-Antwort des ORCID-Token-Endpoints.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope"`
	Orcid        string `json:"orcid"`
	Name         string `json:"name"`
}

// personResponse repräsentiert die Antwort des /person-Endpoints.
type personResponse struct {
	Name struct {
		GivenNames struct {
			Value string `json:"value"`
		} `json:"given-names"`
		FamilyName struct {
			Value string `json:"value"`
		} `json:"family-name"`
	} `json:"name"`
}

// activitiesResponse repräsentiert die Antwort des /activities-Endpoints.
// Employments und Educations teilen dieselbe Gruppenstruktur, nur der
// Summary-Schlüssel unterscheidet sich.
type activitiesResponse struct {
	Employments affiliationSection `json:"employments"`
	Educations  affiliationSection `json:"educations"`
}

type affiliationSection struct {
	AffiliationGroup []struct {
		Summaries []summaryEntry `json:"summaries"`
	} `json:"affiliation-group"`
}

type summaryEntry struct {
	EmploymentSummary *activitySummary `json:"employment-summary"`
	EducationSummary  *activitySummary `json:"education-summary"`
}

type activitySummary struct {
	Organization struct {
		Name string `json:"name"`
	} `json:"organization"`
}

// worksResponse repräsentiert die Antwort des /works-Endpoints.
type worksResponse struct {
	Group []workGroup `json:"group"`
}

type workGroup struct {
	ExternalIDs struct {
		ExternalID []externalID `json:"external-id"`
	} `json:"external-ids"`
	WorkSummary []workSummary `json:"work-summary"`
}

type externalID struct {
	Type  string `json:"external-id-type"`
	Value string `json:"external-id-value"`
}

type workSummary struct {
	Title struct {
		Title struct {
			Value string `json:"value"`
		} `json:"title"`
	} `json:"title"`
	Type            string `json:"type"`
	PublicationDate struct {
		Year struct {
			Value string `json:"value"`
		} `json:"year"`
	} `json:"publication-date"`
	JournalTitle struct {
		Value string `json:"value"`
	} `json:"journal-title"`
}

// WorksSummary ist das normalisierte Ergebnis des /works-Endpoints.
type WorksSummary struct {
	NumPublications     int
	PublicationYears    []int
	PublicationTypes    []string
	PublicationTitles   []string
	PublicationJournals []string
	DOIs                []string
}
