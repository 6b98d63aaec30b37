package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config enthält alle Konfigurationsparameter aus Umgebungsvariablen.
type Config struct {
	DBHost     string `envconfig:"DB_HOST" required:"true"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" required:"true"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" required:"true"`

	HTTPPort string `envconfig:"HTTP_PORT" default:"4243"`

	// Öffentliche URLs des Dienstes
	PublicURL   string `envconfig:"PUBLIC_URL" required:"true"`
	FrontendURL string `envconfig:"FRONTEND_URL"`

	// ORCID OAuth (academic provider)
	OrcidClientID     string `envconfig:"ORCID_CLIENT_ID" required:"true"`
	OrcidClientSecret string `envconfig:"ORCID_CLIENT_SECRET" required:"true"`
	OrcidAuthURL      string `envconfig:"ORCID_AUTH_URL" default:"https://orcid.org/oauth/authorize"`
	OrcidTokenURL     string `envconfig:"ORCID_TOKEN_URL" default:"https://orcid.org/oauth/token"`
	OrcidAPIURL       string `envconfig:"ORCID_API_URL" default:"https://pub.orcid.org/v3.0"`
	OrcidIssuer       string `envconfig:"ORCID_ISSUER" default:"https://orcid.org"`

	// AT-Protocol / Bluesky (social provider)
	AtprotoAuthURL     string `envconfig:"ATPROTO_AUTH_URL" default:"https://bsky.social/oauth/authorize"`
	AtprotoTokenURL    string `envconfig:"ATPROTO_TOKEN_URL" default:"https://bsky.social/oauth/token"`
	AtprotoResolverURL string `envconfig:"ATPROTO_RESOLVER_URL" default:"https://bsky.social"`

	// PubMed-Querverweis für die Publikationsliste
	PubMedBaseURL string `envconfig:"PUBMED_BASE_URL" default:"https://eutils.ncbi.nlm.nih.gov/entrez/eutils"`
	PubMedAPIKey  string `envconfig:"PUBMED_API_KEY"`

	// Enricher-Konfiguration
	EnabledEnrichers string `envconfig:"ENABLED_ENRICHERS" default:"pubmed"`

	// Pending-Authorization TTL (advisory, Sekunden)
	PendingTTLSeconds int64  `envconfig:"PENDING_TTL_SECONDS" default:"3600"`
	CronSchedule      string `envconfig:"CRON_SCHEDULE" default:"*/15 * * * *"`

	// Label-Endpoint: eingehender Bearer-Token und ausgehender Labeler
	LabelAPIToken string `envconfig:"LABEL_API_TOKEN" required:"true"`
	LabelerURL    string `envconfig:"LABELER_URL" required:"true"`
	LabelerToken  string `envconfig:"LABELER_TOKEN"`

	// Statisches JWKS-Dokument für /oauth/jwks.json (JSON-String)
	JWKSJson string `envconfig:"JWKS_JSON" default:"{\"keys\":[]}"`

	// S3-Export verifizierter Records (Strato HiDrive, wie gehabt)
	ExportEnabled  bool   `envconfig:"EXPORT_ENABLED" default:"false"`
	StratoS3Key    string `envconfig:"STRATO_S3_KEY"`
	StratoS3Secret string `envconfig:"STRATO_S3_SECRET"`
	StratoS3URL    string `envconfig:"STRATO_S3_URL"`
	StratoS3Region string `envconfig:"STRATO_S3_REGION"`
	StratoS3Bucket string `envconfig:"STRATO_S3_BUCKET"`
}

// DSN gibt den Data Source Name für die PostgreSQL-Verbindung zurück.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// OrcidRedirectURI ist die bei ORCID registrierte Callback-URL.
func (c *Config) OrcidRedirectURI() string {
	return c.PublicURL + "/oauth/callback"
}

// ClientMetadataURL identifiziert diesen OAuth-Client gegenüber AT-Proto.
func (c *Config) ClientMetadataURL() string {
	return c.PublicURL + "/oauth/client-metadata.json"
}

// Load lädt die Konfiguration aus den Umgebungsvariablen.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	err := envconfig.Process("", &c)
	return &c, err
}
