package main

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"bsky-verifier/config"
	"bsky-verifier/providers"
	"bsky-verifier/providers/atproto"
	"bsky-verifier/providers/orcid"
	"bsky-verifier/providers/pubmed"
	"bsky-verifier/services"
	"bsky-verifier/storage"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	verificationsCounter prometheus.Counter
	labelsCounter        prometheus.Counter
)

func init() {
	verificationsCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "verifications_completed_total",
			Help: "Total number of completed ORCID+Bluesky verifications.",
		},
	)
	labelsCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "label_mutations_forwarded_total",
			Help: "Total number of label mutations forwarded to the labeler.",
		},
	)
	prometheus.MustRegister(verificationsCounter, labelsCounter)
}

func bearerAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth != "Bearer "+cfg.LabelAPIToken {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid API token"})
			return
		}
		c.Next()
	}
}

// abortFlowError übersetzt Service-Fehler in HTTP-Antworten. FlowError trägt
// seinen Status selbst, alles andere wird 500.
func abortFlowError(c *gin.Context, err error) {
	var fe *services.FlowError
	if errors.As(err, &fe) {
		c.JSON(fe.Status, gin.H{"error": fe.Message})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	// Setup Database Connection
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}
	logging.Info("Successfully connected to verifier database.")

	store, err := storage.NewStore(db)
	if err != nil {
		logging.Fatal("Database auto-migration failed", zap.Error(err))
	}

	// Setup Enrichers
	enabledEnricherNames := strings.Split(cfg.EnabledEnrichers, ",")
	var enabledEnrichers []providers.Enricher
	for _, name := range enabledEnricherNames {
		switch strings.TrimSpace(name) {
		case "pubmed":
			enabledEnrichers = append(enabledEnrichers, pubmed.NewFetcher(cfg, logging))
		case "":
		default:
			logging.Warn("Unknown enricher in config", zap.String("enricher_name", name))
		}
	}
	logging.Info("Active enrichers loaded", zap.Strings("enrichers", enabledEnricherNames))

	// Setup Services
	orcidFetcher := orcid.NewFetcher(cfg, logging)
	atprotoClient := atproto.NewClient(cfg, logging)
	profileService := services.NewProfileService(orcidFetcher, enabledEnrichers, logging)

	verifyService := &services.VerifyService{
		Config:        cfg,
		Logger:        logging,
		Orcid:         orcidFetcher,
		Profile:       profileService,
		Atproto:       atprotoClient,
		Pending:       store,
		Sessions:      store,
		Verifications: store,
	}
	if cfg.ExportEnabled {
		s3Client, err := storage.NewS3Client(cfg)
		if err != nil {
			logging.Fatal("S3 client creation failed", zap.Error(err))
		}
		verifyService.S3 = s3Client
	}
	labelService := services.NewLabelService(cfg, logging)

	// Setup Router
	router := newRouter(cfg, verifyService, labelService, logging)

	// Setup Cron
	cronScheduler := cron.New()
	cronScheduler.AddFunc(cfg.CronSchedule, func() {
		logging.Info("Running scheduled pending sweep...")
		verifyService.SweepExpiredPending()
	})
	cronScheduler.Start()

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Fatal("Failed to run server", zap.Error(err))
	}
}

func newRouter(cfg *config.Config, verifyService *services.VerifyService, labelService *services.LabelService, logging *zap.Logger) *gin.Engine {
	router := gin.Default()
	router.Use(gin.Recovery())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	setupMetaRoutes(router, cfg)
	setupOAuthRoutes(router, cfg, verifyService, logging)
	setupLabelRoutes(router, cfg, labelService)
	setupVerificationRoutes(router, verifyService, logging)

	return router
}

// setupMetaRoutes konfiguriert die statischen OAuth-Metadaten-Endpoints.
func setupMetaRoutes(router *gin.Engine, cfg *config.Config) {
	router.GET("/oauth/client-metadata.json", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"client_id":                       cfg.ClientMetadataURL(),
			"client_name":                     "Scientific Verifier",
			"client_uri":                      cfg.PublicURL,
			"redirect_uris":                   []string{cfg.OrcidRedirectURI()},
			"grant_types":                     []string{"authorization_code", "refresh_token"},
			"response_types":                  []string{"code"},
			"scope":                           "atproto transition:generic",
			"application_type":                "web",
			"token_endpoint_auth_method":      "none",
			"dpop_bound_access_tokens":        true,
			"jwks_uri":                        cfg.PublicURL + "/oauth/jwks.json",
			"tls_client_certificate_bound_at": false,
		})
	})

	router.GET("/oauth/jwks.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json", []byte(cfg.JWKSJson))
	})
}

// setupOAuthRoutes konfiguriert die Authorize- und Callback-Endpoints, die
// beide Provider multiplexen.
func setupOAuthRoutes(router *gin.Engine, cfg *config.Config, verifyService *services.VerifyService, log *zap.Logger) {
	router.GET("/oauth/authorize", func(c *gin.Context) {
		provider := c.DefaultQuery("provider", "orcid")
		switch provider {
		case "orcid":
			c.Redirect(http.StatusFound, verifyService.AuthorizeORCID())
		case "atproto":
			profile := services.ProfileFromQuery(c.Request.URL.Query())
			redirectURL, err := verifyService.AuthorizeAtproto(c.Query("handle"), profile)
			if err != nil {
				abortFlowError(c, err)
				return
			}
			c.Redirect(http.StatusFound, redirectURL)
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown provider: " + provider})
		}
	})

	router.GET("/oauth/callback", func(c *gin.Context) {
		provider := c.Query("provider")
		state := c.Query("state")
		// Ohne expliziten provider-Parameter entscheidet der State: das
		// AT-Proto-Leg trägt die gepackte Payload, das ORCID-Leg nicht.
		if provider == "" {
			if strings.Contains(state, "|") || c.Query("iss") != "" {
				provider = "atproto"
			} else {
				provider = "orcid"
			}
		}

		switch provider {
		case "orcid":
			record, profile, err := verifyService.HandleORCIDCallback(c.Query("code"), c.Query("iss"))
			if err != nil {
				abortFlowError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"orcidId":             record.OrcidID,
				"name":                profile.Name,
				"institutions":        profile.Institutions,
				"numPublications":     profile.NumPublications,
				"publicationYears":    profile.PublicationYears,
				"publicationTypes":    profile.PublicationTypes,
				"publicationTitles":   profile.PublicationTitles,
				"publicationJournals": profile.PublicationJournals,
				"status":              record.Status,
			})
		case "atproto":
			record, err := verifyService.HandleAtprotoCallback(state, c.Query("code"), c.Query("iss"))
			if err != nil {
				abortFlowError(c, err)
				return
			}
			verificationsCounter.Inc()
			if cfg.FrontendURL != "" {
				c.Redirect(http.StatusFound, cfg.FrontendURL+"/verified?orcidId="+record.OrcidID+"&handle="+record.BlueskyHandle)
				return
			}
			c.JSON(http.StatusOK, record)
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown provider: " + provider})
		}
	})

	router.GET("/resolve-handle", func(c *gin.Context) {
		handle := c.Query("handle")
		if handle == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing handle parameter"})
			return
		}
		did, err := verifyService.Atproto.ResolveHandle(handle)
		if err != nil {
			log.Warn("Handle resolution failed", zap.String("handle", handle), zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": "could not resolve handle"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"handle": handle, "did": did})
	})
}

// setupLabelRoutes konfiguriert den bearer-geschützten Label-Endpoint.
func setupLabelRoutes(router *gin.Engine, cfg *config.Config, labelService *services.LabelService) {
	rg := router.Group("/labels")
	rg.Use(bearerAuthMiddleware(cfg))

	rg.POST("", func(c *gin.Context) {
		var req services.LabelRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		result, err := labelService.Forward(&req)
		if err != nil {
			abortFlowError(c, err)
			return
		}
		labelsCounter.Inc()
		c.Data(http.StatusOK, "application/json", result)
	})
}

// setupVerificationRoutes konfiguriert die Abfrage-Endpoints für Records.
func setupVerificationRoutes(router *gin.Engine, verifyService *services.VerifyService, log *zap.Logger) {
	rg := router.Group("/verifications")

	rg.GET("/:orcidId", func(c *gin.Context) {
		record, err := verifyService.Verifications.GetVerification(c.Param("orcidId"))
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "verification not found"})
				return
			}
			log.Error("DB error fetching verification", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, record)
	})

	rg.GET("/by-handle/:handle", func(c *gin.Context) {
		record, err := verifyService.Verifications.GetVerificationByHandle(c.Param("handle"))
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "verification not found"})
				return
			}
			log.Error("DB error fetching verification by handle", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, record)
	})
}
