package services

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"bsky-verifier/config"
	"bsky-verifier/models"
	"bsky-verifier/providers/atproto"
	"bsky-verifier/providers/orcid"
	"bsky-verifier/storage"

	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FlowError ist ein Fehler mit zugeordnetem HTTP-Status. Die Handler
// übersetzen ihn direkt in die Antwort.
type FlowError struct {
	Status  int
	Message string
}

func (e *FlowError) Error() string {
	return e.Message
}

// NewFlowError erstellt einen FlowError.
func NewFlowError(status int, format string, args ...interface{}) *FlowError {
	return &FlowError{Status: status, Message: fmt.Sprintf(format, args...)}
}

// VerifyService orchestriert den zweistufigen Verifikations-Flow:
// ORCID-Leg, Handoff per gepacktem State, AT-Proto-Leg, Merge.
type VerifyService struct {
	Config  *config.Config
	Logger  *zap.Logger
	Orcid   *orcid.Fetcher
	Profile *ProfileService
	Atproto *atproto.Client

	Pending       storage.PendingStore
	Sessions      storage.SessionStore
	Verifications storage.VerificationStore

	// S3 ist optional; nil deaktiviert den Export verifizierter Records.
	S3 *awss3.Client
}

// AuthorizeORCID baut die Authorization-URL für das ORCID-Leg. Der State ist
// hier ein reines Anti-Forgery-Token ohne Payload.
func (s *VerifyService) AuthorizeORCID() string {
	params := url.Values{}
	params.Set("client_id", s.Config.OrcidClientID)
	params.Set("response_type", "code")
	params.Set("scope", "openid")
	params.Set("redirect_uri", s.Config.OrcidRedirectURI())
	params.Set("state", uuid.New().String())
	return s.Config.OrcidAuthURL + "?" + params.Encode()
}

// HandleORCIDCallback schließt das ORCID-Leg ab: Code gegen Token tauschen,
// Profil aufbauen, Record mit Status pending_bluesky persistieren.
func (s *VerifyService) HandleORCIDCallback(code, iss string) (*models.VerificationRecord, *models.AcademicProfile, error) {
	if code == "" {
		return nil, nil, NewFlowError(http.StatusBadRequest, "missing code parameter")
	}
	if iss != "" && s.Config.OrcidIssuer != "" && iss != s.Config.OrcidIssuer {
		return nil, nil, NewFlowError(http.StatusBadRequest, "unexpected issuer %s", iss)
	}

	tr, err := s.Orcid.ExchangeCode(code)
	if err != nil {
		s.Logger.Error("ORCID-Leg fehlgeschlagen", zap.Error(err))
		return nil, nil, NewFlowError(http.StatusBadRequest, "orcid token exchange failed")
	}
	log := s.Logger.With(zap.String("orcid_id", tr.Orcid))
	log.Info("ORCID-Token erhalten, baue Profil auf.")

	profile, err := s.Profile.Build(tr.Orcid)
	if err != nil {
		log.Error("Profil-Aufbau fehlgeschlagen", zap.Error(err))
		return nil, nil, NewFlowError(http.StatusInternalServerError, "failed to build academic profile")
	}

	profileDoc, err := json.Marshal(profile)
	if err != nil {
		return nil, nil, NewFlowError(http.StatusInternalServerError, "internal error")
	}

	record := &models.VerificationRecord{
		OrcidID:         tr.Orcid,
		Name:            profile.Name,
		NumPublications: profile.NumPublications,
		Status:          models.StatusPendingBluesky,
		Profile:         profileDoc,
	}
	if err := s.Verifications.PutVerification(record); err != nil {
		log.Error("Persistieren des Records fehlgeschlagen", zap.Error(err))
		return nil, nil, NewFlowError(http.StatusInternalServerError, "failed to persist verification")
	}
	log.Info("ORCID-Leg abgeschlossen", zap.String("status", record.Status))
	return record, profile, nil
}

// AuthorizeAtproto startet das AT-Proto-Leg. Der Client liefert die im
// ORCID-Leg erhaltenen Profilfelder mit; sie werden in den State gepackt und
// zusätzlich serverseitig als Pending-Row abgelegt.
func (s *VerifyService) AuthorizeAtproto(handle string, profile *models.AcademicProfile) (string, error) {
	if handle == "" || profile == nil || profile.OrcidID == "" {
		return "", NewFlowError(http.StatusBadRequest, "missing handle or orcidId parameter")
	}
	log := s.Logger.With(zap.String("orcid_id", profile.OrcidID), zap.String("handle", handle))

	state, err := PackState(handle, profile)
	if err != nil {
		return "", NewFlowError(http.StatusInternalServerError, "internal error")
	}
	profileDoc, err := json.Marshal(profile)
	if err != nil {
		return "", NewFlowError(http.StatusInternalServerError, "internal error")
	}

	now := time.Now()
	pending := &models.PendingAuthorization{
		Key:       state,
		OrcidID:   profile.OrcidID,
		Handle:    handle,
		Profile:   profileDoc,
		Timestamp: now,
		TTL:       now.Unix() + s.Config.PendingTTLSeconds,
	}
	if err := s.Pending.PutPending(pending); err != nil {
		log.Error("Persistieren der Pending-Authorization fehlgeschlagen", zap.Error(err))
		return "", NewFlowError(http.StatusInternalServerError, "failed to persist pending authorization")
	}

	if _, err := s.Atproto.ResolveHandle(handle); err != nil {
		log.Warn("Handle-Auflösung fehlgeschlagen", zap.Error(err))
		return "", NewFlowError(http.StatusBadRequest, "could not resolve handle %s", handle)
	}

	log.Info("AT-Proto-Leg gestartet.")
	return s.Atproto.AuthURL(handle, state), nil
}

// HandleAtprotoCallback schließt das AT-Proto-Leg ab: Pending-Row per State
// finden, Profil entpacken, Code tauschen, Session ablegen und beide
// Identitäten zum verifizierten Record mergen.
func (s *VerifyService) HandleAtprotoCallback(state, code, iss string) (*models.VerificationRecord, error) {
	if code == "" || state == "" {
		return nil, NewFlowError(http.StatusBadRequest, "missing code or state parameter")
	}

	pending, err := s.Pending.GetPending(state)
	if err == storage.ErrNotFound {
		return nil, NewFlowError(http.StatusBadRequest, "no appState found for state")
	}
	if err != nil {
		return nil, NewFlowError(http.StatusInternalServerError, "internal error")
	}
	if pending.Expired(time.Now()) {
		_ = s.Pending.DeletePending(state)
		return nil, NewFlowError(http.StatusBadRequest, "no appState found for state")
	}

	_, orcidID, handle, profile, err := UnpackState(state)
	if err != nil {
		return nil, NewFlowError(http.StatusBadRequest, "malformed state")
	}
	log := s.Logger.With(zap.String("orcid_id", orcidID), zap.String("handle", handle))

	session, err := s.Atproto.ExchangeCode(code, iss)
	if err != nil {
		log.Error("AT-Proto-Leg fehlgeschlagen", zap.Error(err))
		return nil, NewFlowError(http.StatusBadRequest, "atproto token exchange failed")
	}
	if session.Handle == "" {
		session.Handle = handle
	}

	sessionDoc, err := json.Marshal(session)
	if err != nil {
		return nil, NewFlowError(http.StatusInternalServerError, "internal error")
	}
	if err := s.Sessions.PutSession(session.DID, sessionDoc); err != nil {
		log.Error("Persistieren der Session fehlgeschlagen", zap.Error(err))
		return nil, NewFlowError(http.StatusInternalServerError, "failed to persist session")
	}

	profileDoc, err := json.Marshal(profile)
	if err != nil {
		return nil, NewFlowError(http.StatusInternalServerError, "internal error")
	}
	now := time.Now()
	record := &models.VerificationRecord{
		OrcidID:         orcidID,
		BlueskyHandle:   session.Handle,
		BlueskyDID:      session.DID,
		Name:            profile.Name,
		NumPublications: profile.NumPublications,
		Status:          models.StatusVerified,
		Profile:         profileDoc,
		Session:         sessionDoc,
		VerifiedAt:      &now,
	}
	if err := s.Verifications.PutVerification(record); err != nil {
		log.Error("Persistieren des Records fehlgeschlagen", zap.Error(err))
		return nil, NewFlowError(http.StatusInternalServerError, "failed to persist verification")
	}
	_ = s.Pending.DeletePending(state)

	s.exportRecord(record)

	log.Info("Verifikation abgeschlossen", zap.String("did", session.DID))
	return record, nil
}

// SweepExpiredPending räumt abgelaufene Pending-Authorizations ab.
// Wird vom Cron-Job aufgerufen.
func (s *VerifyService) SweepExpiredPending() {
	count, err := s.Pending.DeleteExpiredPending(time.Now())
	if err != nil {
		s.Logger.Error("Pending-Sweep fehlgeschlagen", zap.Error(err))
		return
	}
	if count > 0 {
		s.Logger.Info("Abgelaufene Pending-Authorizations entfernt", zap.Int64("count", count))
	}
}

// exportRecord lädt den verifizierten Record als JSON ins S3-Archiv.
// Fehler werden nur geloggt, der Flow bleibt erfolgreich.
func (s *VerifyService) exportRecord(record *models.VerificationRecord) {
	if s.S3 == nil || !s.Config.ExportEnabled {
		return
	}
	doc, err := json.Marshal(record)
	if err != nil {
		s.Logger.Error("Export-Serialisierung fehlgeschlagen", zap.Error(err))
		return
	}
	key := fmt.Sprintf("verifications/%s.json", record.OrcidID)
	link, err := storage.UploadDocument(s.S3, s.Config.StratoS3Bucket, key, doc, s.Config)
	if err != nil {
		s.Logger.Error("S3-Export fehlgeschlagen", zap.Error(err))
		return
	}
	s.Logger.Info("Record exportiert", zap.String("link", link))
}
