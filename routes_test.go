package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"bsky-verifier/config"
	"bsky-verifier/models"
	"bsky-verifier/providers/atproto"
	"bsky-verifier/providers/orcid"
	"bsky-verifier/services"
	"bsky-verifier/storage"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeStore ist eine In-Memory-Implementierung der Storage-Interfaces für
// Router-Tests ohne Datenbank.
type fakeStore struct {
	pending       map[string]*models.PendingAuthorization
	sessions      map[string][]byte
	verifications map[string]*models.VerificationRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		pending:       map[string]*models.PendingAuthorization{},
		sessions:      map[string][]byte{},
		verifications: map[string]*models.VerificationRecord{},
	}
}

func (f *fakeStore) PutPending(p *models.PendingAuthorization) error { f.pending[p.Key] = p; return nil }
func (f *fakeStore) GetPending(key string) (*models.PendingAuthorization, error) {
	if p, ok := f.pending[key]; ok {
		return p, nil
	}
	return nil, storage.ErrNotFound
}
func (f *fakeStore) DeletePending(key string) error { delete(f.pending, key); return nil }
func (f *fakeStore) DeleteExpiredPending(now time.Time) (int64, error) {
	var n int64
	for k, p := range f.pending {
		if p.Expired(now) {
			delete(f.pending, k)
			n++
		}
	}
	return n, nil
}
func (f *fakeStore) PutSession(key string, doc []byte) error { f.sessions[key] = doc; return nil }
func (f *fakeStore) GetSession(key string) (*models.SessionRecord, error) {
	if d, ok := f.sessions[key]; ok {
		return &models.SessionRecord{Key: key, Document: d}, nil
	}
	return nil, storage.ErrNotFound
}
func (f *fakeStore) DeleteSession(key string) error { delete(f.sessions, key); return nil }
func (f *fakeStore) PutVerification(v *models.VerificationRecord) error {
	f.verifications[v.OrcidID] = v
	return nil
}
func (f *fakeStore) GetVerification(orcidID string) (*models.VerificationRecord, error) {
	if v, ok := f.verifications[orcidID]; ok {
		return v, nil
	}
	return nil, storage.ErrNotFound
}
func (f *fakeStore) GetVerificationByHandle(handle string) (*models.VerificationRecord, error) {
	for _, v := range f.verifications {
		if v.BlueskyHandle == handle {
			return v, nil
		}
	}
	return nil, storage.ErrNotFound
}

func newTestRouter(cfg *config.Config, store *fakeStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()
	orcidFetcher := orcid.NewFetcher(cfg, logger)
	verifyService := &services.VerifyService{
		Config:        cfg,
		Logger:        logger,
		Orcid:         orcidFetcher,
		Profile:       services.NewProfileService(orcidFetcher, nil, logger),
		Atproto:       atproto.NewClient(cfg, logger),
		Pending:       store,
		Sessions:      store,
		Verifications: store,
	}
	labelService := services.NewLabelService(cfg, logger)
	return newRouter(cfg, verifyService, labelService, logger)
}

func baseConfig() *config.Config {
	return &config.Config{
		PublicURL:      "https://verifier.example",
		OrcidClientID:  "client-id",
		OrcidAuthURL:   "https://orcid.org/oauth/authorize",
		AtprotoAuthURL: "https://bsky.social/oauth/authorize",
		LabelAPIToken:  "label-secret",
		JWKSJson:       `{"keys":[]}`,
	}
}

func TestLabelsRejectsBadBearerBeforeBody(t *testing.T) {
	router := newTestRouter(baseConfig(), newFakeStore())

	req := httptest.NewRequest(http.MethodPost, "/labels", strings.NewReader("this is not json"))
	req.Header.Set("Authorization", "Bearer wrong-token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLabelsRejectsMissingBearer(t *testing.T) {
	router := newTestRouter(baseConfig(), newFakeStore())

	req := httptest.NewRequest(http.MethodPost, "/labels", strings.NewReader(`{"action":"add"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthorizeORCIDRedirect(t *testing.T) {
	router := newTestRouter(baseConfig(), newFakeStore())

	req := httptest.NewRequest(http.MethodGet, "/oauth/authorize?provider=orcid", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusFound, w.Code)
	location, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)

	q := location.Query()
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.NotEmpty(t, q.Get("state"))
	assert.Equal(t, "https://verifier.example/oauth/callback", q.Get("redirect_uri"))
}

func TestAuthorizeUnknownProvider(t *testing.T) {
	router := newTestRouter(baseConfig(), newFakeStore())

	req := httptest.NewRequest(http.MethodGet, "/oauth/authorize?provider=myspace", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClientMetadata(t *testing.T) {
	router := newTestRouter(baseConfig(), newFakeStore())

	req := httptest.NewRequest(http.MethodGet, "/oauth/client-metadata.json", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Equal(t, "https://verifier.example/oauth/client-metadata.json", doc["client_id"])
	assert.Contains(t, doc["redirect_uris"], "https://verifier.example/oauth/callback")
}

func TestJWKS(t *testing.T) {
	router := newTestRouter(baseConfig(), newFakeStore())

	req := httptest.NewRequest(http.MethodGet, "/oauth/jwks.json", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"keys":[]}`, w.Body.String())
}

func TestORCIDCallbackEndToEnd(t *testing.T) {
	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/person"):
			fmt.Fprint(w, `{"name":{"given-names":{"value":"Foo"},"family-name":{"value":"Bar"}}}`)
		case strings.HasSuffix(r.URL.Path, "/activities"):
			fmt.Fprint(w, `{"employments":{"affiliation-group":[]},"educations":{"affiliation-group":[]}}`)
		case strings.HasSuffix(r.URL.Path, "/works"):
			fmt.Fprint(w, `{"group":[]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer apiSrv.Close()
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"access_token":"t","orcid":"0000-0001"}`)
	}))
	defer tokenSrv.Close()

	cfg := baseConfig()
	cfg.OrcidTokenURL = tokenSrv.URL
	cfg.OrcidAPIURL = apiSrv.URL
	store := newFakeStore()
	router := newTestRouter(cfg, store)

	req := httptest.NewRequest(http.MethodGet, "/oauth/callback?provider=orcid&code=abc&state=xyz", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"orcidId":"0000-0001"`)
	assert.Contains(t, w.Body.String(), `"status":"pending_bluesky"`)
}

func TestAuthorizeAtprotoEndToEnd(t *testing.T) {
	resolverSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"did":"did:plc:abc123"}`)
	}))
	defer resolverSrv.Close()

	cfg := baseConfig()
	cfg.AtprotoResolverURL = resolverSrv.URL
	cfg.PendingTTLSeconds = 3600
	store := newFakeStore()
	router := newTestRouter(cfg, store)

	req := httptest.NewRequest(http.MethodGet, "/oauth/authorize?provider=atproto&handle=foo.bsky.social&orcidId=0000-0001&name=Foo", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusFound, w.Code)
	assert.Contains(t, w.Header().Get("Location"), "provider=atproto")

	require.Len(t, store.pending, 1)
	for _, p := range store.pending {
		assert.InDelta(t, p.Timestamp.Unix()+3600, p.TTL, 2)
	}
}

func TestCallbackUnknownStateIs400(t *testing.T) {
	router := newTestRouter(baseConfig(), newFakeStore())

	req := httptest.NewRequest(http.MethodGet, "/oauth/callback?provider=atproto&code=abc&state=unknown", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "no appState found for state")
}

func TestGetVerification(t *testing.T) {
	store := newFakeStore()
	store.verifications["0000-0001"] = &models.VerificationRecord{
		OrcidID:       "0000-0001",
		BlueskyHandle: "foo.bsky.social",
		Status:        models.StatusVerified,
	}
	router := newTestRouter(baseConfig(), store)

	req := httptest.NewRequest(http.MethodGet, "/verifications/0000-0001", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "verified")

	req = httptest.NewRequest(http.MethodGet, "/verifications/by-handle/foo.bsky.social", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/verifications/0000-0009", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// Session-Tokens dürfen in HTTP-Antworten nicht auftauchen.
func TestVerificationResponseOmitsSession(t *testing.T) {
	store := newFakeStore()
	store.verifications["0000-0001"] = &models.VerificationRecord{
		OrcidID: "0000-0001",
		Status:  models.StatusVerified,
		Session: json.RawMessage(`{"accessJwt":"super-secret"}`),
	}
	router := newTestRouter(baseConfig(), store)

	req := httptest.NewRequest(http.MethodGet, "/verifications/0000-0001", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "super-secret")
}
