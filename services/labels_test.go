package services

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"bsky-verifier/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLabelForward(t *testing.T) {
	var gotAuth string
	var gotBody []byte
	labelerSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotBody, _ = io.ReadAll(r.Body)
		fmt.Fprint(w, `{"success":true}`)
	}))
	defer labelerSrv.Close()

	cfg := &config.Config{LabelerURL: labelerSrv.URL, LabelerToken: "labeler-secret"}
	svc := NewLabelService(cfg, zap.NewNop())

	result, err := svc.Forward(&LabelRequest{
		Action: "add",
		Handle: "curie.bsky.social",
		DID:    "did:plc:abc123",
		Data:   json.RawMessage(`{"labels":["verified-scientist"]}`),
	})
	require.NoError(t, err)

	assert.JSONEq(t, `{"success":true}`, string(result))
	assert.Equal(t, "Bearer labeler-secret", gotAuth)
	assert.Contains(t, string(gotBody), "verified-scientist")
	assert.Contains(t, string(gotBody), "did:plc:abc123")
}

func TestLabelForwardInvalidAction(t *testing.T) {
	svc := NewLabelService(&config.Config{}, zap.NewNop())

	_, err := svc.Forward(&LabelRequest{Action: "promote", Handle: "h", DID: "d"})
	var fe *FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusBadRequest, fe.Status)
}

func TestLabelForwardRemoveRequiresOrcid(t *testing.T) {
	svc := NewLabelService(&config.Config{}, zap.NewNop())

	_, err := svc.Forward(&LabelRequest{Action: "remove", Handle: "h", DID: "d"})
	var fe *FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusBadRequest, fe.Status)

	_, err = svc.Forward(&LabelRequest{Action: "delete", Handle: "h", DID: "d"})
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusBadRequest, fe.Status)
}

func TestLabelForwardUpstreamFailure(t *testing.T) {
	labelerSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer labelerSrv.Close()

	cfg := &config.Config{LabelerURL: labelerSrv.URL}
	svc := NewLabelService(cfg, zap.NewNop())

	_, err := svc.Forward(&LabelRequest{Action: "add", Handle: "h", DID: "d"})
	var fe *FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusInternalServerError, fe.Status)
}
