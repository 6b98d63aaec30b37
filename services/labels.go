package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"bsky-verifier/config"

	"go.uber.org/zap"
)

var labelClient = &http.Client{Timeout: 30 * time.Second}

// LabelRequest ist der Body des /labels-Endpoints. data wird unverändert an
// den Labeler durchgereicht.
type LabelRequest struct {
	Action  string          `json:"action" binding:"required"`
	Handle  string          `json:"handle" binding:"required"`
	DID     string          `json:"did" binding:"required"`
	OrcidID string          `json:"orcidId,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// LabelService validiert Label-Mutationen und leitet sie an den externen
// Labeler weiter. Die Label-Semantik selbst liegt beim Labeler.
type LabelService struct {
	Config *config.Config
	Logger *zap.Logger
}

// NewLabelService erstellt einen LabelService.
func NewLabelService(cfg *config.Config, logger *zap.Logger) *LabelService {
	return &LabelService{Config: cfg, Logger: logger}
}

// Forward validiert die Anfrage und postet sie an den Labeler. Die Antwort
// des Labelers wird als Roh-JSON zurückgegeben.
func (s *LabelService) Forward(req *LabelRequest) (json.RawMessage, error) {
	switch req.Action {
	case "add", "update", "remove", "delete":
	default:
		return nil, NewFlowError(http.StatusBadRequest, "invalid action %q", req.Action)
	}
	if (req.Action == "remove" || req.Action == "delete") && req.OrcidID == "" {
		return nil, NewFlowError(http.StatusBadRequest, "orcidId is required for removing labels")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, NewFlowError(http.StatusInternalServerError, "internal error")
	}

	httpReq, err := http.NewRequest(http.MethodPost, s.Config.LabelerURL+"/labels", bytes.NewReader(body))
	if err != nil {
		return nil, NewFlowError(http.StatusInternalServerError, "internal error")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if s.Config.LabelerToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.Config.LabelerToken)
	}

	resp, err := labelClient.Do(httpReq)
	if err != nil {
		s.Logger.Error("Labeler nicht erreichbar", zap.Error(err))
		return nil, NewFlowError(http.StatusInternalServerError, "labeler unreachable")
	}
	defer resp.Body.Close()

	var result json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		result = json.RawMessage(`{}`)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.Logger.Error("Labeler hat Mutation abgelehnt",
			zap.Int("status", resp.StatusCode), zap.String("action", req.Action))
		return nil, NewFlowError(http.StatusInternalServerError, "labeler returned status %d", resp.StatusCode)
	}

	s.Logger.Info("Label-Mutation weitergeleitet",
		zap.String("action", req.Action),
		zap.String("did", req.DID),
		zap.String("handle", req.Handle))
	if result == nil {
		result = json.RawMessage(fmt.Sprintf(`{"action":%q,"status":"forwarded"}`, req.Action))
	}
	return result, nil
}
