package atproto

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bsky-verifier/config"

	"go.uber.org/zap"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

// Client kapselt die Interaktion mit dem AT-Proto-OAuth-Server und der
// Identity-API.
type Client struct {
	Config *config.Config
	Logger *zap.Logger
}

// NewClient erstellt eine neue Instanz des AT-Proto-Clients.
func NewClient(cfg *config.Config, logger *zap.Logger) *Client {
	return &Client{Config: cfg, Logger: logger}
}

// ResolveHandle löst ein Bluesky-Handle über die Identity-API zu einer DID auf.
func (c *Client) ResolveHandle(handle string) (string, error) {
	resolveURL := fmt.Sprintf("%s/xrpc/com.atproto.identity.resolveHandle?handle=%s",
		c.Config.AtprotoResolverURL, url.QueryEscape(handle))
	c.Logger.Debug("Löse Handle auf", zap.String("handle", handle))

	resp, err := httpClient.Get(resolveURL)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("handle resolution failed for %s: status %d", handle, resp.StatusCode)
	}

	var rr resolveResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return "", err
	}
	if rr.DID == "" {
		return "", fmt.Errorf("no DID in resolve response for %s", handle)
	}
	return rr.DID, nil
}

// AuthURL baut die Authorization-URL für den zweiten OAuth-Schritt. Der packed
// State trägt das gesamte akademische Profil durch den Redirect-Flow.
func (c *Client) AuthURL(handle, state string) string {
	params := url.Values{}
	params.Set("client_id", c.Config.ClientMetadataURL())
	params.Set("response_type", "code")
	params.Set("redirect_uri", c.Config.OrcidRedirectURI())
	params.Set("scope", "atproto transition:generic")
	params.Set("login_hint", handle)
	params.Set("state", state)
	params.Set("provider", "atproto")
	return c.Config.AtprotoAuthURL + "?" + params.Encode()
}

// ExchangeCode tauscht einen Authorization-Code gegen eine Session. Der
// iss-Parameter kommt vom Callback und benennt den Authorization-Server.
func (c *Client) ExchangeCode(code, iss string) (*Session, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("client_id", c.Config.ClientMetadataURL())
	form.Set("redirect_uri", c.Config.OrcidRedirectURI())
	if iss != "" {
		form.Set("issuer", iss)
	}

	req, err := http.NewRequest(http.MethodPost, c.Config.AtprotoTokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.Logger.Error("AT-Proto Token-Exchange fehlgeschlagen", zap.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("atproto token exchange failed: status %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("fehler beim Parsen der Token-Antwort: %w", err)
	}
	if tr.AccessToken == "" || tr.Sub == "" {
		return nil, fmt.Errorf("no access token or DID in token response")
	}
	return &Session{
		DID:        tr.Sub,
		Handle:     tr.Handle,
		AccessJwt:  tr.AccessToken,
		RefreshJwt: tr.RefreshToken,
	}, nil
}
