// Package atproto enthält den OAuth-Client für das AT-Protocol (Bluesky):
// Handle-Auflösung, Authorization-URL und Token-Exchange.
package atproto

// Session repräsentiert eine etablierte AT-Proto-Session nach dem Token-Exchange.
type Session struct {
	DID        string `json:"did"`
	Handle     string `json:"handle"`
	AccessJwt  string `json:"accessJwt"`
	RefreshJwt string `json:"refreshJwt"`
}

// tokenResponse repräsentiert die JSON-Antwort des AT-Proto-Token-Endpoints.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	Sub          string `json:"sub"`
	Handle       string `json:"handle"`
}

// resolveResponse repräsentiert die Antwort von com.atproto.identity.resolveHandle.
type resolveResponse struct {
	DID string `json:"did"`
}
