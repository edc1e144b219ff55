// Package auth owns the client session: persisted credentials, the identity
// cached alongside them, and the coordinator that refreshes expired access
// tokens for every concurrent caller.
package auth

// DefaultTokenType is used when the backend does not name a token type.
const DefaultTokenType = "Bearer"

// Credentials is the access/refresh token pair issued by the backend.
type Credentials struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type,omitempty"`
}

// Valid reports whether both tokens are present.
func (c Credentials) Valid() bool {
	return c.AccessToken != "" && c.RefreshToken != ""
}

// Scheme returns the authorization scheme to sign requests with.
func (c Credentials) Scheme() string {
	if c.TokenType == "" {
		return DefaultTokenType
	}
	return c.TokenType
}

// Identity is the authenticated user, cached for display.
type Identity struct {
	UserID      string `json:"user_id"`
	Role        string `json:"role"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
}

// record is the persisted form: every logical key in one object so a write
// replaces the whole session at once.
type record struct {
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	UserID       string `json:"user_id,omitempty"`
	UserRole     string `json:"user_role,omitempty"`
	UserName     string `json:"user_name,omitempty"`
	UserEmail    string `json:"user_email,omitempty"`
}

// credentials returns the stored pair, or nil when absent or partial.
func (r *record) credentials() *Credentials {
	if r == nil || r.AccessToken == "" || r.RefreshToken == "" {
		return nil
	}
	return &Credentials{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		TokenType:    r.TokenType,
	}
}

func (r *record) identity() *Identity {
	if r == nil || r.UserID == "" {
		return nil
	}
	return &Identity{
		UserID:      r.UserID,
		Role:        r.UserRole,
		DisplayName: r.UserName,
		Email:       r.UserEmail,
	}
}

func (r *record) setCredentials(c Credentials) {
	r.AccessToken = c.AccessToken
	r.RefreshToken = c.RefreshToken
	r.TokenType = c.TokenType
}

func (r *record) setIdentity(id Identity) {
	r.UserID = id.UserID
	r.UserRole = id.Role
	r.UserName = id.DisplayName
	r.UserEmail = id.Email
}

// State is the derived session state. It is never persisted.
type State int

const (
	StateLoggedOut State = iota
	StateLoggedIn
	StateRefreshing
)

func (s State) String() string {
	switch s {
	case StateLoggedIn:
		return "logged_in"
	case StateRefreshing:
		return "refreshing"
	default:
		return "logged_out"
	}
}
