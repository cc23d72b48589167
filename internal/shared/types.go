package shared

// UserInfo is the authenticated caller, resolved from a Parse session token
// (để tránh import cycle giữa book và permission domain)
type UserInfo struct {
	ObjectID     string `json:"objectId"`
	Email        string `json:"email"`
	SessionToken string `json:"sessionToken"`
}

// Gin context keys set by middleware.
const (
	ContextKeyUser        = "user"
	ContextKeyEnvironment = "env"
	ContextKeyRequestID   = "request_id"
)

// HeaderAuthenticationToken carries the caller's Parse session token.
const HeaderAuthenticationToken = "Authentication-Token"
