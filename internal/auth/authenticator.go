package auth

import (
	"crypto/subtle"
	"errors"
)

// Authentication errors.
var (
	ErrMissingCredentials = errors.New("missing credentials")
	ErrInvalidAppKey      = errors.New("invalid app key")
)

// Method names how a request authenticated.
type Method string

const (
	MethodNone   Method = "none"
	MethodAppKey Method = "app_key"
	MethodBearer Method = "bearer"
)

// Credentials are what a request presented.
type Credentials struct {
	// AppKey comes from the app_key query parameter or the X-API-Key header.
	AppKey string

	// BearerToken is the token from the Authorization header.
	BearerToken string
}

// Principal is an authenticated caller.
type Principal struct {
	Method Method

	// User is the token subject. Empty for app key callers.
	User string
}

// AuthenticatorConfig configures an Authenticator.
type AuthenticatorConfig struct {
	// AppKey is the shared key. Empty disables app key authentication.
	AppKey string

	// JWT validates bearer tokens. Nil disables bearer authentication.
	JWT *JWTService
}

// Authenticator checks request credentials against the shared app key and
// bearer tokens.
type Authenticator struct {
	appKey []byte
	jwt    *JWTService
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(cfg AuthenticatorConfig) *Authenticator {
	return &Authenticator{
		appKey: []byte(cfg.AppKey),
		jwt:    cfg.JWT,
	}
}

// Enabled reports whether any credential is required.
func (a *Authenticator) Enabled() bool {
	return len(a.appKey) > 0 || a.jwt != nil
}

// Authenticate validates c. A bearer token is checked before the app key.
// When no method is configured every caller is accepted as MethodNone.
func (a *Authenticator) Authenticate(c Credentials) (Principal, error) {
	if !a.Enabled() {
		return Principal{Method: MethodNone}, nil
	}

	if c.BearerToken != "" && a.jwt != nil {
		claims, err := a.jwt.ValidateAccessToken(c.BearerToken)
		if err != nil {
			return Principal{}, err
		}
		return Principal{Method: MethodBearer, User: claims.User()}, nil
	}

	if c.AppKey != "" && len(a.appKey) > 0 {
		if subtle.ConstantTimeCompare([]byte(c.AppKey), a.appKey) != 1 {
			return Principal{}, ErrInvalidAppKey
		}
		return Principal{Method: MethodAppKey}, nil
	}

	if c.BearerToken != "" {
		return Principal{}, ErrInvalidAccessToken
	}
	if c.AppKey != "" {
		return Principal{}, ErrInvalidAppKey
	}
	return Principal{}, ErrMissingCredentials
}
