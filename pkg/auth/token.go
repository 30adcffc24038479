package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultAccessTokenTTL is the access token lifetime used when the
// configuration leaves it unset.
const DefaultAccessTokenTTL = 15 * time.Minute

// TokenConfig holds access token configuration.
type TokenConfig struct {
	Secret         []byte
	Issuer         string
	AccessTokenTTL time.Duration
}

// AccessTokenClaims represents the claims in an access token. The subject
// carries the account login.
type AccessTokenClaims struct {
	jwt.RegisteredClaims
	Authorities []string `json:"auth,omitempty"`
}

// TokenService mints and validates stateless access tokens.
type TokenService struct {
	config TokenConfig
}

// NewTokenService creates a new token service.
func NewTokenService(config TokenConfig) *TokenService {
	if config.AccessTokenTTL == 0 {
		config.AccessTokenTTL = DefaultAccessTokenTTL
	}
	return &TokenService{config: config}
}

// AccessTokenTTL returns the access token TTL.
func (s *TokenService) AccessTokenTTL() time.Duration {
	return s.config.AccessTokenTTL
}

// IssueAccessToken creates a signed access token for the given login.
func (s *TokenService) IssueAccessToken(login string, authorities []string) (string, error) {
	now := time.Now()
	claims := AccessTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   login,
			Issuer:    s.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.AccessTokenTTL)),
		},
		Authorities: authorities,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.config.Secret)
}

// ValidateAccessToken parses and validates an access token, returning its
// claims.
func (s *TokenService) ValidateAccessToken(tokenString string) (*AccessTokenClaims, error) {
	claims := &AccessTokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.config.Secret, nil
	}, jwt.WithIssuer(s.config.Issuer))
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.Subject == "" {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
