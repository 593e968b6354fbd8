package security

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/domain"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/port"
)

var (
	// ErrTokenExpired is returned for well-formed tokens past their expiry.
	ErrTokenExpired = domain.NewError(domain.KindAuthentication, "token_expired", "authentication required")
	// ErrTokenInvalid covers forged, malformed and wrongly scoped tokens.
	ErrTokenInvalid = domain.NewError(domain.KindAuthentication, "token_invalid", "authentication required")
)

const defaultAccessTokenTTL = 15 * time.Minute

// accessTokenClaims is the wire form of domain.AccessClaims.
type accessTokenClaims struct {
	SessionID    string   `json:"sid,omitempty"`
	Role         string   `json:"role,omitempty"`
	Capabilities []string `json:"caps,omitempty"`
	jwt.RegisteredClaims
}

// JWTIssuer signs RS256 access tokens carrying issuer, audience and expiry.
type JWTIssuer struct {
	keys     KeyProvider
	issuer   string
	audience []string
	now      func() time.Time
}

// NewJWTIssuer constructs an issuer; issuer and at least one audience are required.
func NewJWTIssuer(keys KeyProvider, issuer string, audience []string) (*JWTIssuer, error) {
	if keys == nil {
		return nil, errors.New("jwt: key provider required")
	}
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		return nil, errors.New("jwt: issuer required")
	}
	if len(audience) == 0 {
		return nil, errors.New("jwt: audience required")
	}
	return &JWTIssuer{keys: keys, issuer: issuer, audience: audience, now: time.Now}, nil
}

// WithClock overrides the time source.
func (i *JWTIssuer) WithClock(now func() time.Time) *JWTIssuer {
	if now != nil {
		i.now = now
	}
	return i
}

// Issue signs claims. Issuer, audience and timestamps are always set by the issuer.
func (i *JWTIssuer) Issue(claims domain.AccessClaims, ttl time.Duration) (string, error) {
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return "", errors.New("jwt: subject required")
	}
	if ttl <= 0 {
		ttl = defaultAccessTokenTTL
	}

	kid, key, err := i.keys.SigningKey()
	if err != nil {
		return "", fmt.Errorf("jwt: get signing key: %w", err)
	}

	now := i.now().UTC()
	jti := claims.TokenID
	if jti == "" {
		jti = uuid.NewString()
	}

	wire := accessTokenClaims{
		SessionID:    claims.SessionID,
		Role:         claims.Role,
		Capabilities: claims.Capabilities,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    i.issuer,
			Audience:  i.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        jti,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, wire)
	token.Header["kid"] = kid

	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("jwt: sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token. Failures are ErrTokenExpired or ErrTokenInvalid.
func (i *JWTIssuer) Verify(raw string) (domain.AccessClaims, error) {
	var wire accessTokenClaims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithAudience(i.audience[0]),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)

	_, err := parser.ParseWithClaims(raw, &wire, func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing kid")
		}
		return i.keys.VerificationKey(kid)
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.AccessClaims{}, ErrTokenExpired.Wrap(err)
		}
		return domain.AccessClaims{}, ErrTokenInvalid.Wrap(err)
	}

	claims := domain.AccessClaims{
		TokenID:      wire.ID,
		Subject:      wire.Subject,
		SessionID:    wire.SessionID,
		Role:         wire.Role,
		Capabilities: wire.Capabilities,
		Issuer:       wire.Issuer,
		Audience:     wire.Audience,
	}
	if wire.IssuedAt != nil {
		claims.IssuedAt = wire.IssuedAt.Time
	}
	if wire.ExpiresAt != nil {
		claims.ExpiresAt = wire.ExpiresAt.Time
	}
	return claims, nil
}

// JWKS produces the JSON Web Key Set for every verification key.
func (i *JWTIssuer) JWKS() ([]byte, error) {
	keys := make([]map[string]string, 0)
	for kid, key := range i.keys.VerificationKeys() {
		if key == nil {
			continue
		}
		keys = append(keys, buildJWK(kid, key))
	}
	return json.Marshal(map[string]any{"keys": keys})
}

func buildJWK(kid string, key *rsa.PublicKey) map[string]string {
	return map[string]string{
		"kty": "RSA",
		"use": "sig",
		"alg": "RS256",
		"kid": kid,
		"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
	}
}

var _ port.TokenIssuer = (*JWTIssuer)(nil)
