// ABOUTME: JWT token verification and generation for bot traffic
// ABOUTME: Uses HS256 signing with configurable secret, issuer, and audience

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// TokenVerifier verifies a bearer token and returns the caller identity.
type TokenVerifier interface {
	Verify(tokenString string) (*Identity, error)
}

// JWTVerifier implements TokenVerifier using HS256 signed JWTs.
type JWTVerifier struct {
	secret   []byte
	issuer   string
	audience string
}

// VerifierOption configures a JWTVerifier.
type VerifierOption func(*JWTVerifier)

// WithIssuer requires and stamps the "iss" claim.
func WithIssuer(iss string) VerifierOption {
	return func(v *JWTVerifier) { v.issuer = iss }
}

// WithAudience requires the "aud" claim on verified tokens.
func WithAudience(aud string) VerifierOption {
	return func(v *JWTVerifier) { v.audience = aud }
}

// NewJWTVerifier creates a new JWT verifier with the given secret.
func NewJWTVerifier(secret []byte, opts ...VerifierOption) *JWTVerifier {
	v := &JWTVerifier{secret: secret}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify validates the token and returns its claims as an Identity.
func (v *JWTVerifier) Verify(tokenString string) (*Identity, error) {
	var parserOpts []jwt.ParserOption
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(v.audience))
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method is HS256
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, parserOpts...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	identity := &Identity{Claims: map[string]any(claims), Authenticated: true}
	if identity.AppID() == "" && identity.Claim(ClaimSubject) == "" {
		return nil, fmt.Errorf("%w: appid or sub", ErrMissingClaim)
	}
	return identity, nil
}

// Generate mints a version 2.0 token for appID addressed to audience.
func (v *JWTVerifier) Generate(appID, audience string, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		ClaimSubject:  appID,
		ClaimAZP:      appID,
		ClaimVersion:  "2.0",
		ClaimAudience: audience,
		"iat":         now.Unix(),
		"exp":         now.Add(expiresIn).Unix(),
	}
	if v.issuer != "" {
		claims[ClaimIssuer] = v.issuer
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
