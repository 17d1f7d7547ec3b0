package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims is the JWT payload. Authorities are a login-time projection of the
// user's permissions; pv is the permission version current at login.
type Claims struct {
	Username          string   `json:"username"`
	Authorities       []string `json:"authorities"`
	PermissionVersion int64    `json:"pv,omitempty"`
	jwt.RegisteredClaims
}

// TokenSigner issues signed tokens
type TokenSigner interface {
	Mint(claims *Claims) (string, error)
}

// TokenVerifier validates tokens and returns their claims
type TokenVerifier interface {
	Validate(token string) (*Claims, error)
}

// NewClaims builds the claims for principal with a fresh token id
func NewClaims(principal *Principal, authorities []string, version int64, issuer string, issuedAt time.Time, ttl time.Duration) *Claims {
	return &Claims{
		Username:          principal.Username,
		Authorities:       authorities,
		PermissionVersion: version,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(principal.UserID, 10),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
	}
}

// Principal converts validated claims into the request principal
func (c *Claims) Principal() (*Principal, error) {
	userID, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: subject %q is not a user id", ErrInvalidToken, c.Subject)
	}

	principal := &Principal{
		UserID:            userID,
		Username:          c.Username,
		Authorities:       c.Authorities,
		PermissionVersion: c.PermissionVersion,
		TokenID:           c.ID,
	}
	if c.ExpiresAt != nil {
		principal.ExpiresAt = c.ExpiresAt.Time
	}
	return principal, nil
}

// JWTSigner signs and validates HS256 tokens with a shared secret
type JWTSigner struct {
	secret []byte
	issuer string
}

// NewJWTSigner creates a signer. issuer, when set, is required on validation.
func NewJWTSigner(secret, issuer string) (*JWTSigner, error) {
	if secret == "" {
		return nil, errors.New("JWT secret is required")
	}
	return &JWTSigner{secret: []byte(secret), issuer: issuer}, nil
}

// Mint signs claims
func (s *JWTSigner) Mint(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Validate parses token, checks the signature, expiry and issuer
func (s *JWTSigner) Validate(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
