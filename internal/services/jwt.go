package services

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/boscod/trackwatch/internal/models"
	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenIssuer   = "trackwatch"
	tokenAudience = "trackwatch-dashboard"
	clockSkew     = 30 * time.Second
)

var errUnknownRole = errors.New("token carries an unknown role")

// JWTService issues the dashboard session tokens. Agents never hold one.
type JWTService struct {
	secretKey []byte
	expiry    time.Duration
	parser    *jwt.Parser
}

// JWTClaims snapshot the user's role at login; a role change takes effect
// on the next login.
type JWTClaims struct {
	UserID   int64       `json:"user_id"`
	Username string      `json:"username"`
	Role     models.Role `json:"role"`
	jwt.RegisteredClaims
}

func NewJWTService(secret string, expiry time.Duration) *JWTService {
	return &JWTService{
		secretKey: []byte(secret),
		expiry:    expiry,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(tokenIssuer),
			jwt.WithAudience(tokenAudience),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(clockSkew),
		),
	}
}

// GenerateToken signs a session token for user.
func (j *JWTService) GenerateToken(user *models.User) (string, error) {
	now := time.Now()
	claims := &JWTClaims{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Audience:  jwt.ClaimStrings{tokenAudience},
			Subject:   strconv.FormatInt(user.ID, 10),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secretKey)
}

// ValidateToken verifies signature, issuer, audience and expiry.
func (j *JWTService) ValidateToken(tokenString string) (*JWTClaims, error) {
	claims := &JWTClaims{}
	_, err := j.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return j.secretKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid session token: %w", err)
	}
	if _, err := models.ParseRole(string(claims.Role)); err != nil {
		return nil, errUnknownRole
	}
	return claims, nil
}

// GetExpiry is the lifetime of new tokens, used for the session cookie.
func (j *JWTService) GetExpiry() time.Duration {
	return j.expiry
}
