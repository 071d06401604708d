package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/spec-kit/enrollment-service/internal/domain"
)

// TokenManager validates the bearer tokens issued by the identity provider.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenManager builds a new manager. ttl only affects GenerateToken.
func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenManager{secret: []byte(secret), ttl: ttl}
}

// Claims describes the JWT payload. ScopeIDs carry offering ids for
// instructors and batch ids for advisors.
type Claims struct {
	Role     domain.Role `json:"role"`
	ScopeIDs []string    `json:"scope_ids,omitempty"`
	jwt.RegisteredClaims
}

// Caller converts validated claims into the workflow capability.
func (c *Claims) Caller() domain.Caller {
	return domain.Caller{UserID: c.Subject, Role: c.Role, ScopeIDs: c.ScopeIDs}
}

// GenerateToken signs a token for caller.
func (tm *TokenManager) GenerateToken(caller domain.Caller) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(tm.ttl)
	claims := &Claims{
		Role:     caller.Role,
		ScopeIDs: caller.ScopeIDs,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   caller.UserID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(tm.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// ParseToken validates and returns claims.
func (tm *TokenManager) ParseToken(tokenStr string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return tm.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	if !claims.Role.Valid() {
		return nil, errors.New("token has unknown role")
	}
	return claims, nil
}
