package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cppla/rewardledger/config"
)

// Claims are the platform-issued JWT claims the service accepts.
// Tokens that only carry the standard "sub" claim are accepted too.
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// LearnerID returns the learner id carried by the token.
func (c *Claims) LearnerID() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.RegisteredClaims.Subject
}

// GenerateToken issues a JWT for the specified user identity.
func GenerateToken(userID, username string, duration time.Duration) (string, error) {
	cfg := config.Get()

	claims := Claims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(duration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.JWTSecret))
}

// ParseToken validates a JWT and returns its claims.
func ParseToken(tokenStr string) (*Claims, error) {
	cfg := config.Get()
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.LearnerID() == "" {
		return nil, errors.New("token has no user id")
	}

	return claims, nil
}
