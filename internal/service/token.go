package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const completionPurpose = "goal_complete"

var ErrInvalidToken = errors.New("invalid or expired link")

// TokenService signs the links that let a recipient mark a goal as achieved.
type TokenService struct {
	secret string
	expiry time.Duration
	now    func() time.Time
}

func NewTokenService(secret string, expiry time.Duration) *TokenService {
	return &TokenService{secret: secret, expiry: expiry, now: time.Now}
}

func (s *TokenService) GenerateCompletionToken(goalID string) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"goal_id": goalID,
		"purpose": completionPurpose,
		"iat":     now.Unix(),
	}
	if s.expiry > 0 {
		claims["exp"] = now.Add(s.expiry).Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString([]byte(s.secret))
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// VerifyCompletionToken returns the goal id carried by a completion token.
func (s *TokenService) VerifyCompletionToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.secret), nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}

	if purpose, _ := claims["purpose"].(string); purpose != completionPurpose {
		return "", ErrInvalidToken
	}

	goalID, _ := claims["goal_id"].(string)
	if goalID == "" {
		return "", ErrInvalidToken
	}

	return goalID, nil
}
