package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims identifies the holder of a bearer credential.
type Claims struct {
	UserID int64
	Email  string
}

type AuthService struct {
	jwtSecret []byte
	ttl       time.Duration
}

func NewAuthService(secret string, ttl time.Duration) *AuthService {
	if secret == "" {
		secret = "your-default-secret-key-change-in-production"
	}
	if ttl <= 0 {
		ttl = time.Hour * 24 * 7
	}
	return &AuthService{
		jwtSecret: []byte(secret),
		ttl:       ttl,
	}
}

// CreateJWT generates a JWT token for a user
func (s *AuthService) CreateJWT(userID int64, email string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"uid":   userID,
		"email": email,
		"exp":   time.Now().Add(s.ttl).Unix(),
	})

	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// VerifyJWT verifies a JWT token and returns its claims
func (s *AuthService) VerifyJWT(tokenString string) (Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return Claims{}, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return Claims{}, errors.New("invalid token")
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, errors.New("invalid token claims")
	}

	email, ok := mapClaims["email"].(string)
	if !ok {
		return Claims{}, errors.New("email claim missing")
	}
	// numeric claims decode as float64
	uid, ok := mapClaims["uid"].(float64)
	if !ok || uid <= 0 {
		return Claims{}, errors.New("uid claim missing")
	}

	return Claims{UserID: int64(uid), Email: email}, nil
}
