// Package jwt emisión y validación de tokens de acceso para la API.
package jwt

import (
	"errors"
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken el token no es válido o está expirado.
	ErrInvalidToken = errors.New("token inválido")
)

// Claims claims propios de la API sobre los registrados de JWT.
type Claims struct {
	jwtlib.RegisteredClaims
	UserID string `json:"uid"`
	Role   string `json:"role"`
}

// Manager emite y valida tokens firmados con HS256.
type Manager struct {
	secret     []byte
	issuer     string
	expiration time.Duration
}

// NewManager construye un Manager. expirationMinutes <= 0 usa 60.
func NewManager(secret, issuer string, expirationMinutes int) *Manager {
	if expirationMinutes <= 0 {
		expirationMinutes = 60
	}
	return &Manager{
		secret:     []byte(secret),
		issuer:     issuer,
		expiration: time.Duration(expirationMinutes) * time.Minute,
	}
}

// Generate emite un token para el usuario dado.
func (m *Manager) Generate(userID, role string) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   userID,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(m.expiration)),
		},
		UserID: userID,
		Role:   role,
	}

	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("firmando token: %w", err)
	}
	return signed, nil
}

// Parse valida el token y devuelve sus claims.
func (m *Manager) Parse(tokenString string) (*Claims, error) {
	token, err := jwtlib.ParseWithClaims(tokenString, &Claims{}, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("método de firma inesperado: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
