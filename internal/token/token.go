package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/classtrack/apiserver/types"
	"github.com/golang-jwt/jwt/v5"
)

// ErrExpired is returned when a session token is past its expiry. It is
// distinguished from ErrInvalid so clients can be told to re-authenticate
// rather than retry.
var ErrExpired = errors.New("token expired")

// ErrInvalid is returned for malformed, tampered or otherwise unusable
// session tokens.
var ErrInvalid = errors.New("token invalid")

// Claims are the statements carried by a session token.
type Claims struct {
	Role types.Role `json:"role"`
	jwt.RegisteredClaims
}

// Manager issues and verifies HS256-signed session tokens.
type Manager struct {
	secret []byte
	ttl    time.Duration
}

func NewManager(secret string, ttl time.Duration) *Manager {
	return &Manager{secret: []byte(secret), ttl: ttl}
}

// Issue signs a session token for the given identity with a fresh expiry.
func (m *Manager) Issue(id string, role types.Role) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Parse verifies the signature and expiry of a session token and returns its
// claims.
func (m *Manager) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalid
		}
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrInvalid
	}
	if !token.Valid || claims.Subject == "" || !types.ValidRole(claims.Role) {
		return nil, ErrInvalid
	}
	return claims, nil
}

const resetSecretBytes = 20

// NewResetSecret generates the random secret embedded in reset links. Only
// its hash is ever persisted.
func NewResetSecret() (string, error) {
	buf := make([]byte, resetSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// HashSecret returns the hex SHA-256 digest stored for a reset secret.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
