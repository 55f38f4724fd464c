// Package token issues and verifies the signed access and refresh
// tokens, and tracks revoked token IDs in Redis.
package token

import (
	"crypto/ed25519"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type SigningMethod string

const (
	MethodHS256   SigningMethod = "hs256"
	MethodEd25519 SigningMethod = "ed25519"
)

// Kind distinguishes the two token families. A refresh token can never
// be presented where an access token is expected.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

var (
	ErrExpired   = errors.New("token expired")
	ErrMalformed = errors.New("token malformed")
)

type Config struct {
	SigningMethod SigningMethod
	SigningKey    []byte
	PublicKey     []byte
	Issuer        string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Leeway        time.Duration
}

// Claims are the payload of both token kinds. ID carries the jti used
// for revocation.
type Claims struct {
	UserID     string `json:"uid"`
	SessionKey string `json:"sid,omitempty"`
	Role       string `json:"role,omitempty"`
	Kind       Kind   `json:"knd"`
	jwt.RegisteredClaims
}

type Manager struct {
	config Config
}

func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.SigningKey) == 0 {
			return nil, errors.New("hs256 requires signing key")
		}
	case MethodEd25519:
		if _, err := parseEdPrivateKey(cfg.SigningKey); err != nil {
			return nil, err
		}
		if len(cfg.PublicKey) > 0 {
			if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
				return nil, err
			}
		}
	default:
		return nil, errors.New("unsupported signing method")
	}
	return &Manager{config: cfg}, nil
}

// TTL returns the configured lifetime for a token kind.
func (m *Manager) TTL(kind Kind) time.Duration {
	if kind == KindRefresh {
		return m.config.RefreshTTL
	}
	return m.config.AccessTTL
}

// Issue signs a token of the given kind with a fresh jti.
func (m *Manager) Issue(kind Kind, userID, sessionKey, role string) (string, *Claims, error) {
	now := time.Now()
	claims := &Claims{
		UserID:     userID,
		SessionKey: sessionKey,
		Role:       role,
		Kind:       kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.TTL(kind))),
		},
	}

	signKey, err := m.signKey()
	if err != nil {
		return "", nil, err
	}
	signed, err := jwt.NewWithClaims(m.method(), claims).SignedString(signKey)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// Parse verifies signature and registered-claim validity. Revocation
// is the caller's concern; Parse is purely local.
func (m *Manager) Parse(tokenStr string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method().Alg()}),
		jwt.WithExpirationRequired(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parsed, err := jwt.NewParser(options...).ParseWithClaims(tokenStr, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return m.verifyKey()
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrMalformed
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.ID == "" || claims.UserID == "" {
		return nil, ErrMalformed
	}
	switch claims.Kind {
	case KindAccess, KindRefresh:
	default:
		return nil, ErrMalformed
	}
	return claims, nil
}

func (m *Manager) method() jwt.SigningMethod {
	if m.config.SigningMethod == MethodEd25519 {
		return jwt.SigningMethodEdDSA
	}
	return jwt.SigningMethodHS256
}

func (m *Manager) signKey() (interface{}, error) {
	if m.config.SigningMethod == MethodEd25519 {
		return parseEdPrivateKey(m.config.SigningKey)
	}
	return m.config.SigningKey, nil
}

func (m *Manager) verifyKey() (interface{}, error) {
	if m.config.SigningMethod == MethodEd25519 {
		if len(m.config.PublicKey) > 0 {
			return parseEdPublicKey(m.config.PublicKey)
		}
		priv, err := parseEdPrivateKey(m.config.SigningKey)
		if err != nil {
			return nil, err
		}
		return priv.Public(), nil
	}
	return m.config.SigningKey, nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
