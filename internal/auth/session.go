// internal/auth/session.go
package auth

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// privateKey and publicKey are used for signing and verifying table tokens.
var (
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey

	// tokenTTL is how long a table token stays valid (0 => never).
	tokenTTL time.Duration
)

// Init generates a fresh ed25519 key pair at runtime. Tokens issued before a
// restart stop verifying, which only costs the holder a new table id.
func Init(ttl time.Duration) error {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return fmt.Errorf("failed to generate ed25519 key pair: %w", err)
	}
	publicKey, privateKey = pub, priv
	tokenTTL = ttl
	return nil
}

// InitFromPath loads the ed25519 key pair from disk so tokens survive restarts.
// When neither file exists yet a fresh pair is generated and written there.
func InitFromPath(privatePath, publicPath string, ttl time.Duration) error {
	privateKeyData, privErr := os.ReadFile(privatePath)
	publicKeyData, pubErr := os.ReadFile(publicPath)
	if errors.Is(privErr, fs.ErrNotExist) && errors.Is(pubErr, fs.ErrNotExist) {
		pub, priv, err := ed25519.GenerateKey(nil)
		if err != nil {
			return fmt.Errorf("failed to generate ed25519 key pair: %w", err)
		}
		if err := os.WriteFile(privatePath, priv, 0o600); err != nil {
			return fmt.Errorf("failed to write private key file: %w", err)
		}
		if err := os.WriteFile(publicPath, pub, 0o644); err != nil {
			return fmt.Errorf("failed to write public key file: %w", err)
		}
		privateKeyData, publicKeyData = priv, pub
	} else {
		if privErr != nil {
			return fmt.Errorf("failed to read private key file: %w", privErr)
		}
		if pubErr != nil {
			return fmt.Errorf("failed to read public key file: %w", pubErr)
		}
	}
	if len(privateKeyData) != ed25519.PrivateKeySize || len(publicKeyData) != ed25519.PublicKeySize {
		return fmt.Errorf("ed25519 key files have the wrong size")
	}

	privateKey = ed25519.PrivateKey(privateKeyData)
	publicKey = ed25519.PublicKey(publicKeyData)
	tokenTTL = ttl
	return nil
}

// CreateJWT signs a token with "sub" = tableID.
func CreateJWT(tableID string) (string, error) {
	if privateKey == nil {
		return "", fmt.Errorf("auth not initialized")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": tableID,
		"iat": now.Unix(),
	}
	if tokenTTL > 0 {
		claims["exp"] = now.Add(tokenTTL).Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(privateKey)
}

// AuthenticateJWT verifies a token string and returns its table id.
func AuthenticateJWT(tokenString string) (string, error) {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return publicKey, nil
	})
	if err != nil {
		return "", fmt.Errorf("jwt parse error: %w", err)
	}
	if !t.Valid {
		return "", fmt.Errorf("invalid token")
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid jwt claims")
	}
	tableID, ok := claims["sub"].(string)
	if !ok || tableID == "" {
		return "", fmt.Errorf("missing sub in jwt")
	}
	return tableID, nil
}
