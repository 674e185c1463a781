package oauth

import (
	"fmt"
	"time"

	"github.com/tidegate/tidegate/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// stateTTL bounds how long an authorization attempt stays valid.
const stateTTL = 10 * time.Minute

// stateClaims binds an authorization attempt to one tenant and one nonce.
// The nonce makes every attempt single-purpose; the signature keeps a
// callback from being replayed against another tenant.
type stateClaims struct {
	TenantID string `json:"tid"`
	Nonce    string `json:"nonce"`
	jwt.RegisteredClaims
}

func signState(secret []byte, tenantID string) (string, error) {
	now := time.Now()

	claims := stateClaims{
		TenantID: tenantID,
		Nonce:    uuid.NewString(),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(stateTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign state token: %w", err)
	}

	return signed, nil
}

// parseState verifies the callback's state parameter and recovers the
// (tenantID, nonce) pair. Anything that does not verify into exactly that
// pair is ErrInvalidState.
func parseState(secret []byte, state string) (tenantID, nonce string, err error) {
	claims := &stateClaims{}

	_, err = jwt.ParseWithClaims(state, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", domain.ErrInvalidState, err)
	}

	if claims.TenantID == "" || claims.Nonce == "" {
		return "", "", domain.ErrInvalidState
	}

	return claims.TenantID, claims.Nonce, nil
}
