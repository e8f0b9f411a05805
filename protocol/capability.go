package protocol

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CapabilityClaims is the JWT payload scoping one federation-control
// command (§6 sendCommand: terminate, echo, notify, command_status,
// flush, or a user-defined string) to the node(s) and permissions it
// authorizes.
type CapabilityClaims struct {
	jwt.RegisteredClaims
	Scope       string   `json:"scope"`
	Permissions []string `json:"permissions"`
}

// CapabilityManager issues and validates capability tokens for
// sendCommand traffic. The cmd/ command handlers do not consult it;
// fem-broker's DISABLE_REMOTE_CONTROL flag is checked there on its own.
type CapabilityManager struct {
	signingKey []byte
}

func NewCapabilityManager(signingKey []byte) *CapabilityManager {
	return &CapabilityManager{signingKey: signingKey}
}

// Issue creates a signed token scoping a command to the given target
// and permission list, valid for duration.
func (cm *CapabilityManager) Issue(scope, issuer, subject string, permissions []string, duration time.Duration) (string, error) {
	now := time.Now()
	claims := CapabilityClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
			ID:        NewNonce(),
		},
		Scope:       scope,
		Permissions: permissions,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(cm.signingKey)
}

// Validate parses and verifies a capability token, returning its claims.
func (cm *CapabilityManager) Validate(tokenString string) (*CapabilityClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CapabilityClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return cm.signingKey, nil
	})
	if err != nil {
		return nil, NewError(InvalidParameter, "validating capability token", err)
	}
	claims, ok := token.Claims.(*CapabilityClaims)
	if !ok || !token.Valid {
		return nil, NewError(InvalidParameter, "capability token failed validation", nil)
	}
	return claims, nil
}

// HasPermission reports whether the capability authorizes permission,
// or carries the wildcard "*".
func (c *CapabilityClaims) HasPermission(permission string) bool {
	for _, p := range c.Permissions {
		if p == permission || p == "*" {
			return true
		}
	}
	return false
}

// AuthorizesCommand reports whether this capability's scope matches the
// federation-control command name being sent (§6).
func (c *CapabilityClaims) AuthorizesCommand(command string) bool {
	return c.Scope == command || c.Scope == "*"
}
