// Package auth turns bearer tokens into principals.
package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt"
)

// Roles.
const (
	RoleAdmin      = "admin"
	RoleDispatcher = "dispatcher"
	RoleDriver     = "driver"
)

// Verifier validates tokens. Modes: dev (unsigned user:role[:driverId]) and hmac (HS256 JWT).
type Verifier struct {
	Mode        string
	HMACSecret  []byte
	RoleClaim   string
	DriverClaim string
}

type Principal struct {
	UserID   string
	Role     string
	DriverID string
}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// CanDispatch reports whether p may run optimizations and commit batches.
func (p Principal) CanDispatch() bool { return p.Role == RoleAdmin || p.Role == RoleDispatcher }

func NewVerifier(mode, secret string) *Verifier {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		mode = "dev"
	}
	return &Verifier{Mode: mode, HMACSecret: []byte(secret), RoleClaim: "role", DriverClaim: "driver_id"}
}

func (v *Verifier) Verify(token string) (Principal, error) {
	switch v.Mode {
	case "dev":
		parts := strings.Split(token, ":")
		if len(parts) < 2 || parts[1] == "" {
			return Principal{}, errors.New("invalid dev token; expected user:role[:driverId]")
		}
		p := Principal{UserID: parts[0], Role: strings.ToLower(parts[1])}
		if len(parts) > 2 {
			p.DriverID = parts[2]
		}
		return p, nil
	case "hmac":
		return v.verifyHMAC(token)
	}
	return Principal{}, fmt.Errorf("unsupported auth mode %q", v.Mode)
}

func (v *Verifier) verifyHMAC(token string) (Principal, error) {
	if len(v.HMACSecret) == 0 {
		return Principal{}, errors.New("hmac secret not configured")
	}
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.HMACSecret, nil
	})
	if err != nil {
		return Principal{}, err
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return Principal{}, errors.New("invalid token claims")
	}
	sub, _ := claims["sub"].(string)
	role, _ := claims[v.RoleClaim].(string)
	driver, _ := claims[v.DriverClaim].(string)
	if sub == "" {
		return Principal{}, errors.New("missing sub claim")
	}
	role = strings.ToLower(role)
	if role == "" {
		role = "user"
	}
	if role == RoleDriver && driver == "" {
		driver = sub
	}
	return Principal{UserID: sub, Role: role, DriverID: driver}, nil
}
