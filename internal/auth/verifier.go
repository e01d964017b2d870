// Package auth provides JWT verification helpers.
package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// ErrInvalidToken wraps every verification failure.
var ErrInvalidToken = errors.New("invalid token")

// Principal is what a verified token says about the caller.
type Principal struct {
	UserID   string
	Role     string
	Region   string
	District string
}

// Options configure a Verifier.
type Options struct {
	// Mode is dev (no verification), hmac (HS256) or jwks (RS256 keys
	// fetched from JWKSURL).
	Mode          string
	HMACSecret    string
	JWKSURL       string
	RoleClaim     string
	RegionClaim   string
	DistrictClaim string
}

// Verifier validates bearer tokens and extracts role and geography claims.
type Verifier struct {
	mode          string
	secret        []byte
	jwksURL       string
	roleClaim     string
	regionClaim   string
	districtClaim string

	http      *http.Client
	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	lastFetch time.Time
	cacheTTL  time.Duration
}

func NewVerifier(o Options) *Verifier {
	mode := strings.ToLower(strings.TrimSpace(o.Mode))
	if mode == "" {
		mode = "dev"
	}
	return &Verifier{
		mode:          mode,
		secret:        []byte(o.HMACSecret),
		jwksURL:       o.JWKSURL,
		roleClaim:     or(o.RoleClaim, "role"),
		regionClaim:   or(o.RegionClaim, "region"),
		districtClaim: or(o.DistrictClaim, "district"),
		http:          &http.Client{Timeout: 5 * time.Second},
		cacheTTL:      10 * time.Minute,
	}
}

func or(v, d string) string {
	if v != "" {
		return v
	}
	return d
}

// Mode reports the configured verification mode.
func (v *Verifier) Mode() string { return v.mode }

func (v *Verifier) Verify(ctx context.Context, token string) (Principal, error) {
	if v.mode == "dev" {
		// token format: role[:region[:district]]
		parts := strings.SplitN(token, ":", 3)
		p := Principal{Role: normalizeRole(parts[0])}
		if len(parts) > 1 {
			p.Region = parts[1]
		}
		if len(parts) > 2 {
			p.District = parts[2]
		}
		if p.Role == "" {
			return Principal{}, fmt.Errorf("dev token needs role[:region[:district]]: %w", ErrInvalidToken)
		}
		return p, nil
	}

	var methods []string
	switch v.mode {
	case "hmac":
		methods = []string{jwt.SigningMethodHS256.Alg()}
	case "jwks":
		methods = []string{jwt.SigningMethodRS256.Alg()}
	default:
		return Principal{}, fmt.Errorf("unsupported auth mode %q: %w", v.mode, ErrInvalidToken)
	}
	claims := jwt.MapClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods(methods))
	if _, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if v.mode == "hmac" {
			return v.secret, nil
		}
		kid, _ := t.Header["kid"].(string)
		return v.rsaKey(ctx, kid)
	}); err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	p := Principal{
		UserID:   claimString(claims, "sub"),
		Role:     normalizeRole(claimString(claims, v.roleClaim)),
		Region:   claimString(claims, v.regionClaim),
		District: claimString(claims, v.districtClaim),
	}
	if p.Role == "" {
		return Principal{}, fmt.Errorf("missing %s claim: %w", v.roleClaim, ErrInvalidToken)
	}
	return p, nil
}

func normalizeRole(r string) string { return strings.ToLower(strings.TrimSpace(r)) }

func claimString(c jwt.MapClaims, name string) string {
	s, _ := c[name].(string)
	return strings.TrimSpace(s)
}

type jwks struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// rsaKey returns the cached key for kid, refetching the set when it is
// stale or the kid is unknown.
func (v *Verifier) rsaKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.RLock()
	key, ok := v.keys[kid]
	stale := time.Since(v.lastFetch) > v.cacheTTL
	v.mu.RUnlock()
	if ok && !stale {
		return key, nil
	}
	if err := v.fetchJWKS(ctx); err != nil {
		return nil, err
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	if key, ok := v.keys[kid]; ok {
		return key, nil
	}
	return nil, fmt.Errorf("kid %q not found in JWKS", kid)
}

func (v *Verifier) fetchJWKS(ctx context.Context) error {
	if v.jwksURL == "" {
		return errors.New("AUTH_JWKS_URL not set")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return err
	}
	resp, err := v.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch JWKS: status %d", resp.StatusCode)
	}
	var set jwks
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return err
	}
	keys := map[string]*rsa.PublicKey{}
	for _, k := range set.Keys {
		if !strings.EqualFold(k.Kty, "RSA") {
			continue
		}
		n, err := base64.RawURLEncoding.DecodeString(k.N)
		if err != nil {
			return fmt.Errorf("jwk %s modulus: %w", k.Kid, err)
		}
		e, err := base64.RawURLEncoding.DecodeString(k.E)
		if err != nil {
			return fmt.Errorf("jwk %s exponent: %w", k.Kid, err)
		}
		keys[k.Kid] = &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(new(big.Int).SetBytes(e).Int64())}
	}
	v.mu.Lock()
	v.keys = keys
	v.lastFetch = time.Now()
	v.mu.Unlock()
	return nil
}
