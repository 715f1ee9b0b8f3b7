package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/onco/onco/internal/platform/apiclient"
)

const jwksFetchTimeout = 10 * time.Second

// JWK is one RSA entry of a JWKS document.
type JWK struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwksDocument struct {
	Keys []JWK `json:"keys"`
}

// JWKSCache holds the identity provider's signing keys for ttl. A kid that
// is not cached triggers one refetch, shared by concurrent callers.
type JWKSCache struct {
	url    string
	ttl    time.Duration
	client *apiclient.Client
	keys   *cache.Cache
	group  singleflight.Group
}

func NewJWKSCache(jwksURL string, ttl time.Duration) *JWKSCache {
	client, err := apiclient.New("", jwksFetchTimeout)
	if err != nil {
		panic(err) // an empty base URL never fails
	}
	return &JWKSCache{
		url:    jwksURL,
		ttl:    ttl,
		client: client,
		keys:   cache.New(ttl, 2*ttl),
	}
}

func (c *JWKSCache) GetKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if key, ok := c.keys.Get(kid); ok {
		return key.(*rsa.PublicKey), nil
	}

	if _, err, _ := c.group.Do("fetch", func() (interface{}, error) {
		return nil, c.refresh(ctx)
	}); err != nil {
		return nil, fmt.Errorf("fetching JWKS: %w", err)
	}

	if key, ok := c.keys.Get(kid); ok {
		return key.(*rsa.PublicKey), nil
	}
	return nil, fmt.Errorf("key with kid %q not found in JWKS", kid)
}

func (c *JWKSCache) refresh(ctx context.Context) error {
	var doc jwksDocument
	if err := c.client.DoJSON(ctx, http.MethodGet, c.url, nil, nil, &doc); err != nil {
		return err
	}
	for _, k := range doc.Keys {
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		pub, err := parseRSAPublicKey(k)
		if err != nil {
			continue
		}
		c.keys.Set(k.Kid, pub, cache.DefaultExpiration)
	}
	return nil
}

func parseRSAPublicKey(k JWK) (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("decoding modulus: %w", err)
	}
	e, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("decoding exponent: %w", err)
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(n),
		E: int(new(big.Int).SetBytes(e).Int64()),
	}, nil
}
