// pkg/authn/verify.go
package authn

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"tandem/pkg/config"
	"tandem/pkg/problems"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/redis/go-redis/v9"
)

// jwksCache caches JWKS sets per URL.
type jwksCache struct {
	mu   sync.RWMutex
	sets map[string]cachedJWKS
}

type cachedJWKS struct {
	set     jwk.Set
	expires time.Time
}

func (c *jwksCache) get(ctx context.Context, url string, ttl time.Duration) (jwk.Set, error) {
	c.mu.RLock()
	if e, ok := c.sets[url]; ok && time.Now().Before(e.expires) {
		c.mu.RUnlock()
		return e.set, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sets == nil {
		c.sets = map[string]cachedJWKS{}
	}
	if e, ok := c.sets[url]; ok && time.Now().Before(e.expires) {
		return e.set, nil
	}
	set, err := jwk.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	c.sets[url] = cachedJWKS{set: set, expires: time.Now().Add(ttl)}
	return set, nil
}

const denylistPrefix = "tandem:revoked:"

// Verify validates inbound access tokens and attaches an AuthContext to the
// request context. Tokens whose jti appears in the Redis denylist are
// rejected even when otherwise valid; rdb may be nil.
func Verify(cfg config.Config, rdb *redis.Client) func(http.Handler) http.Handler {
	cache := &jwksCache{}
	jwksTTL := 6 * time.Hour
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			issuer := strings.TrimRight(cfg.Issuer, "/")
			if issuer == "" || cfg.JWKSURL == "" {
				problems.Write(w, problems.Internal("auth not configured", nil))
				return
			}

			authz := r.Header.Get("Authorization")
			if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
				problems.Write(w, problems.Unauthorized("missing bearer"))
				return
			}
			raw := strings.TrimSpace(authz[len("Bearer "):])

			set, err := cache.get(r.Context(), cfg.JWKSURL, jwksTTL)
			if err != nil {
				problems.Write(w, problems.Internal("jwks fetch failed", err))
				return
			}

			parseOpts := []jwt.ParseOption{
				jwt.WithKeySet(set),
				jwt.WithIssuer(issuer),
				jwt.WithValidate(true),
				jwt.WithVerify(true),
				jwt.WithAcceptableSkew(cfg.ClockSkew),
			}
			if cfg.Audience != "" {
				parseOpts = append(parseOpts, jwt.WithAudience(cfg.Audience))
			}
			jt, perr := jwt.Parse([]byte(raw), parseOpts...)
			if perr != nil {
				problems.Write(w, problems.Unauthorized("invalid token"))
				return
			}

			if rdb != nil {
				if jti := jt.JwtID(); jti != "" {
					n, err := rdb.Exists(r.Context(), denylistPrefix+jti).Result()
					if err == nil && n > 0 {
						problems.Write(w, problems.Unauthorized("token revoked"))
						return
					}
				}
			}

			ac := buildAuthContext(raw, jt)
			next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), ac)))
		})
	}
}

func buildAuthContext(raw string, jt jwt.Token) AuthContext {
	ac := AuthContext{
		Token:    raw,
		Issuer:   jt.Issuer(),
		Subject:  jt.Subject(),
		Audience: jt.Audience(),
		Claims:   map[string]any{},
	}
	if sc, ok := jt.Get("scope"); ok {
		if s, _ := sc.(string); s != "" {
			ac.Scopes = strings.Fields(s)
		}
	}
	if v, ok := jt.Get("azp"); ok {
		ac.ClientID, _ = v.(string)
	} else if v, ok := jt.Get("client_id"); ok {
		ac.ClientID, _ = v.(string)
	}
	for k, v := range jt.PrivateClaims() {
		ac.Claims[k] = v
	}
	return ac
}
