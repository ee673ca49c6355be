package f

import (
	"time"

	"github.com/lestrrat-go/jwx/v3/jwt"
)

// Claims read from a verified token to find its tenant, in order.
var TenantClaims = []string{"tenantId", "dbName"}

type JwtConfig struct {
	Issuer           string
	SecretKey        string
	JwkPrivateBase64 string
	JwkPublicBase64  string
}

type CreateJwtConfig struct {
	Subject  string
	Issuer   string
	Audience []string
	Claims   map[string]any
	Ttl      time.Duration
}

type TokenProvider interface {
	Create(cfg CreateJwtConfig) (string, error)
	Verify(token string) (jwt.Token, error)
}
