package adapters

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"
	f "github.com/soffa-projects/tenantdb/core"
)

type defaultJwtProvider struct {
	privkey   jwk.Key
	pubkey    jwk.Key
	issuer    string
	secretKey string
}

// NewTokenProvider signs with RS256 when a key pair is configured, HS256
// with the shared secret otherwise.
func NewTokenProvider(cfg f.JwtConfig) (f.TokenProvider, error) {
	p := &defaultJwtProvider{
		issuer:    cfg.Issuer,
		secretKey: cfg.SecretKey,
	}
	if cfg.JwkPrivateBase64 != "" {
		privkey, err := parseKey(cfg.JwkPrivateBase64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		p.privkey = privkey
	}
	if cfg.JwkPublicBase64 != "" {
		pubkey, err := parseKey(cfg.JwkPublicBase64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse public key: %w", err)
		}
		p.pubkey = pubkey
	} else if p.privkey != nil {
		pubkey, err := jwk.PublicKeyOf(p.privkey)
		if err != nil {
			return nil, fmt.Errorf("failed to derive public key: %w", err)
		}
		p.pubkey = pubkey
	}
	return p, nil
}

func parseKey(encoded string) (jwk.Key, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	if strings.Contains(string(raw), "-----BEGIN") {
		return jwk.ParseKey(raw, jwk.WithPEM(true))
	}
	return jwk.ParseKey(raw)
}

func (p *defaultJwtProvider) Create(cfg f.CreateJwtConfig) (string, error) {
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = p.issuer
	}
	now := time.Now()
	builder := jwt.NewBuilder().
		JwtID(uuid.NewString()).
		Issuer(issuer).
		IssuedAt(now).
		Subject(cfg.Subject).
		Expiration(now.Add(cfg.Ttl))
	if len(cfg.Audience) > 0 {
		builder = builder.Audience(cfg.Audience)
	}
	for k, v := range cfg.Claims {
		builder = builder.Claim(k, v)
	}

	tok, err := builder.Build()
	if err != nil {
		return "", err
	}
	var signed []byte
	switch {
	case p.privkey != nil:
		signed, err = jwt.Sign(tok, jwt.WithKey(jwa.RS256(), p.privkey))
	case p.secretKey != "":
		signed, err = jwt.Sign(tok, jwt.WithKey(jwa.HS256(), []byte(p.secretKey)))
	default:
		return "", fmt.Errorf("no private key or secret key found")
	}
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %s", err)
	}
	return string(signed), nil
}

// Verify checks the signature and the expiry of token. When an issuer is
// configured the token must carry it.
func (p *defaultJwtProvider) Verify(token string) (jwt.Token, error) {
	if token == "" {
		return nil, fmt.Errorf("empty token")
	}
	opts := []jwt.ParseOption{jwt.WithValidate(true)}
	switch {
	case p.pubkey != nil:
		opts = append(opts, jwt.WithKey(jwa.RS256(), p.pubkey))
	case p.secretKey != "":
		opts = append(opts, jwt.WithKey(jwa.HS256(), []byte(p.secretKey)))
	default:
		return nil, fmt.Errorf("no public key or secret key found")
	}
	if p.issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.issuer))
	}
	tok, err := jwt.Parse([]byte(token), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %s", err)
	}
	return tok, nil
}
