package adapters

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	f "github.com/soffa-projects/tenantdb/core"
	"github.com/soffa-projects/tenantdb/h"
	"github.com/soffa-projects/tenantdb/log"
)

const httpTenantSourceTimeout = 10 * time.Second

// NewTenantSource picks a source from its locator:
// "base64:<json>", "file:///path/tenants.json" or an http(s) URL.
func NewTenantSource(locator string) (f.TenantSource, error) {
	if strings.HasPrefix(locator, "base64:") {
		log.Info("using base64 tenant source")
		return NewBase64TenantSource(strings.TrimPrefix(locator, "base64:"))
	}

	res, err := h.ParseUrl(locator)
	if err != nil {
		return nil, fmt.Errorf("failed to parse tenant source: %v", err)
	}
	switch res.Scheme {
	case "file":
		log.Info("using file tenant source: %s", res.Url)
		return NewFileTenantSource(strings.TrimPrefix(res.Url, "file://")), nil
	case "http", "https":
		log.Info("using http tenant source: %s", h.RedactUrl(res.Url))
		return NewHttpTenantSource(res), nil
	}
	return nil, fmt.Errorf("unsupported tenant source: %q", res.Scheme)
}

func parseTenantList(data []byte) ([]f.Tenant, error) {
	var content f.TenantList
	if err := json.Unmarshal(data, &content); err != nil {
		return nil, fmt.Errorf("failed to parse tenant list: %v", err)
	}
	return content.Tenants, nil
}

// ------------------------------------------------------------------------------------------------------------------
// FILE TENANT SOURCE
// ------------------------------------------------------------------------------------------------------------------

type FileTenantSource struct {
	path string
}

func NewFileTenantSource(path string) *FileTenantSource {
	return &FileTenantSource{path: path}
}

// Load reads the file on every call so edits are picked up by the next warmup.
func (s *FileTenantSource) Load(_ context.Context) ([]f.Tenant, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tenant file: %v", err)
	}
	tenants, err := parseTenantList(data)
	if err != nil {
		return nil, err
	}
	log.Info("[file-tenant] %d tenants loaded from %s", len(tenants), s.path)
	return tenants, nil
}

// ------------------------------------------------------------------------------------------------------------------
// HTTP TENANT SOURCE
// ------------------------------------------------------------------------------------------------------------------

// HttpTenantSource fetches the tenant list from a remote endpoint. The user
// part of the URL, if any, is sent as a bearer token.
type HttpTenantSource struct {
	target string
	bearer string
	client *resty.Client
}

func NewHttpTenantSource(cfg h.Url) *HttpTenantSource {
	target := cfg.Url
	if cfg.User != "" {
		target = strings.Replace(target, cfg.User+"@", "", 1)
	}
	return &HttpTenantSource{
		target: target,
		bearer: cfg.User,
		client: resty.New().SetTimeout(httpTenantSourceTimeout),
	}
}

func (s *HttpTenantSource) Load(ctx context.Context) ([]f.Tenant, error) {
	var tenants f.TenantList
	req := s.client.R().
		SetContext(ctx).
		SetResult(&tenants)
	if s.bearer != "" {
		req = req.SetAuthToken(s.bearer)
	}
	resp, err := req.Get(s.target)
	if err != nil {
		log.Error("failed to load tenants: %v", err)
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("failed to load tenants: %s returned %d", h.RedactUrl(s.target), resp.StatusCode())
	}
	log.Info("[http-tenant] %d tenants loaded", len(tenants.Tenants))
	return tenants.Tenants, nil
}

// ------------------------------------------------------------------------------------------------------------------
// BASE64 TENANT SOURCE
// ------------------------------------------------------------------------------------------------------------------

type Base64TenantSource struct {
	tenants []f.Tenant
}

func NewBase64TenantSource(encoded string) (*Base64TenantSource, error) {
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64: %v", err)
	}
	tenants, err := parseTenantList(decoded)
	if err != nil {
		return nil, err
	}
	return &Base64TenantSource{tenants: tenants}, nil
}

func (s *Base64TenantSource) Load(_ context.Context) ([]f.Tenant, error) {
	return s.tenants, nil
}
