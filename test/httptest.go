package test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/go-resty/resty/v2"
)

type RestClient struct {
	client *resty.Client
	assert Assertions
	bearer string
}

type HttpRes struct {
	resp   *resty.Response
	err    error
	assert Assertions
}

type HttpReq struct {
	Headers  map[string]string
	Bearer   string
	TenantId string
}

func NewRestClient(t *testing.T, baseUrl string) *RestClient {
	r := resty.New()
	r.SetRedirectPolicy(resty.NoRedirectPolicy())
	r.SetBaseURL(baseUrl)
	return &RestClient{client: r, assert: NewAssertions(t)}
}

func (c *RestClient) Get(path string, opts ...HttpReq) HttpRes {
	return c.invoke(http.MethodGet, path, opts...)
}

func (c *RestClient) SetBearerAuth(token string) *RestClient {
	c.bearer = token
	return c
}

func (c *RestClient) invoke(method string, path string, opts ...HttpReq) HttpRes {
	q := c.client.R()
	bearerAuth := c.bearer
	for _, opt := range opts {
		if opt.Bearer != "" {
			bearerAuth = opt.Bearer
		}
		for key, value := range opt.Headers {
			q = q.SetHeader(key, value)
		}
		if opt.TenantId != "" {
			q = q.SetHeader("X-TenantId", opt.TenantId)
		}
	}
	if bearerAuth != "" {
		q = q.SetHeader("Authorization", fmt.Sprintf("Bearer %s", bearerAuth))
	}
	resp, err := q.Execute(method, path)
	c.assert.Nil(err)
	return HttpRes{
		resp:   resp,
		err:    err,
		assert: c.assert,
	}
}

func (r HttpRes) IsOk() HttpRes {
	return r.Is(http.StatusOK)
}

func (r HttpRes) IsBadRequest() HttpRes {
	return r.Is(http.StatusBadRequest)
}

func (r HttpRes) IsUnauthorized() HttpRes {
	return r.Is(http.StatusUnauthorized)
}

func (r HttpRes) Is(status int) HttpRes {
	r.assert.Equals(r.resp.StatusCode(), status)
	return r
}

func (r HttpRes) Result() []byte {
	return r.resp.Body()
}

func (r HttpRes) Header(key string) string {
	return r.resp.Header().Get(key)
}

// Decode unmarshals the response body into out.
func (r HttpRes) Decode(out any) HttpRes {
	r.assert.Nil(json.Unmarshal(r.Result(), out), "failed to unmarshal json")
	return r
}

func (r HttpRes) JSON() JsonMatcher {
	return JsonMatcher{assert: r.assert, value: string(r.Result())}
}

type JsonMatcher struct {
	assert Assertions
	value  string
}

func (j JsonMatcher) Match(pattern string) JsonMatcher {
	j.assert.MatchJson(j.value, pattern)
	return j
}
