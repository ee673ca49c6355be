package h

import (
	"net/url"
	"strings"
)

type Url struct {
	Scheme   string
	Path     string
	Url      string
	Host     string
	User     string
	Password string
	query    map[string]any
}

func ParseUrl(input string) (Url, error) {
	queryParams := make(map[string]any)
	u, err := url.Parse(input)
	if err != nil {
		return Url{}, err
	}
	for key, values := range u.Query() {
		if len(values) > 0 {
			queryParams[key] = values[0] // Take first value if multiple
		}
	}
	password, ok := u.User.Password()
	if !ok {
		password = ""
	}
	return Url{
		Scheme:   u.Scheme,
		Path:     u.Path,
		Url:      input,
		Host:     u.Host,
		User:     u.User.Username(),
		Password: password,
		query:    queryParams,
	}, nil
}

// QueryString returns a query parameter as a string, or "" when absent.
func (u Url) QueryString(key string) string {
	if value, ok := u.query[key].(string); ok {
		return value
	}
	return ""
}

func RemoveParamFromUrl(input string, param string) (string, error) {
	u, err := url.Parse(input)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Del(param)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// RedactUrl hides the password of a connection string so it can be logged.
// Inputs that are not URLs (mysql DSNs, sqlite paths) are returned with
// anything before the last '@' masked.
func RedactUrl(input string) string {
	if u, err := url.Parse(input); err == nil && u.Scheme != "" && u.Host != "" {
		return u.Redacted()
	}
	if idx := strings.LastIndex(input, "@"); idx != -1 {
		return "xxxxx" + input[idx:]
	}
	return input
}
