package connection

import (
	"fmt"
	"net/url"
	"strings"
)

// connectPath is appended to the configured base URL.
const connectPath = "/connect"

// BuildURL returns the stream URL for base with the credential attached as
// the token query parameter. http and https bases are upgraded to ws and wss.
func BuildURL(base, credential string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("base url %q has no host", base)
	}

	u.Path = strings.TrimSuffix(u.Path, "/") + connectPath
	q := u.Query()
	q.Set("token", credential)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// redactURL strips the query so credentials never reach the logs.
func redactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid url>"
	}
	u.RawQuery = ""
	u.User = nil
	return u.String()
}
