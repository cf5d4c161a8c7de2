package notify

import (
	"fmt"
	"net/url"
	"strings"
)

// SocketPath is the notification endpoint on the API host.
const SocketPath = "/api/v1/ws"

// SocketURL derives the websocket URL from the API base URL, or uses override
// when it is set. The token is carried in the query string.
func SocketURL(apiBase, override, token string) (string, error) {
	raw := override
	if raw == "" {
		raw = apiBase
	}
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("parse websocket base %q: %w", raw, err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q in %q", u.Scheme, raw)
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host in %q", raw)
	}
	if override == "" || u.Path == "" || u.Path == "/" {
		u.Path = SocketPath
	}
	q := u.Query()
	if token != "" {
		q.Set("token", token)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
