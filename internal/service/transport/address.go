package transport

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const sessionPlaceholder = "{session}"

var ErrSessionIDRequired = errors.New("session id is required")

// BuildURL joins the socket base address with the path template, substituting the session id.
// http and https bases are mapped to ws and wss.
func BuildURL(base, pathTemplate, sessionID string) (string, error) {
	if sessionID == "" {
		return "", ErrSessionIDRequired
	}

	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid websocket base %q: %w", base, err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid websocket base %q: unsupported scheme %q", base, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid websocket base %q: missing host", base)
	}

	path := pathTemplate
	if !strings.Contains(path, sessionPlaceholder) {
		path = strings.TrimRight(path, "/") + "/" + sessionPlaceholder
	}
	path = strings.ReplaceAll(path, sessionPlaceholder, url.PathEscape(sessionID))
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	u.RawQuery, u.Fragment = "", ""
	return strings.TrimRight(u.String(), "/") + path, nil
}
