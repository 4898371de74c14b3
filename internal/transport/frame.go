package transport

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"cipherchat/internal/domain"
)

// Liveness frames, exchanged outside the typed envelope.
const (
	pingFrame = "ping"
	pongFrame = "pong"
)

func encodeFrame(t domain.FrameType, payload any) ([]byte, error) {
	f := domain.Frame{Type: t}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", t, err)
		}
		f.Data = data
	}
	return json.Marshal(f)
}

func decodeFrame(b []byte) (domain.Frame, error) {
	var f domain.Frame
	if err := json.Unmarshal(b, &f); err != nil {
		return domain.Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	if f.Type == "" {
		return domain.Frame{}, fmt.Errorf("decode frame: missing type")
	}
	return f, nil
}

// ChatURL returns the connection URL for base and credential.
func ChatURL(base, path, credential string) string {
	return strings.TrimRight(base, "/") + path + "?token=" + url.QueryEscape(credential)
}

// redact hides the token query parameter for logs and errors.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	q := u.Query()
	if q.Has("token") {
		q.Set("token", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
