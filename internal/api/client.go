package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"cipherchat/internal/domain"
	"cipherchat/internal/logging"
)

// CodeOK is the envelope code of a successful response.
const CodeOK = "200"

// Client talks to the chat server's REST API.
type Client struct {
	Base string
	HTTP *http.Client

	auth domain.CurrentUser
	log  *logrus.Entry
}

// New returns a Client rooted at base. auth supplies the bearer token and the
// caller's own user id; it may be nil for unauthenticated use.
func New(base string, auth domain.CurrentUser, log *logrus.Entry) *Client {
	return &Client{
		Base: strings.TrimRight(base, "/"),
		HTTP: http.DefaultClient,
		auth: auth,
		log:  logging.OrDiscard(log, "api"),
	}
}

var (
	_ domain.KeyDirectory = (*Client)(nil)
	_ domain.Delivery     = (*Client)(nil)
	_ domain.History      = (*Client)(nil)
)

// result is the server's response envelope.
type result struct {
	Code    code            `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// code accepts the envelope code as either a JSON string or a number.
type code string

func (c *code) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = code(s)
		return nil
	}
	if string(b) == "null" {
		*c = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*c = code(n.String())
	return nil
}

// PublishSettings registers (or withdraws) the caller's public key.
func (c *Client) PublishSettings(ctx context.Context, s domain.EncryptionSettings) error {
	return c.post(ctx, "/e2ee/settings", s, nil)
}

type peerKey struct {
	PublicKey string `json:"publicKey"`
	Enabled   bool   `json:"e2eeEnabled"`
	Username  string `json:"username"`
}

// FetchPublicKey returns the SPKI base64 public key registered for user, or
// "" when the user has none.
func (c *Client) FetchPublicKey(ctx context.Context, user domain.UserID) (string, error) {
	var out peerKey
	if err := c.getJSON(ctx, "/e2ee/public-key/"+user.String(), &out); err != nil {
		return "", err
	}
	return out.PublicKey, nil
}

type encryptionStatus struct {
	CanEncrypt   *bool `json:"canEncrypt"`
	BothEnabled  bool  `json:"bothEnabled"`
	FirstEnabled bool  `json:"user1E2EEEnabled"`
	OtherEnabled bool  `json:"user2E2EEEnabled"`
}

// EncryptionStatus reports whether both users have encryption enabled.
func (c *Client) EncryptionStatus(ctx context.Context, a, b domain.UserID) (bool, error) {
	var out encryptionStatus
	if err := c.getJSON(ctx, "/e2ee/status/"+a.String()+"/"+b.String(), &out); err != nil {
		return false, err
	}
	if out.CanEncrypt != nil {
		return *out.CanEncrypt, nil
	}
	return out.BothEnabled || (out.FirstEnabled && out.OtherEnabled), nil
}

type encryptedRequest struct {
	ReceiverID       domain.UserID `json:"receiverId"`
	EncryptedContent string        `json:"encryptedContent"`
	EncryptedAESKey  string        `json:"encryptedAESKey"`
	IV               string        `json:"iv"`
}

// SendEncrypted delivers an envelope and returns the stored message.
func (c *Client) SendEncrypted(ctx context.Context, to domain.UserID, env domain.Envelope) (domain.Message, error) {
	var out domain.WireMessage
	req := encryptedRequest{
		ReceiverID:       to,
		EncryptedContent: env.Ciphertext,
		EncryptedAESKey:  env.WrappedKey,
		IV:               env.IV,
	}
	if err := c.post(ctx, "/e2ee/send-encrypted", req, &out); err != nil {
		return domain.Message{}, err
	}
	m := out.Message()
	if m.Envelope == nil {
		m.Encrypted = true
		m.Content = ""
		e := env
		m.Envelope = &e
	}
	return m, nil
}

type plainRequest struct {
	ReceiverID  domain.UserID `json:"receiverId"`
	Content     string        `json:"content"`
	MessageType string        `json:"messageType"`
}

// SendPlain delivers a plaintext message and returns the stored message.
func (c *Client) SendPlain(ctx context.Context, to domain.UserID, content string) (domain.Message, error) {
	var out domain.WireMessage
	req := plainRequest{ReceiverID: to, Content: content, MessageType: "TEXT"}
	if err := c.post(ctx, "/messages/send", req, &out); err != nil {
		return domain.Message{}, err
	}
	return out.Message(), nil
}

// Conversations lists the caller's conversation summaries.
func (c *Client) Conversations(ctx context.Context) ([]domain.Conversation, error) {
	var wire []domain.WireConversation
	if err := c.getJSON(ctx, "/messages/conversations", &wire); err != nil {
		return nil, err
	}
	out := make([]domain.Conversation, 0, len(wire))
	for _, w := range wire {
		out = append(out, w.Conversation())
	}
	return out, nil
}

// Messages returns the history shared with peer, oldest first.
func (c *Client) Messages(ctx context.Context, peer domain.UserID) ([]domain.Message, error) {
	var wire []domain.WireMessage
	if err := c.getJSON(ctx, "/messages/conversation/"+peer.String(), &wire); err != nil {
		return nil, err
	}
	out := make([]domain.Message, 0, len(wire))
	for _, w := range wire {
		out = append(out, w.Message())
	}
	return out, nil
}

// MarkRead marks every message from peer as read.
func (c *Client) MarkRead(ctx context.Context, peer domain.UserID) error {
	return c.post(ctx, "/messages/mark-read/"+peer.String(), nil, nil)
}

// UnreadCount returns the number of unread messages from peer.
func (c *Client) UnreadCount(ctx context.Context, peer domain.UserID) (int, error) {
	var n json.Number
	if err := c.getJSON(ctx, "/messages/unread-count/"+peer.String(), &n); err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(n.String())
	if err != nil {
		return 0, fmt.Errorf("unread count %q: %w", n, err)
	}
	return v, nil
}

func (c *Client) post(ctx context.Context, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		buf := new(bytes.Buffer)
		if err := json.NewEncoder(buf).Encode(in); err != nil {
			return err
		}
		body = buf
	}
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.Base+path, body)
	if err != nil {
		return err
	}
	id := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", id)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.auth != nil {
		if tok, err := c.auth.Token(); err == nil && tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	log := c.log.WithFields(logrus.Fields{"method": method, "path": path, "request_id": id})
	resp, err := c.HTTP.Do(req)
	if err != nil {
		log.WithError(err).Warn("request failed")
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var res result
	decodeErr := json.NewDecoder(resp.Body).Decode(&res)
	if resp.StatusCode/100 != 2 || decodeErr != nil || res.Code != CodeOK {
		e := &domain.ServerRequestError{
			Method:  method,
			Path:    path,
			Status:  resp.StatusCode,
			Code:    string(res.Code),
			Message: res.Message,
		}
		if e.Message == "" {
			e.Message = resp.Status
		}
		log.WithFields(logrus.Fields{"status": resp.StatusCode, "code": e.Code}).Warn("server rejected request")
		return e
	}
	log.Debug("request ok")

	if out == nil || len(res.Data) == 0 || string(res.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(res.Data, out); err != nil {
		return fmt.Errorf("%s %s: decode data: %w", method, path, err)
	}
	return nil
}
