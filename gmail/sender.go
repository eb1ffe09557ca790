package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"time"

	"github.com/steveconnect/steve-go/core"
)

// DefaultSendURL is the Gmail REST send endpoint for the token's
// account.
const DefaultSendURL = "https://gmail.googleapis.com/gmail/v1/users/me/messages/send"

// Message is one outgoing email.
type Message struct {
	To         string `json:"to"`
	Subject    string `json:"subject"`
	Body       string `json:"body"`
	SenderName string `json:"sender_name,omitempty"`
}

// SendResult reports a completed send.
type SendResult struct {
	MessageID  string `json:"message_id"`
	MethodUsed string `json:"method_used"`
}

// Sender sends email through the Gmail REST API with tokens managed by
// the TokenManager. Failures are terminal for the action: the caller
// gets a *core.SendError (or core.ErrRefreshFailed) and decides what to
// tell the user; nothing here retries the send itself.
type Sender struct {
	tokens     *TokenManager
	httpClient *http.Client
	sendURL    string
}

// NewSender creates a sender. sendURL is overridable for tests; empty
// means DefaultSendURL.
func NewSender(tokens *TokenManager, sendURL string) *Sender {
	if sendURL == "" {
		sendURL = DefaultSendURL
	}
	return &Sender{
		tokens:     tokens,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		sendURL:    sendURL,
	}
}

// Send delivers one message and returns the provider's message ID.
func (s *Sender) Send(ctx context.Context, msg *Message) (*SendResult, error) {
	if msg.To == "" {
		return nil, &core.SendError{Reason: "missing recipient"}
	}

	token, err := s.tokens.EnsureValidToken(ctx)
	if err != nil {
		return nil, err
	}

	raw := base64.URLEncoding.EncodeToString(buildMIME(msg))
	payload, err := json.Marshal(map[string]string{"raw": raw})
	if err != nil {
		return nil, fmt.Errorf("marshal send payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.sendURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build send request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, &core.SendError{Reason: "gmail api unreachable"}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("[GMAIL] Send failed with status %d: %s", resp.StatusCode, truncateLog(string(body), 200))
		return nil, &core.SendError{Reason: fmt.Sprintf("gmail api returned status %d", resp.StatusCode)}
	}

	var sent struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &sent); err != nil || sent.ID == "" {
		return nil, &core.SendError{Reason: "gmail api returned no message id"}
	}

	log.Printf("[GMAIL] Sent message %s to %s", sent.ID, msg.To)
	return &SendResult{MessageID: sent.ID, MethodUsed: "gmail_api"}, nil
}

// buildMIME assembles the RFC 2822 message the Gmail API expects in
// the raw field.
func buildMIME(msg *Message) []byte {
	var b bytes.Buffer
	if msg.SenderName != "" {
		fmt.Fprintf(&b, "From: %s <me>\r\n", mime.QEncoding.Encode("utf-8", msg.SenderName))
	}
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)
	return b.Bytes()
}

func truncateLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
