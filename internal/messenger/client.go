package messenger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// MaxTextRunes is the Send API limit for a single text message.
const MaxTextRunes = 2000

type SenderAction string

const (
	ActionMarkSeen  SenderAction = "mark_seen"
	ActionTypingOn  SenderAction = "typing_on"
	ActionTypingOff SenderAction = "typing_off"
)

// APIError is a non-2xx answer from the Graph API.
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
	Type       string `json:"type"`
	Code       int    `json:"code"`
	FBTraceID  string `json:"fbtrace_id"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("messenger send api: status %d code %d: %s", e.StatusCode, e.Code, e.Message)
}

// Retryable reports throttling and server-side failures.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

type Client struct {
	httpClient *http.Client
	graphURL   string
}

func NewClient(graphURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		httpClient: httpClient,
		graphURL:   strings.TrimSuffix(graphURL, "/"),
	}
}

type sendRequest struct {
	Recipient     Party        `json:"recipient"`
	MessagingType string       `json:"messaging_type,omitempty"`
	Message       *textMessage `json:"message,omitempty"`
	SenderAction  SenderAction `json:"sender_action,omitempty"`
}

type textMessage struct {
	Text string `json:"text"`
}

// SendText delivers text as one or more RESPONSE messages, split on the Send
// API length limit.
func (c *Client) SendText(ctx context.Context, pageAccessToken, recipientID, text string) error {
	for _, chunk := range SplitText(text, MaxTextRunes) {
		if err := c.send(ctx, pageAccessToken, sendRequest{
			Recipient:     Party{ID: recipientID},
			MessagingType: "RESPONSE",
			Message:       &textMessage{Text: chunk},
		}); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) SendAction(ctx context.Context, pageAccessToken, recipientID string, action SenderAction) error {
	return c.send(ctx, pageAccessToken, sendRequest{
		Recipient:    Party{ID: recipientID},
		SenderAction: action,
	})
}

func (c *Client) send(ctx context.Context, pageAccessToken string, body sendRequest) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphURL+"/me/messages", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	q := req.URL.Query()
	q.Set("access_token", pageAccessToken)
	req.URL.RawQuery = q.Encode()

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling send api: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	slog.DebugContext(ctx, "messenger send api call",
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	apiErr := &APIError{StatusCode: resp.StatusCode}
	var envelope struct {
		Error *APIError `json:"error"`
	}
	if json.Unmarshal(respBody, &envelope) == nil && envelope.Error != nil {
		apiErr = envelope.Error
		apiErr.StatusCode = resp.StatusCode
	} else {
		apiErr.Message = strings.TrimSpace(string(respBody))
	}
	return apiErr
}

// SplitText cuts text into pieces of at most limit runes, preferring the last
// whitespace inside each window.
func SplitText(text string, limit int) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}

	var chunks []string
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i] == ' ' || runes[i] == '\n' {
				cut = i
				break
			}
		}
		chunks = append(chunks, strings.TrimSpace(string(runes[:cut])))
		runes = []rune(strings.TrimSpace(string(runes[cut:])))
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}
