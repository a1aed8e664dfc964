package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/DouaaHasan/placesharer-cli/internal/models"
)

// Error is a failed backend call: a non-2xx status plus whatever
// message the server put in the response body.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a backend 404. Deleting a
// corresponder that is already gone comes back as one of these and the
// caller treats it as success.
func IsNotFound(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Client talks to the placesharer backend's messaging endpoints. The
// token is an opaque bearer credential owned by whoever logged in; the
// client only attaches it.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     zerolog.Logger
}

func New(baseURL, token string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
		log:     log.With().Str("component", "api").Logger(),
	}
}

type wireCorresponder struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Image string `json:"image"`
}

type wireContactEntry struct {
	Corresponder wireCorresponder `json:"corresponder"`
}

type wireMessage struct {
	ID      string `json:"_id"`
	Message string `json:"message"`
	IsSent  bool   `json:"isSent"`
}

// ListCorresponders fetches the people the current user has exchanged
// messages with, in the backend's most-recent-first order.
func (c *Client) ListCorresponders(ctx context.Context) ([]models.Corresponder, error) {
	var body struct {
		Corresponders []wireContactEntry `json:"corresponders"`
	}
	if err := c.do(ctx, http.MethodGet, "/user/messages", nil, &body); err != nil {
		return nil, err
	}

	corresponders := make([]models.Corresponder, 0, len(body.Corresponders))
	for _, entry := range body.Corresponders {
		corresponders = append(corresponders, models.Corresponder{
			ID:        entry.Corresponder.ID,
			Name:      entry.Corresponder.Name,
			AvatarURL: entry.Corresponder.Image,
		})
	}
	return corresponders, nil
}

// FetchThread fetches the full message history with one corresponder,
// in chronological order.
func (c *Client) FetchThread(ctx context.Context, corresponderID string) ([]models.Message, error) {
	var body struct {
		Messages []wireMessage `json:"messages"`
	}
	path := "/user/messages/" + corresponderID
	if err := c.do(ctx, http.MethodGet, path, nil, &body); err != nil {
		return nil, err
	}

	messages := make([]models.Message, 0, len(body.Messages))
	for _, msg := range body.Messages {
		messages = append(messages, models.Message{
			ID:     msg.ID,
			Text:   msg.Message,
			IsSent: msg.IsSent,
		})
	}
	return messages, nil
}

// SendMessage posts one message to a corresponder and returns the
// backend-assigned message id. Never retried automatically: a retry
// could deliver the message twice.
func (c *Client) SendMessage(ctx context.Context, corresponderID, text string) (string, error) {
	payload := map[string]string{"message": text}
	var body struct {
		MessageID string `json:"messageId"`
	}
	path := "/user/messages/" + corresponderID
	if err := c.do(ctx, http.MethodPost, path, payload, &body); err != nil {
		return "", err
	}
	return body.MessageID, nil
}

// DeleteCorresponder removes the whole thread with one corresponder.
// Deleting an id that is already gone returns a 404 *Error.
func (c *Client) DeleteCorresponder(ctx context.Context, corresponderID string) error {
	return c.do(ctx, http.MethodDelete, "/user/messages/"+corresponderID, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Error().Err(err).Str("method", method).Str("path", path).Msg("request failed")
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &Error{Status: resp.StatusCode, Message: readErrorMessage(resp.Body)}
		c.log.Warn().Int("status", resp.StatusCode).Str("method", method).Str("path", path).Msg(apiErr.Message)
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// readErrorMessage pulls a human-readable message out of an error
// response, which the backend sends either as {"message": "..."} or as
// plain text.
func readErrorMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}

	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Message != "" {
		return body.Message
	}
	return strings.TrimSpace(string(data))
}
