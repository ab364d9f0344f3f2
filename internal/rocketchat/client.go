// Package rocketchat is a minimal REST client for posting and editing chat
// messages on a RocketChat server.
package rocketchat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Button processing types understood by the RocketChat client UI
const (
	ProcessSendMessage    = "sendMessage"
	ProcessRespondWithMsg = "respondWithMessage"
)

// Message is an outgoing chat message
type Message struct {
	Channel     string       `json:"channel,omitempty"`
	Text        string       `json:"text"`
	ThreadID    string       `json:"tmid,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment groups clickable buttons under a title
type Attachment struct {
	Title   string   `json:"title,omitempty"`
	Actions []Button `json:"actions,omitempty"`
}

// Button is a message action button
type Button struct {
	Type              string `json:"type"`
	Text              string `json:"text"`
	Msg               string `json:"msg"`
	MsgInChatWindow   bool   `json:"msg_in_chat_window"`
	MsgProcessingType string `json:"msg_processing_type"`
}

// NewButton builds a button that sends msg into the chat window when clicked
func NewButton(text, msg, processingType string) Button {
	return Button{
		Type:              "button",
		Text:              text,
		Msg:               msg,
		MsgInChatWindow:   true,
		MsgProcessingType: processingType,
	}
}

// Posted identifies a message created by Post
type Posted struct {
	ID     string
	RoomID string
}

// APIError is returned for non-2xx responses or `success: false` bodies
type APIError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("rocketchat %s: status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

type Config struct {
	BaseURL string
	Token   string
	UserID  string
	Timeout time.Duration
}

type Client struct {
	baseURL    string
	token      string
	userID     string
	timeout    time.Duration
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		userID:     cfg.UserID,
		timeout:    timeout,
		httpClient: &http.Client{},
		logger:     logger,
	}
}

type postResponse struct {
	Success bool `json:"success"`
	Message struct {
		ID     string `json:"_id"`
		RoomID string `json:"rid"`
	} `json:"message"`
}

// Post sends msg and returns the id of the created message.
// Posting is not idempotent; callers must not blindly retry.
func (c *Client) Post(ctx context.Context, msg Message) (*Posted, error) {
	var resp postResponse
	if err := c.call(ctx, "chat.postMessage", msg, &resp); err != nil {
		return nil, err
	}

	c.logger.Debug("Posted message",
		zap.String("channel", msg.Channel),
		zap.String("tmid", msg.ThreadID),
		zap.String("message_id", resp.Message.ID))

	return &Posted{ID: resp.Message.ID, RoomID: resp.Message.RoomID}, nil
}

// Update replaces the text of an existing message
func (c *Client) Update(ctx context.Context, roomID, messageID, text string) error {
	body := map[string]string{
		"roomId": roomID,
		"msgId":  messageID,
		"text":   text,
	}
	return c.call(ctx, "chat.update", body, nil)
}

func (c *Client) call(ctx context.Context, endpoint string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", endpoint, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build %s request: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Auth-Token", c.token)
	req.Header.Set("X-User-Id", c.userID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("rocketchat %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var status struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal(raw, &status); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	if !status.Success {
		return &APIError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: string(raw)}
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode %s response: %w", endpoint, err)
		}
	}

	return nil
}
