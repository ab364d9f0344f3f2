package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"
)

type ProxyConfig struct {
	Endpoint    string
	APIKey      string
	Model       string
	Temperature float64
}

// ProxyClient calls the course LLM proxy, which wraps a hosted model with
// per-session memory and document retrieval.
type ProxyClient struct {
	endpoint    string
	apiKey      string
	model       string
	temperature float64
	httpClient  *http.Client
	logger      *zap.Logger
}

func NewProxyClient(cfg ProxyConfig, logger *zap.Logger) *ProxyClient {
	return &ProxyClient{
		endpoint:    cfg.Endpoint,
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		httpClient:  &http.Client{},
		logger:      logger,
	}
}

type proxyRequest struct {
	Model        string  `json:"model"`
	System       string  `json:"system"`
	Query        string  `json:"query"`
	Temperature  float64 `json:"temperature"`
	LastK        int     `json:"lastk"`
	SessionID    string  `json:"session_id"`
	RAGThreshold float64 `json:"rag_threshold"`
	RAGUsage     bool    `json:"rag_usage"`
	RAGK         int     `json:"rag_k"`
}

type proxyResponse struct {
	Result     string          `json:"result"`
	RAGContext json.RawMessage `json:"rag_context"`
}

func (c *ProxyClient) Complete(ctx context.Context, req Request) (*Result, error) {
	payload, err := json.Marshal(proxyRequest{
		Model:        c.model,
		System:       req.System,
		Query:        req.Query,
		Temperature:  c.temperature,
		LastK:        req.LastK,
		SessionID:    req.SessionID,
		RAGThreshold: req.RAG.Threshold,
		RAGUsage:     req.RAG.Usage,
		RAGK:         req.RAG.K,
	})
	if err != nil {
		return nil, fmt.Errorf("encode completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("completion request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read completion response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var decoded proxyResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrInvalidResponse, err)
	}

	c.logger.Debug("Completion received",
		zap.String("session_id", req.SessionID),
		zap.Int("lastk", req.LastK),
		zap.Int("result_len", len(decoded.Result)))

	return &Result{
		Text:       decoded.Result,
		RAGContext: ragContextString(decoded.RAGContext),
	}, nil
}

// rag_context is a string on some proxy versions and a structured object on others
func ragContextString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
