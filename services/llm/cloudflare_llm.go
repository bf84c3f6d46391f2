// Copyright (C) 2025 PolyAgent
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/agpl-3.0.html> for the full license text.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var cfTracer = otel.Tracer("polyagent.llm.cloudflare")

// DefaultCloudflareModel is used when CLOUDFLARE_MODEL is not set.
const DefaultCloudflareModel = "@cf/meta/llama-3.1-70b-instruct"

type CloudflareClient struct {
	httpClient *http.Client
	baseURL    string
	apiToken   string
	model      string
}

// Cloudflare Workers AI request structure
type cloudflareChatRequest struct {
	Messages  []Message `json:"messages"`
	Stream    bool      `json:"stream,omitempty"`
	MaxTokens *int      `json:"max_tokens,omitempty"`
}

type cloudflareChatResponse struct {
	Result struct {
		Response string `json:"response"`
	} `json:"result"`
	Success bool `json:"success"`
	Errors  []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// cloudflareStreamChunk is one parsed "data:" line of the event stream.
type cloudflareStreamChunk struct {
	Response string `json:"response"`
}

func NewCloudflareClient() (*CloudflareClient, error) {
	accountID := os.Getenv("CLOUDFLARE_ACCOUNT_ID")
	apiToken := os.Getenv("CLOUDFLARE_API_TOKEN")
	model := os.Getenv("CLOUDFLARE_MODEL")
	if accountID == "" {
		return nil, fmt.Errorf("CLOUDFLARE_ACCOUNT_ID environment variable not set")
	}
	if apiToken == "" {
		return nil, fmt.Errorf("CLOUDFLARE_API_TOKEN environment variable not set")
	}
	if model == "" {
		slog.Warn("CLOUDFLARE_MODEL not set, defaulting", "model", DefaultCloudflareModel)
		model = DefaultCloudflareModel
	}
	baseURL := fmt.Sprintf("https://api.cloudflare.com/client/v4/accounts/%s/ai/run", accountID)
	slog.Info("Initializing Cloudflare Workers AI client", "model", model)
	return &CloudflareClient{
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		baseURL:    baseURL,
		apiToken:   apiToken,
		model:      model,
	}, nil
}

// newCloudflareClientForTest builds a client against an arbitrary endpoint.
func newCloudflareClientForTest(baseURL, model string) *CloudflareClient {
	return &CloudflareClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiToken:   "test-token",
		model:      model,
	}
}

func (c *CloudflareClient) newRequest(ctx context.Context, payload cloudflareChatRequest) (*http.Request, error) {
	reqBodyBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request to Cloudflare: %w", err)
	}
	runURL := c.baseURL + "/" + c.model

	// Use NewRequestWithContext to respect context cancellation/timeout
	req, err := http.NewRequestWithContext(ctx, "POST", runURL, bytes.NewBuffer(reqBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request to Cloudflare: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	return req, nil
}

// Generate implements the LLMClient interface
func (c *CloudflareClient) Generate(ctx context.Context, messages []Message,
	params GenerationParams) (string, error) {

	ctx, span := cfTracer.Start(ctx, "CloudflareClient.Generate")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", c.model))
	slog.Debug("Generating text via Cloudflare Workers AI", "model", c.model)

	req, err := c.newRequest(ctx, cloudflareChatRequest{
		Messages:  messages,
		MaxTokens: params.MaxTokens,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("Cloudflare API call failed", "error", err)
		return "", fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	respBodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("failed to read response body from Cloudflare: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		slog.Error("Cloudflare returned an error", "status_code", resp.StatusCode, "response", string(respBodyBytes))
		return "", fmt.Errorf("%w: Cloudflare AI request failed with status %d", ErrUpstreamUnavailable, resp.StatusCode)
	}

	var cfResp cloudflareChatResponse
	if err := json.Unmarshal(respBodyBytes, &cfResp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("Failed to parse JSON response from Cloudflare", "error", err, "response", string(respBodyBytes))
		return "", fmt.Errorf("failed to parse Cloudflare response: %w", err)
	}
	if !cfResp.Success {
		msg := "unknown error"
		if len(cfResp.Errors) > 0 {
			msg = cfResp.Errors[0].Message
		}
		return "", fmt.Errorf("Cloudflare AI request failed: %s", msg)
	}

	slog.Debug("Received response from Cloudflare")
	return cfResp.Result.Response, nil
}

// ChatStream implements the LLMClient interface.
//
// The Workers AI event stream is line oriented: frames arrive as
// "data: <json>\n" lines, terminated by a "data: [DONE]" sentinel, but chunk
// boundaries do not align with line boundaries. Bytes are accumulated in a
// residual buffer and only complete lines are parsed; malformed lines are
// skipped rather than failing the stream.
func (c *CloudflareClient) ChatStream(ctx context.Context, messages []Message,
	params GenerationParams, callback StreamCallback) error {

	ctx, span := cfTracer.Start(ctx, "CloudflareClient.ChatStream")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", c.model))

	req, err := c.newRequest(ctx, cloudflareChatRequest{
		Messages:  messages,
		Stream:    true,
		MaxTokens: params.MaxTokens,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("Cloudflare stream request failed", "error", err)
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		slog.Error("Cloudflare stream returned an error", "status_code", resp.StatusCode, "response", string(body))
		return fmt.Errorf("%w: Cloudflare AI stream failed with status %d", ErrUpstreamUnavailable, resp.StatusCode)
	}

	var residual string
	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			residual += string(buf[:n])
			lines := strings.Split(residual, "\n")
			// The final element is an incomplete line; carry it forward.
			residual = lines[len(lines)-1]
			for _, line := range lines[:len(lines)-1] {
				if cbErr := c.dispatchStreamLine(line, callback); cbErr != nil {
					if cbErr == errStreamDone {
						return nil
					}
					return cbErr
				}
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			span.RecordError(readErr)
			span.SetStatus(codes.Error, readErr.Error())
			slog.Error("Cloudflare stream read failed", "error", readErr)
			return fmt.Errorf("%w: %v", ErrStreamInterrupted, readErr)
		}
	}
}

// errStreamDone signals the [DONE] sentinel internally; never returned to callers.
var errStreamDone = fmt.Errorf("stream done")

func (c *CloudflareClient) dispatchStreamLine(line string, callback StreamCallback) error {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "data: ") {
		return nil
	}
	data := strings.TrimPrefix(line, "data: ")
	if data == "[DONE]" {
		return errStreamDone
	}
	var chunk cloudflareStreamChunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		// Partial or malformed JSON lines are skipped, not fatal.
		slog.Debug("Skipping unparseable stream line", "line", data)
		return nil
	}
	if chunk.Response == "" {
		return nil
	}
	return callback(StreamEvent{Type: StreamEventToken, Content: chunk.Response})
}

var _ LLMClient = (*CloudflareClient)(nil)
