// Copyright (C) 2025 PolyAgent
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/agpl-3.0.html> for the full license text.

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yasith867/PolyAgent/services/dashboard/datatypes"
	"github.com/Yasith867/PolyAgent/services/dashboard/observability"
	"github.com/Yasith867/PolyAgent/services/dashboard/store"
	"github.com/Yasith867/PolyAgent/services/llm"
)

// =============================================================================
// Test Fixtures
// =============================================================================

var metricsOnce sync.Once

// testMetrics returns the shared metrics instance. Prometheus panics on
// duplicate registration, so initialization happens once per test binary.
func testMetrics() *observability.StreamingMetrics {
	metricsOnce.Do(func() { observability.InitMetrics() })
	return observability.DefaultMetrics
}

// mockLLMClient scripts the upstream stream for relay tests.
type mockLLMClient struct {
	mu          sync.Mutex
	fragments   []string
	failAfter   int // return a stream error after this many fragments; 0 disables
	preStartErr error
	onFragment  func(i int) // invoked after fragment i is delivered
	gotMessages []llm.Message
	generateOut string
	generateErr error
}

func (m *mockLLMClient) Generate(ctx context.Context, messages []llm.Message, params llm.GenerationParams) (string, error) {
	m.mu.Lock()
	m.gotMessages = messages
	m.mu.Unlock()
	return m.generateOut, m.generateErr
}

func (m *mockLLMClient) ChatStream(ctx context.Context, messages []llm.Message, params llm.GenerationParams, callback llm.StreamCallback) error {
	m.mu.Lock()
	m.gotMessages = messages
	m.mu.Unlock()

	if m.preStartErr != nil {
		return m.preStartErr
	}

	for i, frag := range m.fragments {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := callback(llm.StreamEvent{Type: llm.StreamEventToken, Content: frag}); err != nil {
			return err
		}
		if m.onFragment != nil {
			m.onFragment(i)
		}
		if m.failAfter > 0 && i+1 == m.failAfter {
			return fmt.Errorf("%w: connection reset", llm.ErrStreamInterrupted)
		}
	}
	return nil
}

func (m *mockLLMClient) messages() []llm.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gotMessages
}

var _ llm.LLMClient = (*mockLLMClient)(nil)

func newTestRelay(t *testing.T, client llm.LLMClient) (*gin.Engine, *store.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	t.Setenv("POLYAGENT_INSECURE_MEMORY", "true")

	db, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	handler := NewAgentChatHandler(db, client, testMetrics())
	router := gin.New()
	router.POST("/api/ai-chat", handler.HandleAgentChat)
	return router, db
}

func postChat(router *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/ai-chat", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// parseFrames decodes the data-only SSE frames from a response body,
// ignoring comment (keepalive) frames.
func parseFrames(t *testing.T, body string) []datatypes.StreamEvent {
	t.Helper()
	var frames []datatypes.StreamEvent
	for _, block := range strings.Split(body, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" || strings.HasPrefix(block, ":") {
			continue
		}
		require.True(t, strings.HasPrefix(block, "data: "), "unexpected SSE block: %q", block)
		var ev datatypes.StreamEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(block, "data: ")), &ev))
		frames = append(frames, ev)
	}
	return frames
}

// =============================================================================
// Tests
// =============================================================================

func TestHandleAgentChat_StreamsAndPersists(t *testing.T) {
	client := &mockLLMClient{fragments: []string{"Your ", "risk is ", "moderate."}}
	router, db := newTestRelay(t, client)
	require.NoError(t, db.Seed(context.Background()))

	w := postChat(router, `{"message": "How risky is my portfolio?"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))
	assert.Equal(t, "no", w.Header().Get("X-Accel-Buffering"))

	frames := parseFrames(t, w.Body.String())
	require.Len(t, frames, 4)
	assert.Equal(t, "Your ", frames[0].Content)
	assert.Equal(t, "risk is ", frames[1].Content)
	assert.Equal(t, "moderate.", frames[2].Content)
	assert.True(t, frames[3].Done, "final frame signals completion")

	chats, err := db.GetChatsByPortfolio(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, "user", chats[0].Role)
	assert.Equal(t, "How risky is my portfolio?", chats[0].Content)
	assert.Equal(t, "assistant", chats[1].Role)
	assert.Equal(t, "Your risk is moderate.", chats[1].Content,
		"assistant turn is the exact fragment concatenation")
}

func TestHandleAgentChat_SystemPromptGrounding(t *testing.T) {
	client := &mockLLMClient{fragments: []string{"ok"}}
	router, db := newTestRelay(t, client)
	require.NoError(t, db.Seed(context.Background()))

	w := postChat(router, `{"message": "Hello"}`)
	require.Equal(t, http.StatusOK, w.Code)

	messages := client.messages()
	require.NotEmpty(t, messages)
	require.Equal(t, "system", messages[0].Role)
	assert.Contains(t, messages[0].Content, "$15247.83")
	assert.Contains(t, messages[0].Content, "MATIC: 5000 ($5337.50)")

	// The just-persisted user turn arrives as part of the history window.
	last := messages[len(messages)-1]
	assert.Equal(t, "user", last.Role)
	assert.Equal(t, "Hello", last.Content)
}

func TestHandleAgentChat_EmptyMessageRejected(t *testing.T) {
	client := &mockLLMClient{fragments: []string{"never"}}
	router, db := newTestRelay(t, client)

	w := postChat(router, `{"message": ""}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["error"])

	// Rejected requests leave no trace in the store.
	chats, err := db.GetChatsByPortfolio(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, chats)
	assert.Nil(t, client.messages(), "upstream is never called")
}

func TestHandleAgentChat_OversizedMessageRejected(t *testing.T) {
	client := &mockLLMClient{}
	router, db := newTestRelay(t, client)

	body, err := json.Marshal(map[string]any{"message": strings.Repeat("a", datatypes.MaxMessageContentBytes+1)})
	require.NoError(t, err)

	w := postChat(router, string(body))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	chats, err := db.GetChatsByPortfolio(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, chats)
}

func TestHandleAgentChat_MidStreamFailureDiscardsPartial(t *testing.T) {
	client := &mockLLMClient{fragments: []string{"partial ", "answer ", "lost"}, failAfter: 2}
	router, db := newTestRelay(t, client)
	require.NoError(t, db.Seed(context.Background()))

	w := postChat(router, `{"message": "Hello"}`)
	require.Equal(t, http.StatusOK, w.Code, "failure happens after SSE headers")

	frames := parseFrames(t, w.Body.String())
	require.Len(t, frames, 3)
	assert.Equal(t, "partial ", frames[0].Content)
	assert.Equal(t, "answer ", frames[1].Content)
	assert.NotEmpty(t, frames[2].Error, "stream ends with an error frame")
	assert.False(t, frames[2].Done)

	// The user turn survives; the partial assistant text is never persisted.
	chats, err := db.GetChatsByPortfolio(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, "user", chats[0].Role)
}

func TestHandleAgentChat_UpstreamUnavailable(t *testing.T) {
	client := &mockLLMClient{preStartErr: fmt.Errorf("%w: dial tcp refused", llm.ErrUpstreamUnavailable)}
	router, db := newTestRelay(t, client)

	w := postChat(router, `{"message": "Hello"}`)
	require.Equal(t, http.StatusOK, w.Code)

	frames := parseFrames(t, w.Body.String())
	require.Len(t, frames, 1)
	assert.NotEmpty(t, frames[0].Error)

	chats, err := db.GetChatsByPortfolio(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, chats, 1, "user turn persisted before the upstream call")
	assert.Equal(t, "user", chats[0].Role)
}

func TestHandleAgentChat_ClientDisconnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := &mockLLMClient{
		fragments: []string{"one ", "two ", "three ", "four ", "five"},
		onFragment: func(i int) {
			if i == 1 {
				cancel() // client goes away after the second fragment
			}
		},
	}
	router, db := newTestRelay(t, client)
	require.NoError(t, db.Seed(context.Background()))

	req := httptest.NewRequest(http.MethodPost, "/api/ai-chat",
		bytes.NewBufferString(`{"message": "Hello"}`))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	frames := parseFrames(t, w.Body.String())
	require.Len(t, frames, 2, "streaming stops at the cancelled fragment")
	for _, f := range frames {
		assert.False(t, f.Done)
		assert.Empty(t, f.Error, "disconnect produces neither done nor error frames")
	}

	// Only the user turn is durable after a disconnect.
	chats, err := db.GetChatsByPortfolio(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, "user", chats[0].Role)
}

func TestHandleAgentChat_HistoryWindowCapped(t *testing.T) {
	client := &mockLLMClient{fragments: []string{"ok"}}
	router, db := newTestRelay(t, client)
	ctx := context.Background()

	p := &datatypes.Portfolio{Name: "Test", WalletAddress: "0xabc"}
	require.NoError(t, db.CreatePortfolio(ctx, p))
	for i := 0; i < 15; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		require.NoError(t, db.AppendChat(ctx, &datatypes.ChatMessage{
			PortfolioID: p.ID, Role: role, Content: fmt.Sprintf("old turn %d", i),
		}))
	}

	body, err := json.Marshal(map[string]any{"message": "newest question", "portfolioId": p.ID})
	require.NoError(t, err)
	w := postChat(router, string(body))
	require.Equal(t, http.StatusOK, w.Code)

	messages := client.messages()
	require.Len(t, messages, 11, "system prompt plus a ten-turn window")
	assert.Equal(t, "system", messages[0].Role)
	assert.Equal(t, "newest question", messages[10].Content)
	assert.Equal(t, "old turn 6", messages[1].Content, "window slides past the oldest turns")
}

func TestHandleAgentChat_DefaultPortfolio(t *testing.T) {
	client := &mockLLMClient{fragments: []string{"ok"}}
	router, db := newTestRelay(t, client)

	w := postChat(router, `{"message": "Hello"}`)
	require.Equal(t, http.StatusOK, w.Code)

	chats, err := db.GetChatsByPortfolio(context.Background(), datatypes.DefaultPortfolioID)
	require.NoError(t, err)
	require.Len(t, chats, 2, "omitted portfolioId falls back to the default portfolio")
}
