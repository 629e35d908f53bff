package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-trading-bot/internal/llm"
)

func replyWith(t *testing.T, content string, check func(chatRequest)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if check != nil {
			check(req)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": content}}},
		})
	}))
}

func TestProvider_Extract(t *testing.T) {
	srv := replyWith(t, "```json\n{\"symbol\":\"SOL\",\"side\":\"short\",\"entry\":[180],\"tp\":[175,170],\"sl\":186}\n```",
		func(req chatRequest) {
			assert.Equal(t, "test-model", req.Model)
			require.Len(t, req.Messages, 2)
			assert.Equal(t, "system", req.Messages[0].Role)
			assert.Contains(t, req.Messages[1].Content, "sol short")
			require.NotNil(t, req.ResponseFormat)
			assert.Equal(t, "json_object", req.ResponseFormat.Type)
		})
	defer srv.Close()

	p, err := New(Config{Name: "groq", BaseURL: srv.URL + "/", APIKey: "sk-test", Model: "test-model", JSONMode: true})
	require.NoError(t, err)
	assert.Equal(t, "groq", p.Name())

	ext, err := p.Extract(context.Background(), "sol short 180 tp 175 170 sl 186")
	require.NoError(t, err)
	assert.True(t, ext.Signal)
	assert.Equal(t, "SOLUSDT", ext.Symbol)
	assert.Equal(t, []float64{175, 170}, ext.TakeProfits)
	assert.Equal(t, "groq", ext.Provider)
}

func TestProvider_NegativeReply(t *testing.T) {
	srv := replyWith(t, `{"signal": false}`, func(req chatRequest) {
		assert.Nil(t, req.ResponseFormat)
	})
	defer srv.Close()

	p, err := New(Config{BaseURL: srv.URL, APIKey: "sk-test", Model: "m"})
	require.NoError(t, err)

	ext, err := p.Extract(context.Background(), "good morning everyone")
	require.NoError(t, err)
	assert.False(t, ext.Signal)
}

func TestProvider_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"slow down"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p, err := New(Config{BaseURL: srv.URL, APIKey: "sk-test", Model: "m"})
	require.NoError(t, err)

	ext, err := p.Extract(context.Background(), "btc long")
	assert.ErrorIs(t, err, llm.ErrRateLimited)
	assert.False(t, ext.Signal)
}

func TestNew_RequiresModel(t *testing.T) {
	_, err := New(Config{APIKey: "k"})
	assert.Error(t, err)
}
