package service

import (
	"context"
	"course_assessment_backend/internal/config"
	"course_assessment_backend/internal/util"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateParsesContentAndUsage(t *testing.T) {
	var gotReq genAIRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"choices": [{"message": {"role": "assistant", "content": "{\"blueprint\": {}}"}}],
			"usage": {"total_tokens": 99}
		}`))
	}))
	defer server.Close()

	svc := NewGenAIService(config.GenAIConfig{
		BaseURL: server.URL,
		APIKey:  "test-key",
		Model:   "test-model",
	})

	content, usage, err := svc.Generate(context.Background(), "make questions")
	require.NoError(t, err)
	assert.JSONEq(t, `{"blueprint": {}}`, string(content))
	assert.JSONEq(t, `{"total_tokens": 99}`, string(usage))

	assert.Equal(t, "test-model", gotReq.Model)
	assert.Equal(t, 0.1, gotReq.Temperature)
	assert.Equal(t, "json_object", gotReq.ResponseFormat.Type)
	require.Len(t, gotReq.Messages, 1)
	assert.Equal(t, "make questions", gotReq.Messages[0].Content)
}

func TestGenerateMapsDeadlineToTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	svc := NewGenAIService(config.GenAIConfig{BaseURL: server.URL})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, _, err := svc.Generate(ctx, "slow")
	assert.ErrorIs(t, err, util.ErrGenerationTimeout)
}

func TestGenerateSurfacesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": {"message": "rate limited"}}`))
	}))
	defer server.Close()

	svc := NewGenAIService(config.GenAIConfig{BaseURL: server.URL})

	_, _, err := svc.Generate(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
}

func TestGenerateRejectsEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": []}`))
	}))
	defer server.Close()

	svc := NewGenAIService(config.GenAIConfig{BaseURL: server.URL})

	_, _, err := svc.Generate(context.Background(), "x")
	assert.Error(t, err)
}
