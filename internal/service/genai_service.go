package service

import (
	"bytes"
	"context"
	"course_assessment_backend/internal/config"
	"course_assessment_backend/internal/util"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// GenAIService 调用 OpenAI 兼容的生成接口，要求模型输出结构化 JSON。
// 模型可能违反约定结构，调用方必须经过 ResultValidator 校验后才能落库
type GenAIService struct {
	config config.GenAIConfig
	client *http.Client
}

func NewGenAIService(cfg config.GenAIConfig) *GenAIService {
	return &GenAIService{
		config: cfg,
		client: &http.Client{},
	}
}

type genAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type genAIRequest struct {
	Model          string         `json:"model"`
	Messages       []genAIMessage `json:"messages"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type genAIResponse struct {
	Choices []struct {
		Message genAIMessage `json:"message"`
	} `json:"choices"`
	Usage json.RawMessage `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Generate 返回模型的原始 JSON 输出和 token 用量。
// 超时由调用方通过 ctx 控制，超时按生成失败处理
func (s *GenAIService) Generate(ctx context.Context, prompt string) (json.RawMessage, json.RawMessage, error) {
	reqBody := genAIRequest{
		Model: s.config.Model,
		Messages: []genAIMessage{
			{Role: "user", Content: prompt},
		},
		Temperature: 0.1,
	}
	reqBody.ResponseFormat.Type = "json_object"

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.BaseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.config.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return nil, nil, util.ErrGenerationTimeout
		}
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("generation API error (status %d): %s", resp.StatusCode, string(body))
	}

	var result genAIResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, nil, err
	}
	if result.Error != nil {
		return nil, nil, fmt.Errorf("generation API error: %s", result.Error.Message)
	}
	if len(result.Choices) == 0 {
		return nil, nil, fmt.Errorf("generation API returned no choices")
	}

	content := result.Choices[0].Message.Content
	if content == "" {
		return nil, nil, fmt.Errorf("generation API returned an empty response")
	}

	usage := result.Usage
	if len(usage) == 0 {
		usage = json.RawMessage("{}")
	}
	return json.RawMessage(content), usage, nil
}
