package nlp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/koyomidev/koyomi/internal/config"
	"github.com/koyomidev/koyomi/internal/errors"
)

const systemPrompt = `You turn one short natural-language request into a task record.
Respond with a single JSON object and nothing else, using these keys:
title (string, required), priority (low|medium|high, optional),
due_date (YYYY-MM-DD, optional), time_estimate_minutes (integer, optional),
project (string, optional), people (array of strings, optional),
tags (array of strings, optional), context (string, optional).
Omit keys you cannot infer. Today's date is %s.`

// ParsedTask is the structured interpretation of a free-text task request.
type ParsedTask struct {
	Title               string   `json:"title"`
	Priority            string   `json:"priority,omitempty"`
	DueDate             string   `json:"due_date,omitempty"`
	TimeEstimateMinutes *int     `json:"time_estimate_minutes,omitempty"`
	Project             string   `json:"project,omitempty"`
	People              []string `json:"people,omitempty"`
	Tags                []string `json:"tags,omitempty"`
	Context             string   `json:"context,omitempty"`
}

// Parser extracts task fields from natural language through a chat-completion
// model.
type Parser struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

func NewParser(cfg config.NLPConfig) (*Parser, error) {
	if cfg.APIKey == "" {
		return nil, errors.InvalidInput("nlp api key is empty")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = config.DefaultNLPModel
	}
	timeout, err := config.DurationOrDefault(cfg.RequestTimeout, config.DefaultNLPRequestTimeout)
	if err != nil {
		return nil, err
	}
	return &Parser{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   model,
		timeout: timeout,
	}, nil
}

// ParseTask interprets one request. The model is asked for bare JSON; a
// fenced or prefixed response is tolerated by extracting the outermost
// object.
func (p *Parser) ParseTask(ctx context.Context, text string, today time.Time) (*ParsedTask, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.InvalidInput("task text is empty")
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: fmt.Sprintf(systemPrompt, today.Format("2006-01-02")),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: text,
			},
		},
		Temperature: 0.1,
	})
	if err != nil {
		return nil, errors.Wrap(err, "parse task request")
	}
	if len(resp.Choices) == 0 {
		return nil, errors.Upstream("model returned no choices")
	}

	raw := extractJSON(resp.Choices[0].Message.Content)
	var parsed ParsedTask
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("decode model response: %v: %w", err, errors.ErrUpstream)
	}
	if parsed.Title == "" {
		return nil, errors.Upstream("model response has no title")
	}

	slog.Debug("Parsed task request", "title", parsed.Title, "priority", parsed.Priority)
	return &parsed, nil
}

// extractJSON pulls the outermost JSON object out of a possibly fenced or
// chatty response.
func extractJSON(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return content
	}
	return content[start : end+1]
}
