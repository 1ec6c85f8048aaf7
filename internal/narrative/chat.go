package narrative

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
	"unicode"

	"github.com/retrolens/retro-engine/internal/config"
	"github.com/retrolens/retro-engine/internal/models"
	"github.com/retrolens/retro-engine/internal/utils"
)

const defaultChatURL = "https://api.openai.com/v1/chat/completions"

// ChatClient talks to an OpenAI-compatible chat-completions endpoint. Every
// method degrades to the deterministic Fallback when the call fails, so a
// flaky or misconfigured LLM never blocks report generation.
type ChatClient struct {
	baseURL     string
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	client      *http.Client
	fallback    Fallback
	logger      *slog.Logger
}

// NewChatClient constructs a ChatClient from narrative config.
func NewChatClient(cfg config.NarrativeConfig) *ChatClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultChatURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 500
	}
	return &ChatClient{
		baseURL:     baseURL,
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: timeout},
		logger:      slog.Default(),
	}
}

func (c *ChatClient) Headline(ctx context.Context, trends []models.TrendResult, hypotheses []models.Hypothesis) (string, error) {
	prompt := "Based on the following sprint metrics analysis, generate a compelling, " +
		"concise headline (1-2 lines) that captures the most important trend or issue. " +
		"Focus on actionable insights and impact.\n\n" +
		headlineContext(trends, hypotheses) + "\n\nHeadline:"

	response, err := c.chat(ctx, "You are an expert Agile coach analyzing team metrics.", prompt)
	if err != nil {
		c.logger.Error("headline generation failed", slog.Any("error", err))
		return c.fallback.Headline(ctx, trends, hypotheses)
	}
	return strings.TrimSpace(response), nil
}

func (c *ChatClient) RetroQuestions(ctx context.Context, hypotheses []models.Hypothesis) ([]string, error) {
	top := hypotheses
	if len(top) > 3 {
		top = top[:3]
	}
	var sb strings.Builder
	for i, h := range top {
		fmt.Fprintf(&sb, "%d. %s: %s\n", i+1, h.Title, h.Description)
	}

	prompt := "Based on these hypotheses about the team's recent performance:\n\n" +
		sb.String() + "\n" +
		"Generate exactly 3 powerful retrospective questions that will help the team:\n" +
		"1. Reflect on root causes\n" +
		"2. Identify concrete improvements\n" +
		"3. Commit to actionable experiments\n\n" +
		"Format: Return only the 3 questions, one per line, numbered."

	response, err := c.chat(ctx, "You are an expert Scrum Master facilitating retrospectives.", prompt)
	if err != nil {
		c.logger.Error("retro question generation failed", slog.Any("error", err))
		return c.fallback.RetroQuestions(ctx, hypotheses)
	}

	questions := parseQuestions(response)
	if len(questions) < 3 {
		return c.fallback.RetroQuestions(ctx, hypotheses)
	}
	return questions[:3], nil
}

func (c *ChatClient) EnhanceHypothesis(ctx context.Context, h models.Hypothesis, customContext string) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Hypothesis: %s\nCurrent description: %s\nEvidence:\n", h.Title, h.Description)
	for _, ev := range h.Evidence {
		fmt.Fprintf(&sb, "- %s: %s (%s)\n", ev.MetricName, ev.Trend, ev.Value)
	}
	if customContext != "" {
		fmt.Fprintf(&sb, "\nAdditional context: %s\n", customContext)
	}
	sb.WriteString("\nEnhance this hypothesis description to be more clear and actionable " +
		"for a Scrum team retrospective. Keep it concise (2-3 sentences).")

	response, err := c.chat(ctx, "You are an expert Agile coach helping teams improve.", sb.String())
	if err != nil {
		c.logger.Error("hypothesis enhancement failed", slog.Any("error", err))
		return h.Description, nil
	}
	return strings.TrimSpace(response), nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (c *ChatClient) chat(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", utils.NewAppError("narrative.chat",
			fmt.Sprintf("chat API returned status %d", resp.StatusCode), nil)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", err
	}
	if parsed.Error.Message != "" {
		return "", utils.NewAppError("narrative.chat", parsed.Error.Message, nil)
	}
	if len(parsed.Choices) == 0 {
		return "", utils.NewAppError("narrative.chat", "empty response from chat API", nil)
	}
	return parsed.Choices[0].Message.Content, nil
}

func headlineContext(trends []models.TrendResult, hypotheses []models.Hypothesis) string {
	var sb strings.Builder
	sb.WriteString("Key Trends:\n")

	count := 0
	for _, t := range trends {
		if !t.IsSignificant {
			continue
		}
		fmt.Fprintf(&sb, "- %s: %s %.0f%%\n", t.MetricName, t.Direction, abs(t.ChangePercent))
		count++
		if count == 3 {
			break
		}
	}

	sb.WriteString("\nTop Hypothesis: ")
	if len(hypotheses) > 0 {
		sb.WriteString(hypotheses[0].Title)
		sb.WriteString("\n")
	}
	return sb.String()
}

// parseQuestions pulls numbered or dashed lines from a model response and
// strips the list markers.
func parseQuestions(response string) []string {
	var questions []string
	for _, line := range strings.Split(strings.TrimSpace(response), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !unicode.IsDigit(rune(line[0])) && !strings.HasPrefix(line, "-") {
			continue
		}
		question := strings.TrimLeft(line, "0123456789.-) ")
		if question != "" {
			questions = append(questions, question)
		}
	}
	return questions
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
