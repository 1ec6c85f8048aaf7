package narrative

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/retrolens/retro-engine/internal/config"
	"github.com/retrolens/retro-engine/internal/models"
)

func chatServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header: %q", got)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("expected system+user messages, got %+v", req.Messages)
		}
		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": content}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func testChatClient(url string) *ChatClient {
	return NewChatClient(config.NarrativeConfig{
		Provider:  "openai",
		BaseURL:   url,
		APIKey:    "test-key",
		Model:     "gpt-4o-mini",
		Timeout:   2 * time.Second,
		MaxTokens: 500,
	})
}

func TestChatClientHeadline(t *testing.T) {
	srv := chatServer(t, "  Review times are climbing fast\n")
	defer srv.Close()

	client := testChatClient(srv.URL)
	headline, err := client.Headline(context.Background(), nil, []models.Hypothesis{{Title: "X"}})
	if err != nil {
		t.Fatalf("headline: %v", err)
	}
	if headline != "Review times are climbing fast" {
		t.Fatalf("unexpected headline: %q", headline)
	}
}

func TestChatClientHeadlineFallsBackOnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := testChatClient(srv.URL)
	headline, err := client.Headline(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("headline: %v", err)
	}
	if headline != "Sprint metrics analysis: Review key trends and patterns" {
		t.Fatalf("expected fallback headline, got %q", headline)
	}
}

func TestChatClientRetroQuestions(t *testing.T) {
	srv := chatServer(t, "1. Why is review slow?\n2. What blocks testing?\n3. What do we try next?\n")
	defer srv.Close()

	client := testChatClient(srv.URL)
	questions, err := client.RetroQuestions(context.Background(), []models.Hypothesis{{Title: "X"}})
	if err != nil {
		t.Fatalf("questions: %v", err)
	}
	if len(questions) != 3 {
		t.Fatalf("expected 3 questions, got %d", len(questions))
	}
	if questions[0] != "Why is review slow?" {
		t.Fatalf("numbering not stripped: %q", questions[0])
	}
}

func TestChatClientRetroQuestionsTooFewFallsBack(t *testing.T) {
	srv := chatServer(t, "1. Only one question here")
	defer srv.Close()

	client := testChatClient(srv.URL)
	questions, err := client.RetroQuestions(context.Background(), []models.Hypothesis{
		{Title: "Review Process Bottleneck"},
	})
	if err != nil {
		t.Fatalf("questions: %v", err)
	}
	if len(questions) != 3 {
		t.Fatalf("expected 3 fallback questions, got %d", len(questions))
	}
	if questions[0] != "What factors are contributing to review process bottleneck?" {
		t.Fatalf("expected fallback question, got %q", questions[0])
	}
}

func TestParseQuestions(t *testing.T) {
	response := "Here are the questions:\n1) First?\n- Second?\n\n3. Third?\nnot a list line"
	questions := parseQuestions(response)
	if len(questions) != 3 {
		t.Fatalf("expected 3 parsed questions, got %d: %v", len(questions), questions)
	}
	if questions[1] != "Second?" {
		t.Fatalf("dash marker not stripped: %q", questions[1])
	}
}

func TestNewPicksFallbackWithoutKey(t *testing.T) {
	gen, err := New(config.NarrativeConfig{Provider: "openai"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, ok := gen.(Fallback); !ok {
		t.Fatalf("expected Fallback when API key missing, got %T", gen)
	}
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	if _, err := New(config.NarrativeConfig{Provider: "carrier-pigeon"}); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}
