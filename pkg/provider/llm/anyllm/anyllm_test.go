package anyllm

import (
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/samvaad-ai/samvaad/pkg/provider/llm"
)

// ── buildParams ───────────────────────────────────────────────────────────────

// TestBuildParams_SystemPromptFirst checks that the system prompt is prepended
// as the first message.
func TestBuildParams_SystemPromptFirst(t *testing.T) {
	p := &Provider{model: "gpt-4o"}
	params := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "Reply in Hindi.",
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: "namaste"},
		},
	})
	if len(params.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(params.Messages))
	}
	if params.Messages[0].Role != anyllmlib.RoleSystem {
		t.Errorf("expected first role system, got %q", params.Messages[0].Role)
	}
	if params.Messages[0].ContentString() != "Reply in Hindi." {
		t.Errorf("unexpected system content: %q", params.Messages[0].ContentString())
	}
	if params.Messages[1].Role != "user" {
		t.Errorf("expected second role user, got %q", params.Messages[1].Role)
	}
}

// TestBuildParams_RolesPreserved checks that history roles survive conversion.
func TestBuildParams_RolesPreserved(t *testing.T) {
	p := &Provider{model: "gpt-4o"}
	params := p.buildParams(llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: "Hello"},
			{Role: llm.RoleAssistant, Content: "Hi there!"},
			{Role: llm.RoleUser, Content: "How are you?"},
		},
	})
	if len(params.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(params.Messages))
	}
	wantRoles := []string{"user", "assistant", "user"}
	for i, want := range wantRoles {
		if params.Messages[i].Role != want {
			t.Errorf("message %d: expected role %q, got %q", i, want, params.Messages[i].Role)
		}
	}
}

// TestBuildParams_Temperature checks that a non-zero temperature is forwarded
// and a zero temperature leaves the provider default in place.
func TestBuildParams_Temperature(t *testing.T) {
	p := &Provider{model: "gpt-4o"}

	params := p.buildParams(llm.CompletionRequest{Temperature: 0.7})
	if params.Temperature == nil || *params.Temperature != 0.7 {
		t.Errorf("expected temperature 0.7, got %v", params.Temperature)
	}

	params = p.buildParams(llm.CompletionRequest{})
	if params.Temperature != nil {
		t.Errorf("expected nil temperature for zero value, got %v", *params.Temperature)
	}
}

// TestBuildParams_MaxTokens checks MaxTokens forwarding.
func TestBuildParams_MaxTokens(t *testing.T) {
	p := &Provider{model: "gpt-4o"}

	params := p.buildParams(llm.CompletionRequest{MaxTokens: 256})
	if params.MaxTokens == nil || *params.MaxTokens != 256 {
		t.Errorf("expected max tokens 256, got %v", params.MaxTokens)
	}

	params = p.buildParams(llm.CompletionRequest{})
	if params.MaxTokens != nil {
		t.Errorf("expected nil max tokens for zero value, got %v", *params.MaxTokens)
	}
}

// TestBuildParams_Model checks that the configured model is set on every request.
func TestBuildParams_Model(t *testing.T) {
	p := &Provider{model: "gemini-2.0-flash"}
	params := p.buildParams(llm.CompletionRequest{})
	if params.Model != "gemini-2.0-flash" {
		t.Errorf("expected model gemini-2.0-flash, got %q", params.Model)
	}
}

// ── Name ──────────────────────────────────────────────────────────────────────

// TestName_ProviderAndModel checks the "provider/model" naming convention.
func TestName_ProviderAndModel(t *testing.T) {
	p := &Provider{providerName: "gemini", model: "gemini-2.0-flash"}
	if got := p.Name(); got != "gemini/gemini-2.0-flash" {
		t.Errorf("Name() = %q, want %q", got, "gemini/gemini-2.0-flash")
	}
}

// ── Constructor ───────────────────────────────────────────────────────────────

// TestNew_EmptyProviderName checks that an empty provider name returns an error.
func TestNew_EmptyProviderName(t *testing.T) {
	_, err := New("", "gpt-4o")
	if err == nil {
		t.Fatal("expected error for empty providerName")
	}
}

// TestNew_EmptyModel checks that an empty model name returns an error.
func TestNew_EmptyModel(t *testing.T) {
	_, err := New("openai", "")
	if err == nil {
		t.Fatal("expected error for empty model")
	}
}

// TestNew_UnsupportedProvider checks that an unsupported provider returns an error.
func TestNew_UnsupportedProvider(t *testing.T) {
	_, err := New("fakecloud", "some-model", anyllmlib.WithAPIKey("dummy"))
	if err == nil {
		t.Fatal("expected error for unsupported provider")
	}
}

// TestNew_OpenAI_WithAPIKey checks that OpenAI provider constructs successfully with an API key.
func TestNew_OpenAI_WithAPIKey(t *testing.T) {
	p, err := New("openai", "gpt-4o", anyllmlib.WithAPIKey("sk-test"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected non-nil provider")
	}
	if p.model != "gpt-4o" {
		t.Errorf("expected model gpt-4o, got %q", p.model)
	}
	if p.Name() != "openai/gpt-4o" {
		t.Errorf("Name() = %q, want %q", p.Name(), "openai/gpt-4o")
	}
}

// TestNew_OpenAI_MissingAPIKey checks that OpenAI returns an error when no API key is available.
// This relies on OPENAI_API_KEY not being set in the test environment.
func TestNew_OpenAI_MissingAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "") // Ensure env var is clear.
	_, err := New("openai", "gpt-4o")
	if err == nil {
		t.Fatal("expected error for missing API key")
	}
}

// TestNew_Anthropic_WithAPIKey checks that Anthropic provider constructs successfully.
func TestNew_Anthropic_WithAPIKey(t *testing.T) {
	p, err := NewAnthropic("claude-3-5-sonnet-latest", anyllmlib.WithAPIKey("sk-ant-test"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected non-nil provider")
	}
}

// TestNew_Ollama_NoAPIKey checks that Ollama works without an API key.
func TestNew_Ollama_NoAPIKey(t *testing.T) {
	p, err := NewOllama("llama3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected non-nil provider")
	}
}

// TestConvenienceConstructors checks all convenience constructors delegate correctly.
func TestConvenienceConstructors(t *testing.T) {
	tests := []struct {
		name string
		fn   func() (*Provider, error)
	}{
		{"NewOpenAI", func() (*Provider, error) { return NewOpenAI("gpt-4o", anyllmlib.WithAPIKey("sk-test")) }},
		{"NewAnthropic", func() (*Provider, error) {
			return NewAnthropic("claude-3-5-sonnet-latest", anyllmlib.WithAPIKey("sk-ant-test"))
		}},
		{"NewOllama", func() (*Provider, error) { return NewOllama("llama3") }},
		{"NewLlamaCpp", func() (*Provider, error) { return NewLlamaCpp("llama3") }},
		{"NewLlamaFile", func() (*Provider, error) { return NewLlamaFile("llama3") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := tt.fn()
			if err != nil {
				t.Fatalf("%s: unexpected error: %v", tt.name, err)
			}
			if p == nil {
				t.Fatalf("%s: expected non-nil provider", tt.name)
			}
		})
	}
}
