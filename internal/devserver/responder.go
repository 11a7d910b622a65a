package devserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/tw1nflame/chat-langchain/internal"
)

const (
	// DefaultGeminiModel is used when no model name is configured
	DefaultGeminiModel = "gemini-1.5-flash"

	geminiSystemInstruction = "You are a helpful data analysis assistant. " +
		"Keep your answers concise and directly related to the user's question. " +
		"Do not make up information."
)

// Responder produces the assistant reply for a user prompt
type Responder interface {
	Respond(ctx context.Context, history []internal.RemoteMessage, prompt string) (string, error)
}

// EchoResponder replies with the prompt itself
type EchoResponder struct{}

// Respond implements Responder
func (EchoResponder) Respond(_ context.Context, _ []internal.RemoteMessage, prompt string) (string, error) {
	return "Echo: " + prompt, nil
}

// GeminiResponder answers through the Gemini API
type GeminiResponder struct {
	client *genai.Client
	model  string
}

// NewGeminiResponder creates a Gemini client authenticated with apiKey
func NewGeminiResponder(ctx context.Context, apiKey, model string) (*GeminiResponder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is empty")
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiResponder{client: client, model: model}, nil
}

// Close releases the Gemini client
func (g *GeminiResponder) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

// Respond implements Responder
func (g *GeminiResponder) Respond(ctx context.Context, history []internal.RemoteMessage, prompt string) (string, error) {
	model := g.client.GenerativeModel(g.model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(geminiSystemInstruction)},
	}

	chat := model.StartChat()
	chat.History = geminiHistory(history)

	resp, err := chat.SendMessage(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini chat SendMessage failed: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini returned no candidates")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			text.WriteString(string(txt))
		} else {
			internal.LogDebug("Gemini response part was not text: %T", part)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("gemini returned an empty response")
	}
	return text.String(), nil
}

// geminiHistory maps stored messages onto Gemini's user/model turns,
// skipping empty ones
func geminiHistory(messages []internal.RemoteMessage) []*genai.Content {
	history := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		role := "user"
		if m.Role == internal.RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(m.Content)},
		})
	}
	return history
}
