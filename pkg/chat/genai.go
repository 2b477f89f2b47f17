package chat

import (
	"context"
	"errors"

	"google.golang.org/genai"

	"github.com/teslashibe/go-voicechat/internal/httpc"
)

// GenAIConfig configures the Gemini text generator.
type GenAIConfig struct {
	APIKey       string
	Model        string
	SystemPrompt string
	BaseURL      string
}

// GenAI streams replies from the Gemini API.
type GenAI struct {
	client *genai.Client
	model  string
	config *genai.GenerateContentConfig
}

// NewGenAI creates a generator. Streaming requests use a client without an
// overall timeout.
func NewGenAI(ctx context.Context, cfg GenAIConfig) (*GenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("chat: api key required")
	}
	clientCfg := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpc.NewClient(0),
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, err
	}

	g := &GenAI{client: client, model: cfg.Model, config: &genai.GenerateContentConfig{}}
	if cfg.SystemPrompt != "" {
		g.config.SystemInstruction = genai.NewContentFromText(cfg.SystemPrompt, genai.RoleUser)
	}
	return g, nil
}

// Stream implements Generator.
func (g *GenAI) Stream(ctx context.Context, history []Message, fn func(delta string) error) error {
	for resp, err := range g.client.Models.GenerateContentStream(ctx, g.model, contents(history), g.config) {
		if err != nil {
			return err
		}
		if text := resp.Text(); text != "" {
			if err := fn(text); err != nil {
				return err
			}
		}
	}
	return nil
}

// contents converts history to request contents, skipping failed and
// empty replies.
func contents(history []Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(history))
	for _, m := range history {
		if m.Error != "" || m.Text == "" {
			continue
		}
		var role genai.Role = genai.RoleUser
		if m.Role == RoleModel {
			role = genai.RoleModel
		}
		out = append(out, genai.NewContentFromText(m.Text, role))
	}
	return out
}
