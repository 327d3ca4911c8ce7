package assistant

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino-ext/components/tool/duckduckgo/v2"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/flow/agent/react"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"termchat/internal/config"
)

// Generator turns a user prompt into a single assistant reply. No streaming:
// one request, one response.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

const systemPrompt = "You are the resident assistant of a small chat service. " +
	"Answer the user's message concisely and helpfully. " +
	"Reply in plain text suitable for a terminal-styled chat window."

type einoGenerator struct {
	chatModel model.ToolCallingChatModel
	agent     *react.Agent
}

// NewGenerator builds the production generator from the configured provider,
// optionally wrapping the model in a react agent with a web search tool.
func NewGenerator(cfg *config.Config) (Generator, error) {
	provider := cfg.Assistant.Provider
	if provider == "" {
		return nil, fmt.Errorf("assistant provider not configured")
	}
	provCfg, ok := cfg.Providers[provider]
	if !ok {
		return nil, fmt.Errorf("provider %s not configured", provider)
	}
	modelName := cfg.Assistant.Model
	if modelName == "" {
		modelName = provCfg.Model
	}

	var (
		chatModel model.ToolCallingChatModel
		err       error
	)
	switch provider {
	case "openai":
		chatModel, err = openai.NewChatModel(context.Background(), &openai.ChatModelConfig{
			BaseURL: provCfg.BaseURL,
			Model:   modelName,
			APIKey:  provCfg.APIKey,
		})
	case "gemini":
		var client *genai.Client
		client, err = genai.NewClient(context.Background(), &genai.ClientConfig{
			APIKey: provCfg.APIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("init gemini client: %w", err)
		}
		chatModel, err = gemini.NewChatModel(context.Background(), &gemini.Config{
			Client: client,
			Model:  modelName,
		})
	case "claude":
		var baseURLPtr *string
		if provCfg.BaseURL != "" {
			baseURLPtr = &provCfg.BaseURL
		}
		chatModel, err = claude.NewChatModel(context.Background(), &claude.Config{
			APIKey:    provCfg.APIKey,
			Model:     modelName,
			BaseURL:   baseURLPtr,
			MaxTokens: 1000,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", provider, err)
	}

	gen := &einoGenerator{chatModel: chatModel}
	if cfg.Assistant.EnableWebSearch {
		duckTool, err := duckduckgo.NewTextSearchTool(context.Background(), &duckduckgo.Config{
			ToolName:   "web_search",
			ToolDesc:   "DuckDuckGo Search Tool (no token required)",
			MaxResults: 3,
			Region:     duckduckgo.RegionWT,
			Timeout:    10 * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("init search tool: %w", err)
		}
		gen.agent, err = react.NewAgent(context.Background(), &react.AgentConfig{
			ToolCallingModel: chatModel,
			ToolsConfig: compose.ToolsNodeConfig{
				Tools: []tool.BaseTool{duckTool},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("init react agent: %w", err)
		}
	}
	return gen, nil
}

func (g *einoGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	messages := []*schema.Message{
		{Role: schema.System, Content: systemPrompt},
		{Role: schema.User, Content: prompt},
	}
	var (
		resp *schema.Message
		err  error
	)
	if g.agent != nil {
		resp, err = g.agent.Generate(ctx, messages)
	} else {
		resp, err = g.chatModel.Generate(ctx, messages)
	}
	if err != nil {
		return "", fmt.Errorf("generate reply failed: %w", err)
	}
	return resp.Content, nil
}
