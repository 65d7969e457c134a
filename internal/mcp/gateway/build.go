package gateway

import (
	"context"

	"github.com/nulpointcorp/mcp-gateway/internal/config"
	"github.com/nulpointcorp/mcp-gateway/internal/providers"
	anthropicprov "github.com/nulpointcorp/mcp-gateway/internal/providers/anthropic"
	azureprov "github.com/nulpointcorp/mcp-gateway/internal/providers/azure"
	bedrockprov "github.com/nulpointcorp/mcp-gateway/internal/providers/bedrock"
	geminiprov "github.com/nulpointcorp/mcp-gateway/internal/providers/gemini"
	mistralprov "github.com/nulpointcorp/mcp-gateway/internal/providers/mistral"
	openaiprov "github.com/nulpointcorp/mcp-gateway/internal/providers/openai"
	openaicompatprov "github.com/nulpointcorp/mcp-gateway/internal/providers/openaicompat"
	vertexaiprov "github.com/nulpointcorp/mcp-gateway/internal/providers/vertexai"
)

// BuildProviders constructs one provider client per configured API key,
// carried over from the teacher's gateway wiring unchanged in shape: the
// four direct SDKs, the OpenAI-compatible aggregator list, Vertex AI via
// ADC, Bedrock, and Azure OpenAI.
func BuildProviders(ctx context.Context, cfg *config.Config) map[string]providers.Provider {
	provs := make(map[string]providers.Provider)

	if cfg.OpenAI.APIKey != "" {
		var opts []openaiprov.Option
		if cfg.OpenAI.BaseURL != "" {
			opts = append(opts, openaiprov.WithBaseURL(cfg.OpenAI.BaseURL))
		}
		provs["openai"] = openaiprov.New(cfg.OpenAI.APIKey, opts...)
	}
	if cfg.Anthropic.APIKey != "" {
		var opts []anthropicprov.Option
		if cfg.Anthropic.BaseURL != "" {
			opts = append(opts, anthropicprov.WithBaseURL(cfg.Anthropic.BaseURL))
		}
		provs["anthropic"] = anthropicprov.New(cfg.Anthropic.APIKey, opts...)
	}
	if cfg.Gemini.APIKey != "" {
		var opts []geminiprov.Option
		if cfg.Gemini.BaseURL != "" {
			opts = append(opts, geminiprov.WithBaseURL(cfg.Gemini.BaseURL))
		}
		provs["gemini"] = geminiprov.New(ctx, cfg.Gemini.APIKey, opts...)
	}
	if cfg.Mistral.APIKey != "" {
		var opts []mistralprov.Option
		if cfg.Mistral.BaseURL != "" {
			opts = append(opts, mistralprov.WithBaseURL(cfg.Mistral.BaseURL))
		}
		provs["mistral"] = mistralprov.New(cfg.Mistral.APIKey, opts...)
	}

	type ocEntry struct{ key, name, baseURL string }
	for _, e := range []ocEntry{
		{cfg.XAI.APIKey, "xai", "https://api.x.ai/v1"},
		{cfg.DeepSeek.APIKey, "deepseek", "https://api.deepseek.com/v1"},
		{cfg.Groq.APIKey, "groq", "https://api.groq.com/openai/v1"},
		{cfg.Together.APIKey, "together", "https://api.together.xyz/v1"},
		{cfg.Perplexity.APIKey, "perplexity", "https://api.perplexity.ai"},
		{cfg.Cerebras.APIKey, "cerebras", "https://api.cerebras.ai/v1"},
		{cfg.Moonshot.APIKey, "moonshot", "https://api.moonshot.cn/v1"},
		{cfg.MiniMax.APIKey, "minimax", "https://api.minimax.chat/v1"},
		{cfg.Qwen.APIKey, "qwen", "https://dashscope-intl.aliyuncs.com/compatible-mode/v1"},
		{cfg.Nebius.APIKey, "nebius", "https://api.studio.nebius.ai/v1"},
		{cfg.NovitaAI.APIKey, "novita", "https://api.novita.ai/v3/openai"},
		{cfg.ByteDance.APIKey, "bytedance", "https://ark.cn-beijing.volces.com/api/v3"},
		{cfg.ZAI.APIKey, "zai", "https://api.z.ai/api/openai/v1"},
		{cfg.CanopyWave.APIKey, "canopywave", "https://api.canopywave.com/v1"},
		{cfg.Inference.APIKey, "inference", "https://api.inference.net/v1"},
		{cfg.NanoGPT.APIKey, "nanogpt", "https://nano-gpt.com/api/v1"},
	} {
		if e.key != "" {
			provs[e.name] = openaicompatprov.New(e.name, e.key, e.baseURL)
		}
	}

	if cfg.VertexAI.Project != "" {
		var opts []vertexaiprov.Option
		if cfg.VertexAI.Location != "" {
			opts = append(opts, vertexaiprov.WithLocation(cfg.VertexAI.Location))
		}
		if p, err := vertexaiprov.New(ctx, cfg.VertexAI.Project, opts...); err == nil {
			provs["vertexai"] = p
		}
	}

	if cfg.Bedrock.AccessKey != "" && cfg.Bedrock.SecretKey != "" && cfg.Bedrock.Region != "" {
		var opts []bedrockprov.Option
		if cfg.Bedrock.SessionToken != "" {
			opts = append(opts, bedrockprov.WithSessionToken(cfg.Bedrock.SessionToken))
		}
		if cfg.Bedrock.EndpointURL != "" {
			opts = append(opts, bedrockprov.WithEndpointURL(cfg.Bedrock.EndpointURL))
		}
		provs["bedrock"] = bedrockprov.New(cfg.Bedrock.AccessKey, cfg.Bedrock.SecretKey, cfg.Bedrock.Region, opts...)
	}

	if cfg.Azure.APIKey != "" && cfg.Azure.Endpoint != "" {
		apiVersion := cfg.Azure.APIVersion
		if apiVersion == "" {
			apiVersion = "2024-12-01-preview"
		}
		provs["azure"] = azureprov.New(cfg.Azure.Endpoint, cfg.Azure.APIKey, apiVersion)
	}

	return provs
}
