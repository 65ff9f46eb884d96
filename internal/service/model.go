package service

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/deepseek"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"webpilot/internal/config"
	"webpilot/internal/models"
)

const (
	DeepSeekChatModelID     = "deepseek-chat"
	DeepSeekReasonerModelID = "deepseek-reasoner"
	DoubaoSeed18ModelID     = "doubao-seed-1-8-251215"
	KimiK2TurboModelID      = "kimi-k2-turbo-preview"
	XGrok41FastModelID      = "x-ai/grok-4.1-fast"
)

const defaultModelID = DeepSeekChatModelID

const (
	DeepSeekModelProvider   = "DeepSeek"
	ByteDanceModelProvider  = "ByteDance"
	MoonshotModelProvider   = "Moonshot"
	OpenRouterModelProvider = "OpenRouter"
)

const (
	DeepSeekModelBaseURL   = "https://api.deepseek.com"
	ByteDanceModelBaseURL  = "https://ark.cn-beijing.volces.com/api/v3/chat/completions"
	MoonshotModelBaseURL   = "https://api.moonshot.cn"
	OpenRouterModelBaseURL = "https://openrouter.ai/api/v1"
)

// ModelFactory builds a tool-calling chat model for a model ID. The runner
// depends on this boundary only, which keeps it drivable by fakes in tests.
type ModelFactory func(ctx context.Context, modelID string) (model.ToolCallingChatModel, error)

type modelEntry struct {
	Info    *models.ModelInfo
	BaseURL string
}

var availableModels = map[string]*modelEntry{
	DeepSeekChatModelID: {
		Info: &models.ModelInfo{
			ID:            DeepSeekChatModelID,
			Name:          "deepseek-chat",
			Provider:      DeepSeekModelProvider,
			ContextWindow: "128k",
		},
		BaseURL: DeepSeekModelBaseURL,
	},
	DeepSeekReasonerModelID: {
		Info: &models.ModelInfo{
			ID:            DeepSeekReasonerModelID,
			Name:          "deepseek-reasoner",
			Provider:      DeepSeekModelProvider,
			ContextWindow: "128k",
			Reasoning:     true,
		},
		BaseURL: DeepSeekModelBaseURL,
	},
	DoubaoSeed18ModelID: {
		Info: &models.ModelInfo{
			ID:            DoubaoSeed18ModelID,
			Name:          "doubao-seed-1.8",
			Provider:      ByteDanceModelProvider,
			ContextWindow: "256k",
		},
		BaseURL: ByteDanceModelBaseURL,
	},
	KimiK2TurboModelID: {
		Info: &models.ModelInfo{
			ID:            KimiK2TurboModelID,
			Name:          "kimi-k2",
			Provider:      MoonshotModelProvider,
			ContextWindow: "256k",
		},
		BaseURL: MoonshotModelBaseURL,
	},
	XGrok41FastModelID: {
		Info: &models.ModelInfo{
			ID:            XGrok41FastModelID,
			Name:          "grok-4.1-fast",
			Provider:      OpenRouterModelProvider,
			ContextWindow: "2M",
		},
		BaseURL: OpenRouterModelBaseURL,
	},
}

// ModelProviderOf returns the provider name for a known model ID, or an
// empty string for unknown IDs (for example, fakes in tests).
func ModelProviderOf(modelID string) string {
	if entry, ok := availableModels[modelID]; ok {
		return entry.Info.Provider
	}
	return ""
}

// ModelRegistry resolves model IDs to eino chat models using API keys from
// the application config.
type ModelRegistry struct {
	cfg config.Config
}

func NewModelRegistry(cfg config.Config) *ModelRegistry {
	return &ModelRegistry{cfg: cfg}
}

func (r *ModelRegistry) DefaultModelInfo() *models.ModelInfo {
	if r.cfg.DefaultModel != "" {
		if entry, ok := availableModels[r.cfg.DefaultModel]; ok {
			return entry.Info
		}
	}
	return availableModels[defaultModelID].Info
}

func (r *ModelRegistry) AvailableModelInfos() []*models.ModelInfo {
	infos := make([]*models.ModelInfo, 0, len(availableModels))
	for _, entry := range availableModels {
		infos = append(infos, entry.Info)
	}

	return infos
}

func (r *ModelRegistry) IsModelAvailable(modelID string) bool {
	_, ok := availableModels[modelID]
	return ok
}

func (r *ModelRegistry) GetModel(ctx context.Context, modelID string) (model.ToolCallingChatModel, error) {
	entry, ok := availableModels[modelID]
	if !ok {
		return nil, fmt.Errorf("model not found: %s", modelID)
	}

	switch entry.Info.Provider {
	case DeepSeekModelProvider:
		if r.cfg.DeepSeekAPIKey == "" {
			return nil, fmt.Errorf("DeepSeek API key is not configured")
		}
		return deepseek.NewChatModel(ctx, &deepseek.ChatModelConfig{
			APIKey:  r.cfg.DeepSeekAPIKey,
			BaseURL: entry.BaseURL,
			Model:   modelID,
		})
	case ByteDanceModelProvider:
		if r.cfg.ByteDanceAPIKey == "" {
			return nil, fmt.Errorf("ByteDance API key is not configured")
		}
		return ark.NewChatModel(ctx, &ark.ChatModelConfig{
			APIKey:  r.cfg.ByteDanceAPIKey,
			BaseURL: entry.BaseURL,
			Model:   modelID,
		})
	case MoonshotModelProvider:
		if r.cfg.MoonshotAPIKey == "" {
			return nil, fmt.Errorf("Moonshot API key is not configured")
		}
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{
			APIKey:  r.cfg.MoonshotAPIKey,
			BaseURL: entry.BaseURL,
			Model:   modelID,
		})
	case OpenRouterModelProvider:
		if r.cfg.OpenRouterAPIKey == "" {
			return nil, fmt.Errorf("OpenRouter API key is not configured")
		}
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{
			APIKey:  r.cfg.OpenRouterAPIKey,
			BaseURL: entry.BaseURL,
			Model:   modelID,
		})
	default:
	}

	return nil, fmt.Errorf("unsupported model provider: %s", entry.Info.Provider)
}
