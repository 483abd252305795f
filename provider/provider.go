package provider

import (
	"context"
	"errors"

	"github.com/xoity/medicinedb/config"
	gemini_provider "github.com/xoity/medicinedb/provider/gemini"
	ollama_provider "github.com/xoity/medicinedb/provider/ollama"
)

// Client represents different LLM providers
type Client string

const (
	Gemini Client = "gemini"
	Ollama Client = "ollama"
)

// Provider is the interface that all LLM implementations must satisfy
type Provider interface {
	Complete(ctx context.Context, system string, user string) (string, error)
}

// NewProvider creates a new LLM client based on the provided configuration.
// The Ollama path probes the local daemon first; an unreachable daemon is a
// user-visible error, not a silent fallback to another provider.
func NewProvider(client Client, cfg config.LLMConfig) (Provider, error) {
	switch client {
	case Gemini:
		if cfg.Gemini.APIKey == "" {
			return nil, errors.New("gemini api key not set (llm.gemini.api_key or GEMINI_API_KEY)")
		}
		return gemini_provider.NewGeminiClient(
			cfg.Gemini.APIKey,
			cfg.Gemini.Model,
			cfg.Gemini.Temperature,
			cfg.Gemini.Timeout,
		), nil
	case Ollama:
		if !ollama_provider.IsRunning(cfg.Ollama.BaseURL, cfg.Ollama.ProbeTimeout) {
			return nil, errors.New("ollama is not running, start it and try again")
		}
		return ollama_provider.NewOllamaClient(
			cfg.Ollama.BaseURL,
			cfg.Ollama.Model,
			cfg.Ollama.NumCtx,
			cfg.Ollama.Timeout,
		), nil
	default:
		return nil, errors.New("unsupported LLM provider")
	}
}
