package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/loomlabs/loom/internal/log"
)

// Config carries provider credentials and gateway tuning.
type Config struct {
	OpenAIAPIKey    string
	AnthropicAPIKey string
	GoogleAPIKey    string
	OllamaHost      string

	Temperature float32

	// RateLimitRPS/RateLimitBurst bound outbound completion calls across
	// all providers. Zero values disable limiting.
	RateLimitRPS   float64
	RateLimitBurst int
}

// client is the per-provider completion surface.
type client interface {
	complete(ctx context.Context, req Request) (*Response, error)
}

// embedder is the per-provider embedding surface.
type embedder interface {
	embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// Gateway routes completion and embedding requests to provider clients.
// Clients are constructed lazily and cached per provider:model pair.
// Safe for concurrent use.
type Gateway struct {
	cfg     Config
	logger  log.Logger
	limiter *rate.Limiter

	mu        sync.Mutex
	clients   map[string]client
	embedders map[string]embedder
}

// NewGateway creates a gateway. No provider connections are made until the
// first request names a model.
func NewGateway(cfg Config, logger log.Logger) *Gateway {
	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		burst := cfg.RateLimitBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst)
	}
	return &Gateway{
		cfg:       cfg,
		logger:    logger,
		limiter:   limiter,
		clients:   make(map[string]client),
		embedders: make(map[string]embedder),
	}
}

// SplitModel splits a provider-qualified model name at the first slash.
// Model names may themselves contain slashes ("ollama/library/llama3").
func SplitModel(model string) (provider, name string, err error) {
	provider, name, ok := strings.Cut(model, "/")
	if !ok || provider == "" || name == "" {
		return "", "", fmt.Errorf("%w: %q must be \"provider/model-name\"", ErrInvalidModelFormat, model)
	}
	return provider, name, nil
}

// Complete sends one completion request to the model named in req.
//
// In JSON mode the response carries an extracted JSON document; extraction
// degrades to "{}" rather than failing on malformed output.
func (g *Gateway) Complete(ctx context.Context, req Request) (*Response, error) {
	c, err := g.clientFor(req.Model)
	if err != nil {
		return nil, err
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}

	resp, err := c.complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCompletionFailed, req.Model, err)
	}

	if req.JSONMode {
		resp.JSON = ExtractJSON(resp.Content)
		if string(resp.JSON) == emptyObject && strings.TrimSpace(resp.Content) != emptyObject {
			g.logger.Warn("no JSON found in model output, falling back to empty object",
				"model", req.Model, "content_length", len(resp.Content))
		}
	}
	return resp, nil
}

// Embed produces one embedding vector per input, in order.
func (g *Gateway) Embed(ctx context.Context, model string, inputs []string) ([][]float32, error) {
	e, err := g.embedderFor(ctx, model)
	if err != nil {
		return nil, err
	}
	return e.embed(ctx, inputs)
}

func (g *Gateway) clientFor(model string) (client, error) {
	provider, name, err := SplitModel(model)
	if err != nil {
		return nil, err
	}

	key := provider + ":" + name
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.clients[key]; ok {
		return c, nil
	}

	var c client
	switch provider {
	case "openai":
		c, err = newOpenAIClient(g.cfg.OpenAIAPIKey, name, g.cfg.Temperature)
	case "anthropic":
		c, err = newAnthropicClient(g.cfg.AnthropicAPIKey, name, g.cfg.Temperature)
	case "ollama":
		c, err = newOllamaClient(g.cfg.OllamaHost, name)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, provider)
	}
	if err != nil {
		return nil, err
	}

	g.clients[key] = c
	g.logger.Debug("model client created", "provider", provider, "model", name)
	return c, nil
}

func (g *Gateway) embedderFor(ctx context.Context, model string) (embedder, error) {
	provider, name, err := SplitModel(model)
	if err != nil {
		return nil, err
	}

	key := provider + ":" + name
	g.mu.Lock()
	defer g.mu.Unlock()
	if e, ok := g.embedders[key]; ok {
		return e, nil
	}

	var e embedder
	switch provider {
	case "openai":
		e, err = newOpenAIEmbedder(g.cfg.OpenAIAPIKey, name)
	case "googleai":
		e, err = newGoogleEmbedder(ctx, g.cfg.GoogleAPIKey, name)
	default:
		return nil, fmt.Errorf("%w: %q has no embedding support", ErrUnsupportedProvider, provider)
	}
	if err != nil {
		return nil, err
	}

	g.embedders[key] = e
	return e, nil
}
