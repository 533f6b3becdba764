package summarizer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/genai"

	"github.com/JakeFAU/cityscope-ingest/internal/policy/retry"
)

// Generator sends one prompt to the generative-text service and returns the raw text reply.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeminiConfig configures the Gemini backend.
type GeminiConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float32
	Timeout     time.Duration
	HTTPClient  *http.Client
}

// Gemini implements Generator on top of google.golang.org/genai.
type Gemini struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	config  *genai.GenerateContentConfig
}

// NewGemini constructs a Gemini generator.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" || cfg.Model == "" {
		return nil, errors.New("gemini api key and model are required")
	}
	clientCfg := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Gemini{
		client:  client,
		model:   cfg.Model,
		timeout: cfg.Timeout,
		config: &genai.GenerateContentConfig{
			Temperature:      genai.Ptr(cfg.Temperature),
			ResponseMIMEType: "application/json",
			ResponseSchema:   responseSchema(),
		},
	}, nil
}

func responseSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"title":   {Type: genai.TypeString, Description: "Meeting name as printed in the document"},
			"date":    {Type: genai.TypeString, Description: "Meeting date, YYYY-MM-DD"},
			"summary": {Type: genai.TypeString, Description: "Overview sentence followed by resident-impact bullets"},
		},
		Required:         []string{"title", "date", "summary"},
		PropertyOrdering: []string{"title", "date", "summary"},
	}
}

// Generate issues a single generateContent call.
func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), g.config)
	if err != nil {
		return "", classify(fmt.Errorf("gemini generate: %w", err))
	}
	text := resp.Text()
	if text == "" {
		return "", errors.New("gemini response has no text")
	}
	return text, nil
}

// classify marks client errors other than throttling and timeouts as permanent.
func classify(err error) error {
	code := 0
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.Code
	case errors.As(err, &apiErrPtr):
		code = apiErrPtr.Code
	}
	if code >= 400 && code < 500 && code != http.StatusTooManyRequests && code != http.StatusRequestTimeout {
		return retry.Permanent(err)
	}
	return err
}
