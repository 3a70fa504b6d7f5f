package content

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2/google"
)

const (
	geminiBaseURL      = "https://generativelanguage.googleapis.com/v1beta"
	geminiDefaultModel = "gemini-1.5-pro"
	geminiScope        = "https://www.googleapis.com/auth/generative-language"
)

var ErrEmptyResponse = errors.New("gemini returned no text")

// GeminiBackend calls the Gemini generateContent REST endpoint.
type GeminiBackend struct {
	client  *http.Client
	apiKey  string
	model   string
	baseURL string
}

type GeminiConfig struct {
	APIKey string
	Model  string
	// UseADC authenticates with Google Application Default Credentials
	// instead of an API key.
	UseADC  bool
	BaseURL string
	Client  *http.Client
}

func NewGeminiBackend(ctx context.Context, cfg GeminiConfig) (*GeminiBackend, error) {
	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}

	if cfg.UseADC {
		adc, err := google.DefaultClient(ctx, geminiScope)
		if err != nil {
			return nil, fmt.Errorf("failed to load application default credentials: %w", err)
		}
		client = adc
	} else if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini requires an API key or application default credentials")
	}

	model := cfg.Model
	if model == "" {
		model = geminiDefaultModel
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = geminiBaseURL
	}

	return &GeminiBackend{
		client:  client,
		apiKey:  cfg.APIKey,
		model:   model,
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopK            int     `json:"topK"`
	TopP            float64 `json:"topP"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (b *GeminiBackend) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     0.7,
			TopK:            40,
			TopP:            0.95,
			MaxOutputTokens: 1024,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", b.baseURL, b.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		req.Header.Set("x-goog-api-key", b.apiKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read gemini response: %w", err)
	}

	var decoded geminiResponse
	err = json.Unmarshal(payload, &decoded)

	if resp.StatusCode != http.StatusOK {
		if err == nil && decoded.Error != nil {
			return "", fmt.Errorf("gemini api error %d: %s", decoded.Error.Code, decoded.Error.Message)
		}
		return "", fmt.Errorf("gemini api error: %s", resp.Status)
	}
	if err != nil {
		return "", fmt.Errorf("decode gemini response: %w", err)
	}

	if len(decoded.Candidates) == 0 {
		return "", ErrEmptyResponse
	}

	var text strings.Builder
	for _, part := range decoded.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}
	if strings.TrimSpace(text.String()) == "" {
		return "", ErrEmptyResponse
	}

	return text.String(), nil
}

// NopBackend is used when no generative backend is configured. Every reminder
// then uses the fallback templates.
type NopBackend struct{}

func (NopBackend) Generate(context.Context, string) (string, error) {
	return "", ErrNoBackend
}
