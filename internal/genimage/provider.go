package genimage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Provider issues one image-generation request and returns an image URL.
type Provider interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ProviderError marks a failure of the external generation API. It never
// escapes the queue: the queue retries and finally falls back.
type ProviderError struct {
	Msg string
}

func (e *ProviderError) Error() string { return "provider: " + e.Msg }

type OpenAIProvider struct {
	BaseURL string
	APIKey  string
	Model   string
	Size    string
	Client  *http.Client
}

func NewOpenAIProvider(baseURL, apiKey, model, size string, timeout time.Duration) *OpenAIProvider {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "dall-e-3"
	}
	if size == "" {
		size = "1024x1024"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIProvider{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   model,
		Size:    size,
		Client:  &http.Client{Timeout: timeout},
	}
}

type imageGenReq struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	N      int    `json:"n"`
	Size   string `json:"size"`
}

type imageGenResp struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (p *OpenAIProvider) Generate(ctx context.Context, prompt string) (string, error) {
	if p.Client == nil {
		return "", errors.New("openai: http client is nil")
	}

	b, err := json.Marshal(imageGenReq{
		Model:  p.Model,
		Prompt: prompt,
		N:      1,
		Size:   p.Size,
	})
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/images/generations", p.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.APIKey)
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return "", &ProviderError{Msg: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &ProviderError{Msg: err.Error()}
	}

	var out imageGenResp
	if err := json.Unmarshal(body, &out); err != nil {
		return "", &ProviderError{Msg: fmt.Sprintf("bad response (status %d)", resp.StatusCode)}
	}
	if out.Error != nil {
		return "", &ProviderError{Msg: out.Error.Message}
	}
	if resp.StatusCode != http.StatusOK || len(out.Data) == 0 || out.Data[0].URL == "" {
		return "", &ProviderError{Msg: fmt.Sprintf("no image in response (status %d)", resp.StatusCode)}
	}
	return out.Data[0].URL, nil
}

const fallbackMaxText = 60

// FallbackURL builds a deterministic placeholder image reference from the
// prompt text. Used when the provider cannot produce a real result.
func FallbackURL(prompt string) string {
	text := prompt
	if len(text) > fallbackMaxText {
		text = text[:fallbackMaxText]
	}
	return "https://placehold.co/1024x1024/png?text=" + url.QueryEscape(text)
}
