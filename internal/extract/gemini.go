package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

// GeminiService implements Service with the Google GenAI SDK. PDFs and
// images are sent inline next to the prompt.
type GeminiService struct {
	client      *genai.Client
	model       string
	temperature float32
}

// GeminiOption configures the Gemini service.
type GeminiOption func(*GeminiService)

// WithGeminiModel sets the model name.
func WithGeminiModel(model string) GeminiOption {
	return func(s *GeminiService) { s.model = model }
}

// NewGeminiService creates a Gemini-backed Service.
func NewGeminiService(ctx context.Context, apiKey string, opts ...GeminiOption) (*GeminiService, error) {
	if apiKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	s := &GeminiService{client: client, model: "gemini-2.0-flash", temperature: 0.1}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Analyze sends the prompt for kind together with files and returns the JSON
// object from the response. It retries once with backoff on transient failures.
func (s *GeminiService) Analyze(ctx context.Context, kind Kind, files []File) (json.RawMessage, error) {
	parts := []*genai.Part{genai.NewPartFromText(promptFor(kind))}
	for _, f := range files {
		if strings.HasPrefix(f.MIMEType, "text/") {
			parts = append(parts, genai.NewPartFromText("File "+f.Name+":\n"+string(f.Data)))
			continue
		}
		parts = append(parts, genai.NewPartFromBytes(f.Data, f.MIMEType))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	cfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(s.temperature),
		ResponseMIMEType: "application/json",
	}

	const maxAttempts = 2
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		resp, err := s.client.Models.GenerateContent(ctx, s.model, contents, cfg)
		if err == nil {
			text := cleanJSON(resp.Text())
			if !json.Valid([]byte(text)) {
				return nil, fmt.Errorf("gemini: response is not JSON")
			}
			return json.RawMessage(text), nil
		}
		lastErr = err

		var ae genai.APIError
		if errors.As(err, &ae) && !(ae.Code == http.StatusTooManyRequests || ae.Code >= http.StatusInternalServerError) {
			return nil, fmt.Errorf("gemini: %w", err)
		}

		if attempt < maxAttempts-1 {
			backoff := time.Duration(attempt+1) * 2 * time.Second
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return nil, fmt.Errorf("gemini: %w", lastErr)
}
