package extract

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OpenAIVisionService implements Service using the Chat Completions API with
// image inputs. It also works with any OpenAI-compatible service by setting
// a custom base URL. PDFs are not supported and return an error.
type OpenAIVisionService struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	backoff    time.Duration
}

// OpenAIOption configures the OpenAI service.
type OpenAIOption func(*OpenAIVisionService)

// WithModel sets the model name (default: gpt-4o-mini).
func WithModel(model string) OpenAIOption {
	return func(c *OpenAIVisionService) { c.model = model }
}

// WithBaseURL overrides the API endpoint (default: https://api.openai.com/v1).
func WithBaseURL(url string) OpenAIOption {
	return func(c *OpenAIVisionService) { c.baseURL = strings.TrimRight(url, "/") }
}

// WithHTTPTimeout sets the per-request timeout.
func WithHTTPTimeout(d time.Duration) OpenAIOption {
	return func(c *OpenAIVisionService) { c.httpClient.Timeout = d }
}

// NewOpenAIVisionService creates a new OpenAI-backed Service.
func NewOpenAIVisionService(apiKey string, opts ...OpenAIOption) *OpenAIVisionService {
	c := &OpenAIVisionService{
		apiKey:  apiKey,
		baseURL: "https://api.openai.com/v1",
		model:   "gpt-4o-mini",
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		backoff: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// apiError represents an error from the API that may or may not be retryable.
type apiError struct {
	StatusCode int
	Body       string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// isRetryable returns true for transient errors (rate limit, server errors).
func (e *apiError) isRetryable() bool {
	return e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= http.StatusInternalServerError
}

// Analyze sends the prompt and files and returns the JSON object from the
// response. It retries once with backoff on transient failures.
func (c *OpenAIVisionService) Analyze(ctx context.Context, kind Kind, files []File) (json.RawMessage, error) {
	parts := []contentPart{{Type: "text", Text: promptFor(kind)}}
	for _, f := range files {
		switch {
		case strings.HasPrefix(f.MIMEType, "image/"):
			uri := "data:" + f.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(f.Data)
			parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: uri}})
		case strings.HasPrefix(f.MIMEType, "text/"):
			parts = append(parts, contentPart{Type: "text", Text: "File " + f.Name + ":\n" + string(f.Data)})
		default:
			return nil, fmt.Errorf("openai: unsupported input %s (%s)", f.Name, f.MIMEType)
		}
	}

	body, err := json.Marshal(chatRequest{
		Model:          c.model,
		Messages:       []chatMessage{{Role: "user", Content: parts}},
		Temperature:    0.1,
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	const maxAttempts = 2
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		result, err := c.doRequest(ctx, body)
		if err == nil {
			text := cleanJSON(result)
			if !json.Valid([]byte(text)) {
				return nil, errors.New("openai: response is not JSON")
			}
			return json.RawMessage(text), nil
		}
		lastErr = err

		// Only retry on transient/retryable errors.
		var ae *apiError
		if errors.As(err, &ae) && !ae.isRetryable() {
			return nil, fmt.Errorf("openai: %w", err)
		}

		if attempt < maxAttempts-1 {
			backoff := time.Duration(attempt+1) * c.backoff
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return nil, fmt.Errorf("openai: %w", lastErr)
}

func (c *OpenAIVisionService) doRequest(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &apiError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if chatResp.Error != nil {
		return "", fmt.Errorf("api error: %s", chatResp.Error.Message)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return chatResp.Choices[0].Message.Content, nil
}
