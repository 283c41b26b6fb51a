// Package imagegen renders image prompts through an OpenAI-compatible
// /images/generations endpoint.
package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jonathan/dream-bridge/internal/httpapi"
)

// Defaults for the hosted OpenAI image API.
const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "dall-e-3"
	DefaultSize    = "1024x1024"
)

// maxImageBytes bounds downloads of URL-returned images.
const maxImageBytes = 20 << 20

// Options configures a Client.
type Options struct {
	APIKey  string
	BaseURL string
	Model   string
	Size    string
}

// Client generates one image per call. It does not retry.
type Client struct {
	opts       Options
	httpClient *http.Client
}

// NewClient creates an image client, filling defaults for empty options.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.Size == "" {
		opts.Size = DefaultSize
	}
	return &Client{opts: opts, httpClient: &http.Client{Timeout: 3 * time.Minute}}
}

type generationRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size"`
	ResponseFormat string `json:"response_format,omitempty"`
}

type generationResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
		URL     string `json:"url"`
	} `json:"data"`
}

// GenerateImage returns the encoded bytes of one generated image.
func (c *Client) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	body := generationRequest{Model: c.opts.Model, Prompt: prompt, N: 1, Size: c.opts.Size}
	// gpt-image models always answer in base64 and reject the field.
	if strings.HasPrefix(c.opts.Model, "dall-e") {
		body.ResponseFormat = "b64_json"
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+"/images/generations", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if err := httpapi.CheckResponse("images", resp); err != nil {
		return nil, err
	}

	var decoded generationResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(decoded.Data) == 0 {
		return nil, fmt.Errorf("no image in response")
	}

	var image []byte
	switch item := decoded.Data[0]; {
	case item.B64JSON != "":
		image, err = base64.StdEncoding.DecodeString(item.B64JSON)
		if err != nil {
			return nil, fmt.Errorf("decoding image: %w", err)
		}
	case item.URL != "":
		image, err = c.download(ctx, item.URL)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("no image in response")
	}

	if ct := http.DetectContentType(image); !strings.HasPrefix(ct, "image/") {
		return nil, fmt.Errorf("provider returned %s instead of an image", ct)
	}
	return image, nil
}

func (c *Client) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating download request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading image: %w", err)
	}
	defer resp.Body.Close()

	if err := httpapi.CheckResponse("images", resp); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", maxImageBytes)
	}
	return data, nil
}
