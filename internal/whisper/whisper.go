// Package whisper transcribes audio through an OpenAI-compatible
// /audio/transcriptions endpoint (OpenAI, Groq).
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/jonathan/dream-bridge/internal/httpapi"
)

// Defaults target Groq's hosted Whisper.
const (
	DefaultBaseURL = "https://api.groq.com/openai/v1"
	DefaultModel   = "whisper-large-v3"
)

// Client calls the transcription endpoint. It does not retry; callers wrap it.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewClient creates a transcription client. Empty baseURL or model use the defaults.
func NewClient(apiKey, baseURL, model string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe uploads audio and returns the recognized text. language is an
// ISO-639-1 hint and may be empty.
func (c *Client) Transcribe(ctx context.Context, audio []byte, language string) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("audio is empty")
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "dream"+audioExtension(audio))
	if err != nil {
		return "", fmt.Errorf("creating form file: %w", err)
	}
	if _, err = part.Write(audio); err != nil {
		return "", fmt.Errorf("writing audio: %w", err)
	}
	if err = writer.WriteField("model", c.model); err != nil {
		return "", fmt.Errorf("writing model field: %w", err)
	}
	if language != "" {
		if err = writer.WriteField("language", language); err != nil {
			return "", fmt.Errorf("writing language field: %w", err)
		}
	}
	if err = writer.WriteField("response_format", "json"); err != nil {
		return "", fmt.Errorf("writing format field: %w", err)
	}
	if err = writer.Close(); err != nil {
		return "", fmt.Errorf("closing writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", body)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if err := httpapi.CheckResponse("whisper", resp); err != nil {
		return "", err
	}

	var result transcriptionResponse
	if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	return strings.TrimSpace(result.Text), nil
}

// audioExtension sniffs the container so the provider can pick a decoder.
func audioExtension(audio []byte) string {
	switch ct := http.DetectContentType(audio); {
	case strings.Contains(ct, "wav"):
		return ".wav"
	case strings.Contains(ct, "ogg"):
		return ".ogg"
	case strings.Contains(ct, "mpeg"):
		return ".mp3"
	case strings.Contains(ct, "webm"):
		return ".webm"
	case bytes.HasPrefix(audio, []byte("fLaC")):
		return ".flac"
	case len(audio) > 8 && bytes.Equal(audio[4:8], []byte("ftyp")):
		return ".m4a"
	default:
		return ".wav"
	}
}
