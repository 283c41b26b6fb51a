package daily

import (
	"context"
	"fmt"
	"html"
	"strings"

	"google.golang.org/api/option"
	translate "google.golang.org/api/translate/v2"
)

// Translator translates text between ISO-639-1 languages.
type Translator interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
}

// GoogleTranslator uses the Cloud Translation v2 API.
type GoogleTranslator struct {
	service *translate.Service
}

// NewGoogleTranslator creates a translator authenticated with an API key.
// Extra client options (such as an endpoint override) are appended.
func NewGoogleTranslator(ctx context.Context, apiKey string, opts ...option.ClientOption) (*GoogleTranslator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	service, err := translate.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create translation client: %w", err)
	}
	return &GoogleTranslator{service: service}, nil
}

// Translate returns text in the target language. Same-language requests are returned unchanged.
func (t *GoogleTranslator) Translate(ctx context.Context, text, source, target string) (string, error) {
	if sameLanguage(source, target) || strings.TrimSpace(text) == "" {
		return text, nil
	}

	call := t.service.Translations.List([]string{text}, target).Format("text").Context(ctx)
	if source != "" {
		call = call.Source(source)
	}
	resp, err := call.Do()
	if err != nil {
		return "", fmt.Errorf("failed to translate: %w", err)
	}
	if len(resp.Translations) == 0 {
		return "", fmt.Errorf("no translation in response")
	}
	return html.UnescapeString(resp.Translations[0].TranslatedText), nil
}

// NoopTranslator returns text unchanged. It is used when no translation key is configured.
type NoopTranslator struct{}

// Translate returns text unchanged.
func (NoopTranslator) Translate(_ context.Context, text, _, _ string) (string, error) {
	return text, nil
}

func sameLanguage(source, target string) bool {
	base := func(s string) string {
		s = strings.ToLower(strings.TrimSpace(s))
		b, _, _ := strings.Cut(s, "-")
		return b
	}
	return base(source) == base(target)
}
