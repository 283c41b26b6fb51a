package daily

import (
	"context"
	"fmt"
	"time"

	"github.com/jonathan/dream-bridge/internal/astrology"
	"github.com/jonathan/dream-bridge/internal/prompts"
)

// sourceLanguage is the language both upstream APIs answer in.
const sourceLanguage = "en"

// HoroscopeSource fetches a horoscope.
type HoroscopeSource interface {
	Horoscope(ctx context.Context, sign astrology.Sign, date time.Time) (string, error)
}

// QuoteSource fetches the quote of the day.
type QuoteSource interface {
	Today(ctx context.Context) (Quote, error)
}

// Provider composes horoscope, quote and translation into the daily message.
type Provider struct {
	horoscopes HoroscopeSource
	quotes     QuoteSource
	translator Translator
	language   string
}

// NewProvider creates a daily message provider answering in language.
// A nil translator leaves upstream text untranslated.
func NewProvider(horoscopes HoroscopeSource, quotes QuoteSource, translator Translator, language string) *Provider {
	if translator == nil {
		translator = NoopTranslator{}
	}
	return &Provider{horoscopes: horoscopes, quotes: quotes, translator: translator, language: language}
}

// DailyMessage returns the translated horoscope for sign, or the formatted
// quote of the day when sign is empty.
func (p *Provider) DailyMessage(ctx context.Context, sign astrology.Sign, date time.Time) (string, error) {
	if sign != "" {
		text, err := p.horoscopes.Horoscope(ctx, sign, date)
		if err != nil {
			return "", fmt.Errorf("failed to fetch horoscope: %w", err)
		}
		translated, err := p.translator.Translate(ctx, text, sourceLanguage, p.language)
		if err != nil {
			return "", err
		}
		return translated, nil
	}

	quote, err := p.quotes.Today(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to fetch quote: %w", err)
	}
	translated, err := p.translator.Translate(ctx, quote.Text, sourceLanguage, p.language)
	if err != nil {
		return "", err
	}
	return prompts.Render(prompts.MessagesFile, "quote", p.language, map[string]string{
		"Quote":  translated,
		"Author": quote.Author,
	}), nil
}
