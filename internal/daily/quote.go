package daily

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jonathan/dream-bridge/internal/schemas"
)

// DefaultQuoteURL is the quote-of-the-day API root.
const DefaultQuoteURL = "https://zenquotes.io/api"

// Quote is one quotation and its author.
type Quote struct {
	Text   string
	Author string
}

// QuoteClient fetches the quote of the day. The API only serves today's quote.
type QuoteClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewQuoteClient creates a client for baseURL, or the public API when empty.
func NewQuoteClient(baseURL string) *QuoteClient {
	if baseURL == "" {
		baseURL = DefaultQuoteURL
	}
	return &QuoteClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Today returns the quote of the day.
func (c *QuoteClient) Today(ctx context.Context) (Quote, error) {
	body, err := getJSON(ctx, c.httpClient, "quote", c.baseURL+"/today")
	if err != nil {
		return Quote{}, err
	}
	if err := schemas.Validate(schemas.QuoteResponse, string(body)); err != nil {
		return Quote{}, fmt.Errorf("unexpected quote response: %w", err)
	}

	var decoded []struct {
		Q string `json:"q"`
		A string `json:"a"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return Quote{}, fmt.Errorf("decoding quote: %w", err)
	}
	return Quote{Text: strings.TrimSpace(decoded[0].Q), Author: strings.TrimSpace(decoded[0].A)}, nil
}
