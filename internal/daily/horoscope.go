// Package daily fetches the daily message shown to users: a horoscope for
// those who follow astrology, otherwise the quote of the day, translated to
// the configured language.
package daily

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jonathan/dream-bridge/internal/astrology"
	"github.com/jonathan/dream-bridge/internal/httpapi"
	"github.com/jonathan/dream-bridge/internal/schemas"
)

// DefaultHoroscopeURL is the public horoscope API root.
const DefaultHoroscopeURL = "https://horoscope-app-api.vercel.app/api/v1"

// maxReplyBytes bounds provider reply bodies.
const maxReplyBytes = 1 << 20

// HoroscopeClient fetches English daily horoscopes.
type HoroscopeClient struct {
	baseURL    string
	httpClient *http.Client
	now        func() time.Time
}

// NewHoroscopeClient creates a client for baseURL, or the public API when empty.
func NewHoroscopeClient(baseURL string) *HoroscopeClient {
	if baseURL == "" {
		baseURL = DefaultHoroscopeURL
	}
	return &HoroscopeClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
	}
}

type horoscopeResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Date          string `json:"date"`
		HoroscopeData string `json:"horoscope_data"`
	} `json:"data"`
}

// Horoscope returns the horoscope text for sign on date.
func (c *HoroscopeClient) Horoscope(ctx context.Context, sign astrology.Sign, date time.Time) (string, error) {
	if !sign.Valid() {
		return "", fmt.Errorf("unknown sign %q", sign)
	}

	q := url.Values{}
	q.Set("sign", sign.Title())
	q.Set("day", dayParam(date, c.now()))

	body, err := getJSON(ctx, c.httpClient, "horoscope", c.baseURL+"/get-horoscope/daily?"+q.Encode())
	if err != nil {
		return "", err
	}
	if err := schemas.Validate(schemas.HoroscopeResponse, string(body)); err != nil {
		return "", fmt.Errorf("unexpected horoscope response: %w", err)
	}

	var decoded horoscopeResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("decoding horoscope: %w", err)
	}
	return strings.TrimSpace(decoded.Data.HoroscopeData), nil
}

// dayParam uses the API's TODAY keyword for the current day and an ISO date otherwise.
func dayParam(date, now time.Time) string {
	if date.IsZero() {
		return "TODAY"
	}
	if date.Format("2006-01-02") == now.Format("2006-01-02") {
		return "TODAY"
	}
	return date.Format("2006-01-02")
}

func getJSON(ctx context.Context, client *http.Client, provider, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending %s request: %w", provider, err)
	}
	defer resp.Body.Close()

	if err := httpapi.CheckResponse(provider, resp); err != nil {
		return nil, err
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", provider, err)
	}
	return body, nil
}
