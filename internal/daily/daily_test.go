package daily

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonathan/dream-bridge/internal/astrology"
	"github.com/jonathan/dream-bridge/internal/httpapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func TestHoroscopeClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/get-horoscope/daily", r.URL.Path)
		assert.Equal(t, "Scorpio", r.URL.Query().Get("sign"))
		assert.Equal(t, "2026-10-19", r.URL.Query().Get("day"))
		_, _ = w.Write([]byte(`{"success": true, "status": 200, "data": {"date": "Oct 19, 2026", "horoscope_data": " Trust your intuition. "}}`))
	}))
	defer server.Close()

	client := NewHoroscopeClient(server.URL)
	client.now = func() time.Time { return time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC) }

	text, err := client.Horoscope(context.Background(), astrology.Scorpio, time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "Trust your intuition.", text)
}

func TestHoroscopeClient_Failures(t *testing.T) {
	_, err := NewHoroscopeClient("http://unused").Horoscope(context.Background(), "dragon", time.Now())
	assert.Error(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success": false, "data": {}}`))
	}))
	defer server.Close()
	_, err = NewHoroscopeClient(server.URL).Horoscope(context.Background(), astrology.Leo, time.Now())
	assert.Error(t, err)

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer down.Close()
	_, err = NewHoroscopeClient(down.URL).Horoscope(context.Background(), astrology.Leo, time.Now())
	assert.Equal(t, http.StatusBadGateway, httpapi.StatusCode(err))
}

func TestDayParam(t *testing.T) {
	now := time.Date(2026, 10, 18, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, "TODAY", dayParam(now, now))
	assert.Equal(t, "TODAY", dayParam(time.Time{}, now))
	assert.Equal(t, "2026-10-17", dayParam(now.AddDate(0, 0, -1), now))
}

func TestQuoteClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/today", r.URL.Path)
		_, _ = w.Write([]byte(`[{"q": "Dreams are today's answers to tomorrow's questions.", "a": "Edgar Cayce", "h": "<blockquote>"}]`))
	}))
	defer server.Close()

	quote, err := NewQuoteClient(server.URL).Today(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Edgar Cayce", quote.Author)
	assert.Contains(t, quote.Text, "tomorrow's questions")
}

func TestQuoteClient_Malformed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	_, err := NewQuoteClient(server.URL).Today(context.Background())
	assert.Error(t, err)
}

func TestGoogleTranslator(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "fr", r.URL.Query().Get("target"))
		assert.Equal(t, "en", r.URL.Query().Get("source"))
		assert.Equal(t, "key", r.URL.Query().Get("key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data": {"translations": [{"translatedText": "Fais confiance &amp; avance."}]}}`))
	}))
	defer server.Close()

	translator, err := NewGoogleTranslator(context.Background(), "key", option.WithEndpoint(server.URL+"/"))
	require.NoError(t, err)

	out, err := translator.Translate(context.Background(), "Trust & move on.", "en", "fr")
	require.NoError(t, err)
	assert.Equal(t, "Fais confiance & avance.", out)

	same, err := translator.Translate(context.Background(), "Hello", "en", "en-GB")
	require.NoError(t, err)
	assert.Equal(t, "Hello", same)
}

func TestNewGoogleTranslator_RequiresKey(t *testing.T) {
	_, err := NewGoogleTranslator(context.Background(), "")
	assert.Error(t, err)
}

type stubHoroscopes struct {
	text string
	err  error
	sign astrology.Sign
}

func (s *stubHoroscopes) Horoscope(ctx context.Context, sign astrology.Sign, date time.Time) (string, error) {
	s.sign = sign
	return s.text, s.err
}

type stubQuotes struct {
	quote Quote
	err   error
}

func (s stubQuotes) Today(ctx context.Context) (Quote, error) { return s.quote, s.err }

type upperTranslator struct{ target string }

func (u *upperTranslator) Translate(ctx context.Context, text, source, target string) (string, error) {
	u.target = target
	return "[" + target + "] " + text, nil
}

func TestProvider_Horoscope(t *testing.T) {
	horoscopes := &stubHoroscopes{text: "A bright day."}
	translator := &upperTranslator{}
	p := NewProvider(horoscopes, stubQuotes{}, translator, "fr")

	msg, err := p.DailyMessage(context.Background(), astrology.Leo, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "[fr] A bright day.", msg)
	assert.Equal(t, astrology.Leo, horoscopes.sign)
}

func TestProvider_QuoteWhenNoSign(t *testing.T) {
	p := NewProvider(&stubHoroscopes{}, stubQuotes{quote: Quote{Text: "Keep going.", Author: "Anon"}}, nil, "fr")

	msg, err := p.DailyMessage(context.Background(), "", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "« Keep going. » — Anon", msg)
}

func TestProvider_Errors(t *testing.T) {
	p := NewProvider(&stubHoroscopes{err: errors.New("down")}, stubQuotes{err: errors.New("down")}, nil, "en")

	_, err := p.DailyMessage(context.Background(), astrology.Aries, time.Now())
	assert.Error(t, err)
	_, err = p.DailyMessage(context.Background(), "", time.Now())
	assert.Error(t, err)
}
