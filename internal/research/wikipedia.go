// Package research fetches reference material for the researcher agent.
package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"agentarium/internal/agent"
	"agentarium/internal/llm/providers/shared"
	"agentarium/internal/llm/providers/transport"
)

// ErrNoResults is returned when a search finds no page.
var ErrNoResults = errors.New("wikipedia: no results")

// Config configures the Wikipedia client.
type Config struct {
	// Language selects the wiki, e.g. "en" for en.wikipedia.org.
	Language string
	// BaseURL overrides the api.php endpoint; used by tests.
	BaseURL    string
	Sentences  int
	UserAgent  string
	HTTPClient *http.Client
	// RPS caps outgoing requests; <= 0 means 1 request per second.
	RPS float64
}

// Wikipedia looks up the problem statement on Wikipedia and returns the
// intro of the best matching page as the "reference" field.
type Wikipedia struct {
	endpoint  string
	sentences int
	userAgent string
	client    *http.Client
	limiter   *transport.Limiter
	logger    zerolog.Logger
}

// NewWikipedia creates a Wikipedia enricher.
func NewWikipedia(cfg Config, logger zerolog.Logger) *Wikipedia {
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = fmt.Sprintf("https://%s.wikipedia.org/w/api.php", cfg.Language)
	}
	if cfg.Sentences <= 0 {
		cfg.Sentences = 5
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "agentarium/1.0 (research enricher)"
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = transport.NewHTTPClient(shared.ClientOptions{Timeout: 10 * time.Second})
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 1
	}

	return &Wikipedia{
		endpoint:  cfg.BaseURL,
		sentences: cfg.Sentences,
		userAgent: cfg.UserAgent,
		client:    cfg.HTTPClient,
		limiter:   transport.NewLimiter(cfg.RPS, 2),
		logger:    logger.With().Str("component", "wikipedia").Logger(),
	}
}

// Enrich implements agent.Enricher.
func (w *Wikipedia) Enrich(ctx context.Context, fields agent.Fields) (agent.Fields, error) {
	query := fields[agent.FieldProblem]
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	title, extract, err := w.Lookup(ctx, query)
	if err != nil {
		return nil, err
	}
	w.logger.Debug().Str("title", title).Int("chars", len(extract)).Msg("Found reference page")

	return agent.Fields{agent.FieldReference: fmt.Sprintf("%s: %s", title, extract)}, nil
}

// Lookup searches for query and returns the top page title and its intro.
func (w *Wikipedia) Lookup(ctx context.Context, query string) (string, string, error) {
	var search struct {
		Query struct {
			Search []struct {
				Title string `json:"title"`
			} `json:"search"`
		} `json:"query"`
	}
	err := w.get(ctx, url.Values{
		"action":   {"query"},
		"list":     {"search"},
		"srsearch": {query},
		"srlimit":  {"1"},
	}, &search)
	if err != nil {
		return "", "", err
	}
	if len(search.Query.Search) == 0 {
		return "", "", ErrNoResults
	}
	title := search.Query.Search[0].Title

	var pages struct {
		Query struct {
			Pages []struct {
				Title   string `json:"title"`
				Extract string `json:"extract"`
				Missing bool   `json:"missing"`
			} `json:"pages"`
		} `json:"query"`
	}
	err = w.get(ctx, url.Values{
		"action":      {"query"},
		"prop":        {"extracts"},
		"exintro":     {"1"},
		"explaintext": {"1"},
		"exsentences": {strconv.Itoa(w.sentences)},
		"redirects":   {"1"},
		"titles":      {title},
	}, &pages)
	if err != nil {
		return "", "", err
	}
	if len(pages.Query.Pages) == 0 || pages.Query.Pages[0].Missing {
		return "", "", ErrNoResults
	}

	page := pages.Query.Pages[0]
	return page.Title, strings.TrimSpace(page.Extract), nil
}

func (w *Wikipedia) get(ctx context.Context, params url.Values, out any) error {
	if err := w.limiter.Wait(ctx); err != nil {
		return err
	}

	params.Set("format", "json")
	params.Set("formatversion", "2")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", w.userAgent)

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("wikipedia request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("wikipedia http %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode wikipedia response: %w", err)
	}
	return nil
}
