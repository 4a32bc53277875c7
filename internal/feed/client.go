// Package feed клиент фида коэффициентов. Один запрос на обновление,
// без состояния. Записи нормализуются в models.Match на входе,
// битые записи пропускаются с предупреждением.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/magabrotheeeer/odds-notifier/internal/models"
)

const (
	// DefaultBaseURL адрес коэффициентов по футболу.
	DefaultBaseURL = "https://api.the-odds-api.com/v4/sports/soccer/odds"

	defaultTimeout   = 10 * time.Second
	defaultRateLimit = 1.0
	defaultBurst     = 1

	marketHeadToHead = "h2h"
	outcomeDraw      = "Draw"
)

// Client клиент фида.
type Client struct {
	baseURL    string
	apiKey     string
	regions    string
	markets    string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *slog.Logger
}

// ClientOption настраивает клиента.
type ClientOption func(*Client)

// WithBaseURL задаёт адрес фида.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		c.baseURL = u
	}
}

// WithHTTPClient подменяет HTTP-клиент.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout задаёт таймаут одного запроса.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRateLimit ограничивает частоту запросов.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRegions задаёт регионы букмекеров.
func WithRegions(regions string) ClientOption {
	return func(c *Client) {
		c.regions = regions
	}
}

// WithMarkets задаёт рынки.
func WithMarkets(markets string) ClientOption {
	return func(c *Client) {
		c.markets = markets
	}
}

// NewClient создаёт клиента фида.
func NewClient(apiKey string, log *slog.Logger, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		regions:    "eu",
		markets:    marketHeadToHead,
		httpClient: &http.Client{Timeout: defaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
		log:        log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchMatches запрашивает снимок предстоящих матчей.
// Любая ошибка запроса или разбора всего ответа оборачивает ErrUpstreamUnavailable.
func (c *Client) FetchMatches(ctx context.Context) ([]models.Match, error) {
	const op = "feed.FetchMatches"

	params := url.Values{}
	params.Set("apiKey", c.apiKey)
	params.Set("regions", c.regions)
	params.Set("markets", c.markets)
	params.Set("dateFormat", "iso")

	var events []json.RawMessage
	if err := c.get(ctx, params, &events); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, models.ErrUpstreamUnavailable, err)
	}

	matches := make([]models.Match, 0, len(events))
	for i, raw := range events {
		m, err := normalize(raw)
		if err != nil {
			c.log.Warn("skip malformed feed record",
				slog.String("op", op),
				slog.Int("index", i),
				slog.String("reason", err.Error()),
			)
			continue
		}
		matches = append(matches, m)
	}
	return matches, nil
}

func (c *Client) get(ctx context.Context, params url.Values, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("api error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func normalize(raw json.RawMessage) (models.Match, error) {
	var ev rawEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return models.Match{}, err
	}
	if ev.ID == "" {
		return models.Match{}, errors.New("missing id")
	}
	if ev.HomeTeam == "" || ev.AwayTeam == "" {
		return models.Match{}, errors.New("missing team names")
	}
	kickoff, err := time.Parse(time.RFC3339, ev.CommenceTime)
	if err != nil {
		return models.Match{}, fmt.Errorf("commence_time: %w", err)
	}

	competition := ev.SportTitle
	if competition == "" {
		competition = ev.SportKey
	}

	return models.Match{
		ID:          ev.ID,
		HomeTeam:    ev.HomeTeam,
		AwayTeam:    ev.AwayTeam,
		Competition: competition,
		Kickoff:     kickoff.UTC(),
		Odds:        headToHead(ev),
	}, nil
}

// headToHead берёт рынок h2h первого букмекера. Цены сопоставляются
// по названию исхода. Несопоставленная сторона берётся по порядку из
// оставшихся исходов, кроме ничьей.
func headToHead(ev rawEvent) models.Odds {
	if len(ev.Bookmakers) == 0 {
		return models.Odds{}
	}
	for _, market := range ev.Bookmakers[0].Markets {
		if market.Key != marketHeadToHead {
			continue
		}
		var odds models.Odds
		for _, o := range market.Outcomes {
			switch o.Name {
			case ev.HomeTeam:
				odds.Home = o.Price
			case ev.AwayTeam:
				odds.Away = o.Price
			case outcomeDraw:
				odds.Draw = o.Price
				odds.HasDraw = true
			}
		}
		if odds.Home == 0 || odds.Away == 0 {
			var rest []float64
			for _, o := range market.Outcomes {
				if o.Name != outcomeDraw && o.Name != ev.HomeTeam && o.Name != ev.AwayTeam {
					rest = append(rest, o.Price)
				}
			}
			if odds.Home == 0 && len(rest) > 0 {
				odds.Home, rest = rest[0], rest[1:]
			}
			if odds.Away == 0 && len(rest) > 0 {
				odds.Away = rest[0]
			}
		}
		return odds
	}
	return models.Odds{}
}
