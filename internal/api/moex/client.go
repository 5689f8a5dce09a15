package moex

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	httpClient "github.com/Alias1177/MoexSignal/internal/platform/http"
	"github.com/Alias1177/MoexSignal/models"
)

const (
	DefaultBaseURL = "https://iss.moex.com"
	DefaultBoard   = "TQBR"

	issTimeLayout = "2006-01-02 15:04:05"
	issDateLayout = "2006-01-02"

	// hard stop for pagination in case the server keeps returning pages
	maxPages = 200
)

// Moscow time, no DST since 2014
var moscow = time.FixedZone("MSK", 3*60*60)

// Client is the MOEX ISS historical candle client
type Client struct {
	baseURL    string
	board      string
	httpClient *httpClient.Client
	logger     zerolog.Logger
}

// ClientOptions holds options for creating a new MOEX ISS client
type ClientOptions struct {
	BaseURL         string
	Board           string
	RequestTimeout  time.Duration
	RequestsPerSec  int
	MaxRetries      int
	MaxRetryTimeout time.Duration
}

// NewClient creates a new MOEX ISS client
func NewClient(options ClientOptions) *Client {
	if options.BaseURL == "" {
		options.BaseURL = DefaultBaseURL
	}
	if options.Board == "" {
		options.Board = DefaultBoard
	}

	return &Client{
		baseURL: strings.TrimRight(options.BaseURL, "/"),
		board:   options.Board,
		httpClient: httpClient.NewClient(httpClient.ClientOptions{
			Timeout:         options.RequestTimeout,
			RequestsPerSec:  options.RequestsPerSec,
			MaxRetries:      options.MaxRetries,
			MaxRetryTimeout: options.MaxRetryTimeout,
		}),
		logger: log.With().Str("component", "moex_client").Logger(),
	}
}

// FetchCandles loads candles for secid between from and till (inclusive dates),
// following ISS pagination. interval is an ISS interval code: 1, 10, 60, 24, 7 or 31.
func (c *Client) FetchCandles(ctx context.Context, secid string, from, till time.Time, interval string) ([]models.Candle, error) {
	if secid == "" {
		return nil, fmt.Errorf("empty ticker")
	}
	if till.Before(from) {
		return nil, fmt.Errorf("invalid range: till %s before from %s", till.Format(issDateLayout), from.Format(issDateLayout))
	}

	days := int(till.Sub(from).Hours()/24) + 1
	candles := make([]models.Candle, 0, models.CalculateCandlesForHistory(interval, days))

	start := 0
	for page := 0; page < maxPages; page++ {
		body, err := c.httpClient.Get(ctx, c.candlesURL(secid, from, till, interval, start))
		if err != nil {
			return nil, fmt.Errorf("fetching %s candles: %w", secid, err)
		}

		batch, err := ParseCandles(body)
		if err != nil {
			c.logger.Error().Err(err).Str("ticker", secid).Int("start", start).Msg("Error parsing ISS response")
			return nil, fmt.Errorf("parsing %s candles: %w", secid, err)
		}
		if len(batch) == 0 {
			break
		}

		candles = append(candles, batch...)
		start += len(batch)
	}

	// Sort candles by time (oldest first for proper calculations)
	sort.SliceStable(candles, func(i, j int) bool {
		return candles[i].Timestamp.Before(candles[j].Timestamp)
	})

	c.logger.Debug().
		Str("ticker", secid).
		Str("interval", interval).
		Int("count", len(candles)).
		Msg("Fetched candles")

	return candles, nil
}

func (c *Client) candlesURL(secid string, from, till time.Time, interval string, start int) string {
	query := url.Values{}
	query.Set("from", from.In(moscow).Format(issDateLayout))
	query.Set("till", till.In(moscow).Format(issDateLayout))
	query.Set("interval", interval)
	query.Set("start", fmt.Sprint(start))
	query.Set("iss.meta", "off")

	return fmt.Sprintf("%s/iss/engines/stock/markets/shares/boards/%s/securities/%s/candles.json?%s",
		c.baseURL,
		url.PathEscape(c.board),
		url.PathEscape(secid),
		query.Encode(),
	)
}

// ParseCandles decodes the tabular ISS candles block. Columns are looked up
// by name, so their order in the response does not matter.
func ParseCandles(body []byte) ([]models.Candle, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid JSON")
	}

	block := gjson.GetBytes(body, "candles")
	if !block.Exists() {
		return nil, fmt.Errorf("no candles block in response")
	}

	index := make(map[string]int)
	for i, column := range block.Get("columns").Array() {
		index[column.String()] = i
	}
	for _, required := range []string{"open", "close", "high", "low", "begin"} {
		if _, ok := index[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}

	rows := block.Get("data").Array()
	candles := make([]models.Candle, 0, len(rows))
	for n, row := range rows {
		cells := row.Array()
		cell := func(name string) gjson.Result {
			i, ok := index[name]
			if !ok || i >= len(cells) {
				return gjson.Result{}
			}
			return cells[i]
		}

		ts, err := time.ParseInLocation(issTimeLayout, cell("begin").String(), moscow)
		if err != nil {
			return nil, fmt.Errorf("row %d: bad begin time: %w", n, err)
		}

		candles = append(candles, models.Candle{
			Timestamp: ts,
			Open:      cell("open").Float(),
			High:      cell("high").Float(),
			Low:       cell("low").Float(),
			Close:     cell("close").Float(),
			Volume:    cell("volume").Int(),
		})
	}

	return candles, nil
}
