package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"marketviz/internal/config"
	apperrors "marketviz/internal/errors"
	"marketviz/pkg/contracts/domain"
)

// browserUserAgent is sent with every chart request; the public chart
// endpoint rejects clients without a browser-looking UA.
const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// ChartClient fetches daily OHLCV series from a Yahoo-style v8 chart
// endpoint: epoch timestamps plus parallel quote arrays, with nulls on
// holidays. Requests rotate across the configured hosts and share one rate
// limiter so the pool bound still respects the upstream limit.
type ChartClient struct {
	hosts   []string
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewChartClient creates a chart client from the fetch configuration
func NewChartClient(cfg config.FetchConfig, logger *slog.Logger) *ChartClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChartClient{
		hosts:   cfg.Hosts,
		client:  &http.Client{Timeout: cfg.RequestTimeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst),
		logger:  logger.With(slog.String("component", "chart_client")),
	}
}

// chartResponse is the v8 chart API envelope. Quote arrays use interface{}
// because the API emits null for non-trading days.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []interface{} `json:"open"`
					High   []interface{} `json:"high"`
					Low    []interface{} `json:"low"`
					Close  []interface{} `json:"close"`
					Volume []interface{} `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// FetchDaily implements Source. Errors are classified: network failures,
// timeouts, 429 and 5xx are transient; unknown symbols and malformed bodies
// are permanent.
func (c *ChartClient) FetchDaily(ctx context.Context, symbol string, start, end time.Time) ([]domain.PricePoint, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, apperrors.NewTransientFetch(symbol, "rate limiter wait aborted", err)
	}

	var lastErr error
	for i, host := range c.hosts {
		points, err := c.fetchFromHost(ctx, host, symbol, start, end)
		if err == nil {
			return points, nil
		}
		lastErr = err

		// Only rotate hosts on transient trouble; a permanent answer
		// (unknown symbol, malformed body) is the same everywhere.
		if !apperrors.IsRetryable(err) {
			return nil, err
		}
		if i < len(c.hosts)-1 {
			c.logger.DebugContext(ctx, "rotating to next chart host",
				slog.String("symbol", symbol),
				slog.String("failed_host", host),
				slog.String("error", err.Error()))
		}
	}
	return nil, lastErr
}

func (c *ChartClient) fetchFromHost(ctx context.Context, host, symbol string, start, end time.Time) ([]domain.PricePoint, error) {
	// Period2 is exclusive upstream; push it to the following midnight so
	// the end date's bar is included.
	endpoint := fmt.Sprintf("https://%s/v8/finance/chart/%s?interval=1d&period1=%d&period2=%d",
		host, url.PathEscape(symbol), start.Unix(), end.AddDate(0, 0, 1).Unix())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, apperrors.NewPermanentFetch(symbol, "failed to build chart request", err)
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, apperrors.NewTransientFetch(symbol, "chart request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.NewTransientFetch(symbol, "failed to read chart response", err)
	}

	c.logger.DebugContext(ctx, "chart request completed",
		slog.String("symbol", symbol),
		slog.String("host", host),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(started)))

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.ClassifyHTTPStatus(symbol, resp.StatusCode)
	}

	return parseChart(symbol, body)
}

// parseChart decodes the chart envelope into ascending PricePoints,
// skipping null bars (holidays, halts)
func parseChart(symbol string, body []byte) ([]domain.PricePoint, error) {
	var chart chartResponse
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, apperrors.NewPermanentFetch(symbol, "malformed chart response", err)
	}
	if chart.Chart.Error != nil {
		if chart.Chart.Error.Code == "Not Found" {
			return nil, apperrors.NewPermanentFetch(symbol, "symbol not found upstream", nil)
		}
		return nil, apperrors.NewPermanentFetch(symbol,
			fmt.Sprintf("chart API error: %s", chart.Chart.Error.Description), nil)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Timestamp) == 0 {
		return nil, apperrors.NewPermanentFetch(symbol, "chart response carries no data", nil)
	}

	result := chart.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, apperrors.NewPermanentFetch(symbol, "chart response carries no quote arrays", nil)
	}
	quote := result.Indicators.Quote[0]
	if len(quote.Close) != len(result.Timestamp) {
		return nil, apperrors.NewPermanentFetch(symbol,
			fmt.Sprintf("quote arrays misaligned: %d closes for %d timestamps", len(quote.Close), len(result.Timestamp)), nil)
	}

	points := make([]domain.PricePoint, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		open := toFloat(at(quote.Open, i))
		high := toFloat(at(quote.High, i))
		low := toFloat(at(quote.Low, i))
		closePrice := toFloat(at(quote.Close, i))
		if open == 0 && high == 0 && low == 0 && closePrice == 0 {
			continue // null bar
		}

		day := time.Unix(ts, 0).UTC()
		points = append(points, domain.PricePoint{
			Symbol: symbol,
			Date:   time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC),
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closePrice,
			Volume: int64(toFloat(at(quote.Volume, i))),
		})
	}

	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
	return points, nil
}

func at(values []interface{}, i int) interface{} {
	if i < len(values) {
		return values[i]
	}
	return nil
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}
