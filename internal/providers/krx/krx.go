package krx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"dividendcheck/internal/model"
	"dividendcheck/internal/providers"
)

const (
	defaultEndpoint        = "https://data.krx.co.kr/comm/bldAttendant/getJsonData.cmd"
	defaultBld             = "dbms/MDC/STAT/standard/MDCSTAT00601"
	defaultIndexCode       = "1"
	defaultTimeoutSeconds  = 15
	defaultRateLimitPerSec = 2
	defaultRateLimitBurst  = 2
	defaultUserAgent       = "Mozilla/5.0"

	resultBlock   = "OutBlock_1"
	DefaultMarket = "KOSPI"
	dateLayout    = "20060102"
)

var ErrUnexpectedResponse = errors.New("krx: unexpected response")

// Candidate source fields per logical column, highest precedence first.
// NOTE: TDD_CLSPRC carries the closing price in current payloads, so a row
// missing ISU_SRT_CD resolves its ticker to a price.
var (
	TickerFields = []string{"ISU_SRT_CD", "TDD_CLSPRC", "CMP_CD"}
	NameFields   = []string{"ISU_ABBRV", "CMP_KOR", "KOR_SHRT_NM"}
	MarketFields = []string{"MKT_ID", "MKT_NM"}
)

type Config struct {
	Endpoint        string
	Bld             string
	IndexCode       string
	Timeout         time.Duration
	RateLimitPerSec float64
	RateLimitBurst  int
	UserAgent       string
}

type Provider struct {
	config  Config
	client  *http.Client
	limiter *rate.Limiter
	now     func() time.Time
}

func New() (*Provider, error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return NewWithConfig(cfg)
}

func NewWithConfig(cfg Config) (*Provider, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if strings.TrimSpace(cfg.Bld) == "" {
		cfg.Bld = defaultBld
	}
	if strings.TrimSpace(cfg.IndexCode) == "" {
		cfg.IndexCode = defaultIndexCode
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeoutSeconds * time.Second
	}
	if cfg.RateLimitPerSec <= 0 {
		cfg.RateLimitPerSec = defaultRateLimitPerSec
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = defaultRateLimitBurst
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}

	return &Provider{
		config:  cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst),
		now:     time.Now,
	}, nil
}

func ConfigFromEnv() (Config, error) {
	cfg := Config{
		Endpoint:        getenv("KRX_ENDPOINT", defaultEndpoint),
		Bld:             getenv("KRX_BLD", defaultBld),
		IndexCode:       getenv("KRX_INDEX_CODE", defaultIndexCode),
		RateLimitPerSec: getenvFloat("KRX_RATE_LIMIT_PER_SEC", defaultRateLimitPerSec),
		RateLimitBurst:  getenvInt("KRX_RATE_LIMIT_BURST", defaultRateLimitBurst),
		UserAgent:       getenv("KRX_USER_AGENT", defaultUserAgent),
	}
	cfg.Timeout = time.Duration(getenvInt("KRX_TIMEOUT_SECONDS", defaultTimeoutSeconds)) * time.Second
	return cfg, nil
}

func (p *Provider) Name() string {
	return "krx"
}

// FetchConstituents returns the raw index constituent rows for tradeDate
// (YYYYMMDD). An empty tradeDate means today; KRX answers future or
// non-trading dates with the latest session.
func (p *Provider) FetchConstituents(ctx context.Context, tradeDate string) ([]map[string]any, error) {
	tradeDate = strings.TrimSpace(tradeDate)
	if tradeDate == "" {
		tradeDate = p.now().Format(dateLayout)
	}

	form := url.Values{}
	form.Set("bld", p.config.Bld)
	form.Set("trdDd", tradeDate)
	form.Set("idxIndCd", p.config.IndexCode)

	body, err := p.doPost(ctx, form)
	if err != nil {
		return nil, err
	}

	var payload map[string]any
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	if err := decoder.Decode(&payload); err != nil {
		return nil, fmt.Errorf("krx: decode response: %w", err)
	}

	raw, ok := payload[resultBlock]
	if !ok {
		return nil, fmt.Errorf("%w: missing %s (keys: %v)", ErrUnexpectedResponse, resultBlock, sortedKeys(payload))
	}
	switch typed := raw.(type) {
	case nil:
		return []map[string]any{}, nil
	case []any:
		return toRowList(typed), nil
	default:
		return nil, fmt.Errorf("%w: %s is %T", ErrUnexpectedResponse, resultBlock, raw)
	}
}

// Normalize maps raw rows onto Constituent. Rows without a ticker or a name
// are dropped; the number dropped is returned alongside.
func Normalize(rows []map[string]any) ([]model.Constituent, int) {
	constituents := make([]model.Constituent, 0, len(rows))
	dropped := 0
	for _, row := range rows {
		stockCode, okCode := getString(row, TickerFields...)
		name, okName := getString(row, NameFields...)
		if !okCode || !okName {
			dropped++
			continue
		}
		market, ok := getString(row, MarketFields...)
		if !ok {
			market = DefaultMarket
		}
		constituents = append(constituents, model.Constituent{
			StockCode: stockCode,
			Name:      name,
			Market:    market,
		})
	}
	return constituents, dropped
}

func (p *Provider) doPost(ctx context.Context, form url.Values) ([]byte, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	req.Header.Set("Accept", "application/json")
	if p.config.UserAgent != "" {
		req.Header.Set("User-Agent", p.config.UserAgent)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("krx: request failed (%s): %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return body, nil
}

func toRowList(items []any) []map[string]any {
	rows := make([]map[string]any, 0, len(items))
	for _, item := range items {
		row, ok := item.(map[string]any)
		if !ok {
			continue
		}
		rows = append(rows, row)
	}
	return rows
}

func sortedKeys(payload map[string]any) []string {
	keys := make([]string, 0, len(payload))
	for key := range payload {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// getString returns the first non-empty value among keys, in order.
func getString(row map[string]any, keys ...string) (string, bool) {
	for _, key := range keys {
		value, ok := row[key]
		if !ok {
			continue
		}
		var text string
		switch typed := value.(type) {
		case string:
			text = strings.TrimSpace(typed)
		case json.Number:
			text = typed.String()
		case float64:
			text = strconv.FormatFloat(typed, 'f', -1, 64)
		case bool:
			text = strconv.FormatBool(typed)
		}
		if text != "" {
			return text, true
		}
	}
	return "", false
}

func getenv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

var _ providers.ConstituentSource = (*Provider)(nil)
