package dart

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"dividendcheck/internal/model"
	"dividendcheck/internal/providers"
)

const (
	defaultBaseURL               = "https://opendart.fss.or.kr/api/"
	defaultListPath              = "list.json"
	defaultCorpCodePath          = "corpCode.xml"
	defaultCorpCodeFile          = "CORPCODE.xml"
	defaultAPIKeyParam           = "crtfc_key"
	defaultPageSize              = 100
	defaultMaxPages              = 1000
	defaultTimeoutSeconds        = 20
	defaultArchiveTimeoutSeconds = 30
	defaultRateLimitPerSec       = 5
	defaultRateLimitBurst        = 5
	defaultUserAgent             = "Mozilla/5.0"

	statusOK       = "000"
	defaultMessage = "Unexpected response"
)

var (
	ErrMissingAPIKey    = errors.New("dart: api key is required (DART_API_KEY)")
	ErrMissingCorpCode  = errors.New("dart: corp_code is required")
	ErrInvalidArchive   = errors.New("dart: invalid corp code archive")
	ErrTooManyPages     = errors.New("dart: total_page exceeds limit")
	ErrInvalidTotalPage = errors.New("dart: invalid total_page")
)

// APIError is a response whose status field is not "000".
type APIError struct {
	Status  string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("dart: error %s: %s", e.Status, e.Message)
}

type Config struct {
	BaseURL         string
	ListPath        string
	CorpCodePath    string
	CorpCodeFile    string
	APIKey          string
	APIKeyParam     string
	MaxPages        int
	Timeout         time.Duration
	ArchiveTimeout  time.Duration
	RateLimitPerSec float64
	RateLimitBurst  int
	UserAgent       string
}

type Provider struct {
	config        Config
	client        *http.Client
	archiveClient *http.Client
	limiter       *rate.Limiter
}

func New() (*Provider, error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return NewWithConfig(cfg)
}

func NewWithConfig(cfg Config) (*Provider, error) {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/") + "/"
	if strings.TrimSpace(cfg.ListPath) == "" {
		cfg.ListPath = defaultListPath
	}
	if strings.TrimSpace(cfg.CorpCodePath) == "" {
		cfg.CorpCodePath = defaultCorpCodePath
	}
	if strings.TrimSpace(cfg.CorpCodeFile) == "" {
		cfg.CorpCodeFile = defaultCorpCodeFile
	}
	if cfg.APIKeyParam == "" {
		cfg.APIKeyParam = defaultAPIKeyParam
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = defaultMaxPages
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeoutSeconds * time.Second
	}
	if cfg.ArchiveTimeout == 0 {
		cfg.ArchiveTimeout = defaultArchiveTimeoutSeconds * time.Second
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
		config:        cfg,
		client:        &http.Client{Timeout: cfg.Timeout},
		archiveClient: &http.Client{Timeout: cfg.ArchiveTimeout},
		limiter:       rate.NewLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst),
	}, nil
}

func ConfigFromEnv() (Config, error) {
	cfg := Config{
		BaseURL:         getenv("DART_BASE_URL", defaultBaseURL),
		ListPath:        getenv("DART_LIST_PATH", defaultListPath),
		CorpCodePath:    getenv("DART_CORPCODE_PATH", defaultCorpCodePath),
		CorpCodeFile:    getenv("DART_CORPCODE_FILE", defaultCorpCodeFile),
		APIKey:          strings.TrimSpace(os.Getenv("DART_API_KEY")),
		APIKeyParam:     defaultAPIKeyParam,
		MaxPages:        getenvInt("DART_MAX_PAGES", defaultMaxPages),
		RateLimitPerSec: getenvFloat("DART_RATE_LIMIT_PER_SEC", defaultRateLimitPerSec),
		RateLimitBurst:  getenvInt("DART_RATE_LIMIT_BURST", defaultRateLimitBurst),
		UserAgent:       getenv("DART_USER_AGENT", defaultUserAgent),
	}

	cfg.Timeout = time.Duration(getenvInt("DART_TIMEOUT_SECONDS", defaultTimeoutSeconds)) * time.Second
	cfg.ArchiveTimeout = time.Duration(getenvInt("DART_ARCHIVE_TIMEOUT_SECONDS", defaultArchiveTimeoutSeconds)) * time.Second

	return cfg, nil
}

func (p *Provider) Name() string {
	return "dart"
}

type listResponse struct {
	Status    *string          `json:"status"`
	Message   string           `json:"message"`
	TotalPage any              `json:"total_page"`
	List      []map[string]any `json:"list"`
}

// Search drains every page of the disclosure list for one corporation.
// Any page with a non-OK status aborts the whole search.
func (p *Provider) Search(ctx context.Context, corpCode string, query model.FilingQuery) ([]model.Filing, error) {
	corpCode = strings.TrimSpace(corpCode)
	if corpCode == "" {
		return nil, ErrMissingCorpCode
	}
	pageSize := query.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	filings := make([]model.Filing, 0)
	for page := 1; ; page++ {
		params := url.Values{}
		params.Set("corp_code", corpCode)
		params.Set("bgn_de", query.StartDate)
		params.Set("end_de", query.EndDate)
		params.Set("page_no", strconv.Itoa(page))
		params.Set("page_count", strconv.Itoa(pageSize))
		if len(query.DetailTypes) > 0 {
			params.Set("pblntf_detail_ty", strings.Join(query.DetailTypes, ","))
		}

		var response listResponse
		if err := p.doJSON(ctx, p.config.ListPath, params, &response); err != nil {
			return nil, err
		}
		if err := checkStatus(response.Status, response.Message); err != nil {
			return nil, err
		}

		totalPages, err := parseTotalPage(response.TotalPage)
		if err != nil {
			return nil, fmt.Errorf("%w (corp_code=%s)", err, corpCode)
		}
		if totalPages > p.config.MaxPages {
			return nil, fmt.Errorf("%w: %d > %d (corp_code=%s)", ErrTooManyPages, totalPages, p.config.MaxPages, corpCode)
		}
		for _, item := range response.List {
			filings = append(filings, toFiling(item))
		}
		if page >= totalPages {
			break
		}
	}
	return filings, nil
}

func checkStatus(status *string, message string) error {
	if status == nil || *status == statusOK {
		return nil
	}
	if strings.TrimSpace(message) == "" {
		message = defaultMessage
	}
	return &APIError{Status: *status, Message: message}
}

// parseTotalPage accepts integral values only. A missing value or one
// below 1 means a single page.
func parseTotalPage(value any) (int, error) {
	var raw string
	switch typed := value.(type) {
	case nil:
		return 1, nil
	case json.Number:
		raw = typed.String()
	case string:
		raw = strings.TrimSpace(typed)
		if raw == "" {
			return 1, nil
		}
	default:
		return 0, fmt.Errorf("%w: %v", ErrInvalidTotalPage, value)
	}

	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTotalPage, raw)
	}
	if parsed != math.Trunc(parsed) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTotalPage, raw)
	}
	if parsed > math.MaxInt32 {
		return 0, fmt.Errorf("%w: total_page %s", ErrTooManyPages, raw)
	}
	if parsed < 1 {
		return 1, nil
	}
	return int(parsed), nil
}

func toFiling(item map[string]any) model.Filing {
	filing := make(model.Filing, len(item))
	for key, value := range item {
		filing[key] = stringValue(value)
	}
	return filing
}

func stringValue(value any) string {
	switch typed := value.(type) {
	case string:
		return typed
	case json.Number:
		return typed.String()
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(typed)
	case nil:
		return ""
	default:
		return fmt.Sprint(typed)
	}
}

func (p *Provider) doJSON(ctx context.Context, path string, params url.Values, dest any) error {
	body, err := p.doRequest(ctx, p.client, path, params, "application/json")
	if err != nil {
		return err
	}

	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	if err := decoder.Decode(dest); err != nil {
		return fmt.Errorf("dart: decode %s: %w", path, err)
	}
	return nil
}

func (p *Provider) doRequest(ctx context.Context, client *http.Client, path string, params url.Values, accept string) ([]byte, error) {
	endpoint := p.buildURL(path, params)

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if p.config.UserAgent != "" {
		req.Header.Set("User-Agent", p.config.UserAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("dart: request failed (%s): %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return body, nil
}

func (p *Provider) buildURL(path string, params url.Values) string {
	endpoint := p.config.BaseURL + strings.TrimLeft(path, "/")

	query := url.Values{}
	for key, values := range params {
		for _, value := range values {
			query.Add(key, value)
		}
	}
	query.Set(p.config.APIKeyParam, p.config.APIKey)
	return endpoint + "?" + query.Encode()
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

var (
	_ providers.CorpCodeSource = (*Provider)(nil)
	_ providers.FilingSource   = (*Provider)(nil)
)
