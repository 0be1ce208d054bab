package checker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"dividendcheck/internal/model"
	"dividendcheck/internal/providers"
)

// DefaultKeywords are matched literally against disclosure titles. Spaced
// variants are listed separately; titles are not normalized.
var DefaultKeywords = []string{
	"배당기준일",
	"배당 기준일",
	"배당액 공시",
	"정관변경",
	"정관 변경",
	"배당 관련 정관",
}

// DefaultDetailTypes restricts searches to articles-of-association changes
// (B001) and board resolutions (I001).
var DefaultDetailTypes = []string{"B001", "I001"}

type Options struct {
	StartDate   string
	EndDate     string
	Keywords    []string
	DetailTypes []string
	PageSize    int
	Logger      *slog.Logger
}

type Checker struct {
	source      providers.FilingSource
	startDate   string
	endDate     string
	keywords    []string
	detailTypes []string
	pageSize    int
	logger      *slog.Logger
}

// New builds a Checker. Blank keywords are ignored and an empty keyword
// list falls back to DefaultKeywords.
func New(source providers.FilingSource, opts Options) *Checker {
	keywords := compact(opts.Keywords, false)
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	detailTypes := opts.DetailTypes
	if detailTypes == nil {
		detailTypes = DefaultDetailTypes
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{
		source:      source,
		startDate:   opts.StartDate,
		endDate:     opts.EndDate,
		keywords:    append([]string(nil), keywords...),
		detailTypes: append([]string(nil), detailTypes...),
		pageSize:    opts.PageSize,
		logger:      logger,
	}
}

func (c *Checker) MatchesPolicy(title string) bool {
	for _, keyword := range c.keywords {
		if strings.Contains(title, keyword) {
			return true
		}
	}
	return false
}

// EvaluateCompany searches one company's filings and keeps those whose
// title matches a keyword. Search errors are returned as is.
func (c *Checker) EvaluateCompany(ctx context.Context, company model.Company) (model.CompanyResult, error) {
	name := company.CorpName
	if name == "" {
		name = company.Name
	}

	filings, err := c.source.Search(ctx, company.CorpCode, model.FilingQuery{
		StartDate:   c.startDate,
		EndDate:     c.endDate,
		DetailTypes: c.detailTypes,
		PageSize:    c.pageSize,
	})
	if err != nil {
		return model.CompanyResult{}, err
	}

	matches := make([]model.Filing, 0)
	for _, filing := range filings {
		if c.MatchesPolicy(filing.Title()) {
			matches = append(matches, filing)
		}
	}

	c.logger.Debug("company evaluated",
		"corp_code", company.CorpCode,
		"stock_code", company.StockCode,
		"filings", len(filings),
		"matches", len(matches),
	)

	return model.CompanyResult{
		CorpCode:                 company.CorpCode,
		CorpName:                 name,
		StockCode:                company.StockCode,
		HasPostDividendProvision: len(matches) > 0,
		MatchingReports:          matches,
	}, nil
}

// EvaluateAll runs EvaluateCompany over companies in order. The first
// failure stops the batch and no partial results are returned.
func (c *Checker) EvaluateAll(ctx context.Context, companies []model.Company) ([]model.CompanyResult, error) {
	results := make([]model.CompanyResult, 0, len(companies))
	for i, company := range companies {
		result, err := c.EvaluateCompany(ctx, company)
		if err != nil {
			return nil, fmt.Errorf("checker: corp_code=%s (%d/%d): %w", company.CorpCode, i+1, len(companies), err)
		}
		results = append(results, result)
	}
	return results, nil
}
