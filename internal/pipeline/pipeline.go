package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"dividendcheck/internal/checker"
	"dividendcheck/internal/model"
	"dividendcheck/internal/providers"
	"dividendcheck/internal/providers/dart"
	"dividendcheck/internal/providers/krx"
)

type Sources struct {
	CorpCodes    providers.CorpCodeSource
	Constituents providers.ConstituentSource
	Filings      providers.FilingSource
}

type Options struct {
	StartDate   string
	EndDate     string
	TradeDate   string
	Keywords    []string
	DetailTypes []string
	Limit       int
	Logger      *slog.Logger
}

// Summary is the serialized form of a CompanyResult.
type Summary struct {
	CorpCode                 string   `json:"corp_code"`
	CorpName                 string   `json:"corp_name"`
	StockCode                string   `json:"stock_code"`
	HasPostDividendProvision bool     `json:"has_post_dividend_provision"`
	MatchingReports          []string `json:"matching_reports"`
}

// Run joins index constituents to DART corp codes and evaluates each
// joined company in order.
func Run(ctx context.Context, sources Sources, opts Options) ([]model.CompanyResult, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	corporations, err := sources.CorpCodes.DownloadCodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("download corp codes: %w", err)
	}
	index := dart.BuildIndex(corporations)
	logger.Info("corp codes loaded", "entries", len(corporations), "listed", len(index))

	rows, err := sources.Constituents.FetchConstituents(ctx, opts.TradeDate)
	if err != nil {
		return nil, fmt.Errorf("fetch constituents: %w", err)
	}
	constituents, dropped := krx.Normalize(rows)
	if dropped > 0 {
		logger.Warn("constituent rows dropped", "dropped", dropped, "rows", len(rows))
	}

	companies := Join(constituents, index)
	logger.Info("constituents joined", "constituents", len(constituents), "matched", len(companies))
	if opts.Limit > 0 && len(companies) > opts.Limit {
		companies = companies[:opts.Limit]
	}

	c := checker.New(sources.Filings, checker.Options{
		StartDate:   opts.StartDate,
		EndDate:     opts.EndDate,
		Keywords:    opts.Keywords,
		DetailTypes: opts.DetailTypes,
		Logger:      logger,
	})
	results, err := c.EvaluateAll(ctx, companies)
	if err != nil {
		return nil, fmt.Errorf("search filings: %w", err)
	}
	logger.Info("evaluation complete", "companies", len(results), "adopted", countAdopted(results))
	return results, nil
}

// Join attaches corp codes to constituents by stock code. Constituents
// without a registry entry are dropped; the registry name wins over the
// constituent name unless it is empty.
func Join(constituents []model.Constituent, index model.CorpIndex) []model.Company {
	companies := make([]model.Company, 0, len(constituents))
	for _, item := range constituents {
		match, ok := index[item.StockCode]
		if !ok {
			continue
		}
		corpName := match.CorpName
		if corpName == "" {
			corpName = item.Name
		}
		companies = append(companies, model.Company{
			CorpCode:  match.CorpCode,
			CorpName:  corpName,
			Name:      item.Name,
			StockCode: item.StockCode,
			Market:    item.Market,
		})
	}
	return companies
}

func Summarize(results []model.CompanyResult) []Summary {
	summaries := make([]Summary, 0, len(results))
	for _, result := range results {
		reports := make([]string, 0, len(result.MatchingReports))
		for _, filing := range result.MatchingReports {
			reports = append(reports, filing.Title())
		}
		summaries = append(summaries, Summary{
			CorpCode:                 result.CorpCode,
			CorpName:                 result.CorpName,
			StockCode:                result.StockCode,
			HasPostDividendProvision: result.HasPostDividendProvision,
			MatchingReports:          reports,
		})
	}
	return summaries
}

func countAdopted(results []model.CompanyResult) int {
	count := 0
	for _, result := range results {
		if result.HasPostDividendProvision {
			count++
		}
	}
	return count
}
