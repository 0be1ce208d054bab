package providers

import (
	"context"

	"dividendcheck/internal/model"
)

type CorpCodeSource interface {
	DownloadCodes(ctx context.Context) ([]model.Corporation, error)
}

type ConstituentSource interface {
	FetchConstituents(ctx context.Context, tradeDate string) ([]map[string]any, error)
}

type FilingSource interface {
	Search(ctx context.Context, corpCode string, query model.FilingQuery) ([]model.Filing, error)
}
