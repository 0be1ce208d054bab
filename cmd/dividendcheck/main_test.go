package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dividendcheck/internal/pipeline"
)

var fixedNow = time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)

func TestParseRunFlags_Defaults(t *testing.T) {
	t.Setenv(apiKeyEnvName, "env-key")

	opts, err := parseRunFlags(nil, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, "20220701", opts.StartDate)
	assert.Equal(t, "20250630", opts.EndDate)
	assert.Equal(t, "", opts.TradeDate)
	assert.Equal(t, "env-key", opts.APIKey)
	assert.Zero(t, opts.Limit)
}

func TestParseRunFlags_Explicit(t *testing.T) {
	opts, err := parseRunFlags([]string{
		"-start-date", "20240101",
		"-end-date", "20241231",
		"-trade-date", "20241227",
		"-dart-api-key", "flag-key",
		"-output", "out.json",
		"-limit", "5",
		"-verbose",
	}, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, runOptions{
		StartDate: "20240101",
		EndDate:   "20241231",
		TradeDate: "20241227",
		Output:    "out.json",
		APIKey:    "flag-key",
		Limit:     5,
		Verbose:   true,
	}, opts)
}

func TestParseRunFlags_TrimsDates(t *testing.T) {
	opts, err := parseRunFlags([]string{
		"-start-date", " 20240101",
		"-end-date", "20241231 ",
		"-trade-date", "\t20241227\n",
	}, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, "20240101", opts.StartDate)
	assert.Equal(t, "20241231", opts.EndDate)
	assert.Equal(t, "20241227", opts.TradeDate)
}

func TestParseRunFlags_Rejects(t *testing.T) {
	cases := map[string][]string{
		"bad start":      {"-start-date", "2024-01-01"},
		"bad end":        {"-end-date", "20241301"},
		"reversed range": {"-start-date", "20250101", "-end-date", "20240101"},
		"bad trade date": {"-trade-date", "today"},
		"negative limit": {"-limit", "-1"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parseRunFlags(args, fixedNow)
			require.Error(t, err)
		})
	}
}

func TestEncodeJSON_KeepsKorean(t *testing.T) {
	var buf bytes.Buffer
	err := encodeJSON(&buf, []pipeline.Summary{{
		CorpCode:                 "00126380",
		CorpName:                 "삼성전자",
		StockCode:                "005930",
		HasPostDividendProvision: true,
		MatchingReports:          []string{"<정정> 배당기준일 변경"},
	}})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"corp_name": "삼성전자"`)
	assert.Contains(t, buf.String(), `"<정정> 배당기준일 변경"`)
}

func TestWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.json")

	require.NoError(t, writeJSON(path, []pipeline.Summary{}))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(data))
}
