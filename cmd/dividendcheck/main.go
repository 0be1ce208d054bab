package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"dividendcheck/internal/checker"
	"dividendcheck/internal/pipeline"
	"dividendcheck/internal/providers/dart"
	"dividendcheck/internal/providers/krx"
)

const (
	dateLayout    = "20060102"
	lookbackDays  = 365 * 3
	apiKeyEnvName = "DART_API_KEY"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "run":
		run(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

type runOptions struct {
	StartDate  string
	EndDate    string
	TradeDate  string
	Output     string
	APIKey     string
	ConfigPath string
	Limit      int
	Verbose    bool
}

func run(args []string) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env, relying on environment variables", "err", err)
	}

	opts, err := parseRunFlags(args, time.Now())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if strings.TrimSpace(opts.APIKey) == "" {
		fmt.Fprintf(os.Stderr, "DART API key is required: set %s or pass -dart-api-key\n", apiKeyEnvName)
		os.Exit(1)
	}

	if err := runCheck(context.Background(), opts, logger); err != nil {
		fmt.Fprintln(os.Stderr, "dividendcheck run failed:", err)
		os.Exit(1)
	}
}

func parseRunFlags(args []string, now time.Time) (runOptions, error) {
	var opts runOptions
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.StringVar(&opts.StartDate, "start-date", defaultStartDate(now), "search window start (YYYYMMDD)")
	fs.StringVar(&opts.EndDate, "end-date", now.Format(dateLayout), "search window end (YYYYMMDD)")
	fs.StringVar(&opts.TradeDate, "trade-date", "", "KRX constituent trade date (YYYYMMDD, default today)")
	fs.StringVar(&opts.Output, "output", "", "write JSON results to this file (default stdout)")
	fs.StringVar(&opts.APIKey, "dart-api-key", os.Getenv(apiKeyEnvName), "DART Open API key (default $"+apiKeyEnvName+")")
	fs.StringVar(&opts.ConfigPath, "config", "", "YAML file overriding keywords and detail types")
	fs.IntVar(&opts.Limit, "limit", 0, "limit number of companies evaluated (0 = all)")
	fs.BoolVar(&opts.Verbose, "verbose", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return runOptions{}, err
	}

	opts.StartDate = strings.TrimSpace(opts.StartDate)
	opts.EndDate = strings.TrimSpace(opts.EndDate)
	opts.TradeDate = strings.TrimSpace(opts.TradeDate)

	start, err := parseDate("start-date", opts.StartDate)
	if err != nil {
		return runOptions{}, err
	}
	end, err := parseDate("end-date", opts.EndDate)
	if err != nil {
		return runOptions{}, err
	}
	if start.After(end) {
		return runOptions{}, fmt.Errorf("start-date %s is after end-date %s", opts.StartDate, opts.EndDate)
	}
	if opts.TradeDate != "" {
		if _, err := parseDate("trade-date", opts.TradeDate); err != nil {
			return runOptions{}, err
		}
	}
	if opts.Limit < 0 {
		return runOptions{}, errors.New("limit must not be negative")
	}
	return opts, nil
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: dividendcheck run [options]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "options:")
	fmt.Fprintln(os.Stderr, "  -start-date    search window start, YYYYMMDD (default: three years ago)")
	fmt.Fprintln(os.Stderr, "  -end-date      search window end, YYYYMMDD (default: today)")
	fmt.Fprintln(os.Stderr, "  -trade-date    KRX constituent trade date (default: today)")
	fmt.Fprintln(os.Stderr, "  -output        JSON output file (default: stdout)")
	fmt.Fprintln(os.Stderr, "  -dart-api-key  DART Open API key (default: $DART_API_KEY)")
	fmt.Fprintln(os.Stderr, "  -config        YAML keyword/detail-type overrides")
	fmt.Fprintln(os.Stderr, "  -limit         limit number of companies (default: 0)")
	fmt.Fprintln(os.Stderr, "  -verbose       debug logging")
}

func runCheck(ctx context.Context, opts runOptions, logger *slog.Logger) error {
	settings, err := checker.LoadSettings(opts.ConfigPath)
	if err != nil {
		return err
	}

	dartCfg, err := dart.ConfigFromEnv()
	if err != nil {
		return err
	}
	dartCfg.APIKey = opts.APIKey
	dartProvider, err := dart.NewWithConfig(dartCfg)
	if err != nil {
		return err
	}
	krxProvider, err := krx.New()
	if err != nil {
		return err
	}

	results, err := pipeline.Run(ctx, pipeline.Sources{
		CorpCodes:    dartProvider,
		Constituents: krxProvider,
		Filings:      dartProvider,
	}, pipeline.Options{
		StartDate:   opts.StartDate,
		EndDate:     opts.EndDate,
		TradeDate:   opts.TradeDate,
		Keywords:    settings.Keywords,
		DetailTypes: settings.DetailTypes,
		Limit:       opts.Limit,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	summary := pipeline.Summarize(results)
	if opts.Output == "" {
		return encodeJSON(os.Stdout, summary)
	}
	if err := writeJSON(opts.Output, summary); err != nil {
		return err
	}
	logger.Info("results written", "path", opts.Output, "companies", len(summary))
	return nil
}

func defaultStartDate(now time.Time) string {
	return now.AddDate(0, 0, -lookbackDays).Format(dateLayout)
}

func parseDate(name, value string) (time.Time, error) {
	parsed, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s %q: expected YYYYMMDD", name, value)
	}
	return parsed, nil
}

func writeJSON(path string, value any) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return encodeJSON(file, value)
}

// encodeJSON keeps Korean text and angle brackets in titles unescaped.
func encodeJSON(w io.Writer, value any) error {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(value); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}
