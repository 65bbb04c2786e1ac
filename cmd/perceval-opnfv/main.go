// Command perceval-opnfv fetches test-case results from a Functest
// server and writes them to stdout, one JSON item per line.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/mafesan/grimoirelab-perceval-opnfv/pkg/datetime"
	"github.com/mafesan/grimoirelab-perceval-opnfv/pkg/functest"
	"github.com/mafesan/grimoirelab-perceval-opnfv/pkg/logging"
)

type options struct {
	fromDate string
	toDate   string
	tag      string
	category string
	logLevel string
	pretty   bool
	url      string
}

func main() {
	// A .env file may carry defaults; a missing one is fine.
	_ = godotenv.Load()

	opts, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(opts.logLevel),
		Pretty: opts.pretty,
		Output: os.Stderr,
	})

	fetchOpts, err := buildFetchOptions(opts)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid date arguments")
	}

	backend, err := functest.New(opts.url, functest.WithTag(opts.tag))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create Functest backend")
	}

	enc := json.NewEncoder(os.Stdout)
	it := backend.Fetch(context.Background(), fetchOpts)
	for it.Next() {
		if err := enc.Encode(it.Item()); err != nil {
			logger.Fatal().Err(err).Msg("Failed to write item")
		}
	}
	if err := it.Err(); err != nil {
		logger.Fatal().Err(err).Int("items", it.Count()).Msg("Fetch failed")
	}
}

// parseArgs parses command line arguments into options.
func parseArgs(args []string) (*options, error) {
	opts := &options{}

	fs := flag.NewFlagSet("perceval-opnfv", flag.ContinueOnError)
	fs.StringVar(&opts.fromDate, "from-date", "", "fetch items updated since this date")
	fs.StringVar(&opts.toDate, "to-date", "", "fetch items updated before this date")
	fs.StringVar(&opts.tag, "tag", "", "label used to mark the fetched items")
	fs.StringVar(&opts.category, "category", functest.CategoryFunctest, "category of items to fetch")
	fs.StringVar(&opts.logLevel, "log-level", getEnv("LOG_LEVEL", "info"), "log level (debug, info, warn, error)")
	fs.BoolVar(&opts.pretty, "pretty", false, "human-readable console logs")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: perceval-opnfv [flags] URL\n\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if opts.category != functest.CategoryFunctest {
		return nil, fmt.Errorf("unknown category %q", opts.category)
	}

	if fs.NArg() != 1 {
		fs.Usage()
		return nil, fmt.Errorf("expected exactly one URL argument, got %d", fs.NArg())
	}
	opts.url = fs.Arg(0)

	return opts, nil
}

// buildFetchOptions converts the date flags into a fetch window.
func buildFetchOptions(opts *options) (functest.FetchOptions, error) {
	var fetchOpts functest.FetchOptions

	if opts.fromDate != "" {
		from, err := datetime.Parse(opts.fromDate)
		if err != nil {
			return fetchOpts, fmt.Errorf("from-date: %w", err)
		}
		fetchOpts.FromDate = &from
	}

	if opts.toDate != "" {
		to, err := datetime.Parse(opts.toDate)
		if err != nil {
			return fetchOpts, fmt.Errorf("to-date: %w", err)
		}
		fetchOpts.ToDate = &to
	}

	// An inverted window is not rejected here: the service decides
	// what it means.
	return fetchOpts, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
