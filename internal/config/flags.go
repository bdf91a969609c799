package config

import (
	"flag"
	"os"
)

// parseFlags reads command line flags into a StructuredConfig. Unset flags
// stay zero so lower-priority sources (env, JSON, defaults) can fill them in
// during the merge.
func parseFlags(args []string) *StructuredConfig {
	cfg := &StructuredConfig{}

	fs := flag.NewFlagSet("fieldsync", flag.ContinueOnError)
	fs.StringVar(&cfg.Adapter.HTTPAddress, "a", "", "remote API base URL")
	fs.StringVar(&cfg.Adapter.Token, "t", "", "bearer token for the remote API")
	fs.StringVar(&cfg.Storage.DSN, "d", "", "local sqlite database path")
	fs.DurationVar(&cfg.Sync.Interval, "i", 0, "periodic sync interval")
	fs.StringVar(&cfg.jsonFilePath, "c", "", "path to JSON config file")

	// ContinueOnError keeps unknown-flag failures from killing tests; the
	// zero config falls through to the other sources.
	_ = fs.Parse(args)

	return cfg
}

// ParseFlags parses the process arguments.
func ParseFlags() *StructuredConfig {
	return parseFlags(os.Args[1:])
}
