// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	_ "github.com/joho/godotenv/autoload"
	"github.com/poiesic/filedrop/config"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp(config.Load()).Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// newApp builds the CLI. Flag defaults come from cfg.
func newApp(cfg *config.Config) *cli.App {
	sessionsFlag := &cli.StringFlag{
		Name:    "sessions",
		Aliases: []string{"s"},
		Usage:   "Path to the upload session database directory",
		Value:   cfg.SessionsDir,
	}
	candidatesFlag := &cli.StringFlag{
		Name:  "candidates",
		Usage: "JSON file listing the classification candidates",
	}
	analysisFlags := []cli.Flag{
		&cli.StringFlag{
			Name:  "analysis-host",
			Usage: "Content analysis service host URL; analysis is disabled when empty",
			Value: cfg.Analysis.Host,
		},
		&cli.StringFlag{
			Name:  "analysis-model",
			Usage: "Content analysis model name",
			Value: cfg.Analysis.Model,
		},
	}

	return &cli.App{
		Name:  "filedrop",
		Usage: "Resumable, deduplicated batch uploads",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   cfg.LogLevel,
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "ingest",
				Usage:     "Upload files, skipping content the catalog already holds",
				ArgsUsage: "FILE...",
				Action:    ingestCommand(cfg),
				Flags: append([]cli.Flag{
					sessionsFlag,
					&cli.StringFlag{
						Name:  "endpoint",
						Usage: "Resumable upload (tus) endpoint URL",
						Value: cfg.Endpoint,
					},
					&cli.StringFlag{
						Name:  "s3-bucket",
						Usage: "Upload to this S3-compatible bucket instead (connection from MINIO_* env)",
						Value: cfg.S3.Bucket,
					},
					&cli.StringFlag{
						Name:  "catalog-url",
						Usage: "Duplicate catalog HTTP service URL",
						Value: cfg.Catalog.URL,
					},
					&cli.StringFlag{
						Name:  "catalog-dsn",
						Usage: "Duplicate catalog PostgreSQL DSN (wins over --catalog-url)",
						Value: cfg.Catalog.DSN,
					},
					candidatesFlag,
					&cli.StringFlag{
						Name:  "scope",
						Usage: "Upload everything into this scope and skip classification",
						Value: cfg.ScopeID,
					},
					&cli.IntFlag{
						Name:  "concurrency",
						Usage: "Number of files transferred at once",
						Value: cfg.Concurrency,
					},
					&cli.Int64Flag{
						Name:  "chunk-size",
						Usage: "Bytes sent per chunk",
						Value: cfg.ChunkSize,
					},
					&cli.DurationFlag{
						Name:  "chunk-timeout",
						Usage: "Timeout for each chunk request",
						Value: cfg.ChunkTimeout,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed requests",
						Value: cfg.MaxRetries,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: cfg.RetryDelay,
					},
					&cli.DurationFlag{
						Name:  "batch-pause",
						Usage: "Pause between scheduling rounds",
						Value: cfg.BatchPause,
					},
					&cli.StringFlag{
						Name:  "metrics-file",
						Usage: "Write prometheus metrics to this textfile when done",
						Value: cfg.MetricsFile,
					},
				}, analysisFlags...),
			},
			{
				Name:      "classify",
				Usage:     "Rank files against the candidates without uploading",
				ArgsUsage: "FILE...",
				Action:    classifyCommand(cfg),
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:     candidatesFlag.Name,
						Usage:    candidatesFlag.Usage,
						Required: true,
					},
				}, analysisFlags...),
			},
			{
				Name:  "sessions",
				Usage: "Inspect or clean up resumable upload sessions",
				Subcommands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "List unfinished sessions",
						Action: sessionsListCommand,
						Flags:  []cli.Flag{sessionsFlag},
					},
					{
						Name:   "sweep",
						Usage:  "Delete expired sessions",
						Action: sessionsSweepCommand,
						Flags:  []cli.Flag{sessionsFlag},
					},
				},
			},
		},
	}
}

func setupLogger(c *cli.Context) error {
	level, err := parseLevel(c.String("log-level"))
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", s)
}
