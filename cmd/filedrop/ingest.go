package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/poiesic/filedrop"
	"github.com/poiesic/filedrop/ai"
	"github.com/poiesic/filedrop/ai/openai"
	"github.com/poiesic/filedrop/catalog"
	"github.com/poiesic/filedrop/catalog/postgres"
	"github.com/poiesic/filedrop/classify"
	"github.com/poiesic/filedrop/config"
	"github.com/poiesic/filedrop/core"
	"github.com/poiesic/filedrop/ingestion"
	"github.com/poiesic/filedrop/telemetry"
	"github.com/poiesic/filedrop/transfer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const httpTimeout = 30 * time.Second

func ingestCommand(cfg *config.Config) cli.ActionFunc {
	return func(c *cli.Context) error {
		paths := c.Args().Slice()
		if len(paths) == 0 {
			return fmt.Errorf("at least one file is required")
		}
		if c.Int("concurrency") <= 0 {
			return fmt.Errorf("concurrency must be greater than 0")
		}
		if c.Int("max-retries") < 0 {
			return fmt.Errorf("max-retries cannot be negative")
		}

		ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
		defer stop()

		shutdown, err := telemetry.Init(ctx, slog.Default())
		if err != nil {
			return err
		}
		defer shutdown(context.Background())

		client, err := filedrop.Open(c.String("sessions"), filedrop.WithSessionTTL(cfg.SessionTTL))
		if err != nil {
			return fmt.Errorf("failed to open session database: %w", err)
		}
		defer client.Close()

		httpClient := &http.Client{
			Timeout:   httpTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}

		index, closeIndex, err := openIndex(ctx, c, cfg, httpClient)
		if err != nil {
			return err
		}
		defer closeIndex()

		endpoint, err := openEndpoint(ctx, c, cfg, httpClient)
		if err != nil {
			return err
		}

		opts := []ingestion.Option{
			ingestion.WithConcurrency(c.Int("concurrency")),
			ingestion.WithBatchPause(c.Duration("batch-pause")),
			ingestion.WithChunkSize(c.Int64("chunk-size")),
			ingestion.WithChunkTimeout(c.Duration("chunk-timeout")),
			ingestion.WithRetryPolicy(transfer.RetryPolicy{
				MaxRetries: c.Int("max-retries"),
				Backoff:    transfer.ExponentialBackoff(c.Duration("retry-delay"), max(c.Int("max-retries"), 1)),
			}),
			ingestion.WithMaxFileSize(cfg.MaxFileSize),
		}

		if path := c.String("candidates"); path != "" && c.String("scope") == "" {
			candidates, err := loadCandidates(path)
			if err != nil {
				return err
			}
			classifier, closeClassifier, err := newClassifier(c, cfg)
			if err != nil {
				return err
			}
			defer closeClassifier()
			opts = append(opts, ingestion.WithClassifier(classifier), ingestion.WithCandidates(candidates))
		}

		var registry *prometheus.Registry
		if c.String("metrics-file") != "" {
			registry = prometheus.NewRegistry()
			opts = append(opts, ingestion.WithMetrics(registry))
		}

		events := make(chan transfer.Progress)
		opts = append(opts, ingestion.WithProgress(events))

		pipeline, err := client.NewPipeline(index, endpoint, opts...)
		if err != nil {
			return fmt.Errorf("failed to create pipeline: %w", err)
		}
		defer pipeline.Release()

		tracker := ingestion.NewBatchProgress(c.App.ErrWriter, totalSize(paths), c.Int64("chunk-size"))
		tracker.Start()
		tracked := make(chan struct{})
		go func() {
			defer close(tracked)
			tracker.Track(events)
		}()

		files := make([]ingestion.File, len(paths))
		for i, p := range paths {
			abs, err := filepath.Abs(p)
			if err != nil {
				abs = p
			}
			files[i] = ingestion.File{Path: abs}
		}

		results, runErr := pipeline.Run(ctx, files, ingestion.RunOptions{ScopeID: c.String("scope")})
		close(events)
		<-tracked
		tracker.Finish()

		printResults(c.App.Writer, results)

		if registry != nil {
			if err := prometheus.WriteToTextfile(c.String("metrics-file"), registry); err != nil {
				slog.Error("failed to write metrics", "file", c.String("metrics-file"), "err", err)
			}
		}

		if errors.Is(runErr, context.Canceled) {
			fmt.Fprintln(c.App.ErrWriter, "Interrupted; run the same command again to resume.")
		}
		return exitStatus(results)
	}
}

// openIndex selects the duplicate catalog. Without one, duplicates are only
// detected within the batch.
func openIndex(ctx context.Context, c *cli.Context, cfg *config.Config, httpClient *http.Client) (catalog.Index, func(), error) {
	if dsn := c.String("catalog-dsn"); dsn != "" {
		idx, err := postgres.Open(ctx, dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open catalog: %w", err)
		}
		return idx, func() { idx.Close() }, nil
	}
	if url := c.String("catalog-url"); url != "" {
		opts := []catalog.HTTPOption{catalog.WithHTTPClient(httpClient)}
		if cfg.Catalog.Token != "" {
			opts = append(opts, catalog.WithBearerToken(cfg.Catalog.Token))
		}
		idx, err := catalog.NewHTTPIndex(url, opts...)
		if err != nil {
			return nil, nil, err
		}
		return idx, func() {}, nil
	}
	slog.Warn("no catalog configured, duplicates are only detected within this batch")
	return catalog.NewMemory(), func() {}, nil
}

func openEndpoint(ctx context.Context, c *cli.Context, cfg *config.Config, httpClient *http.Client) (transfer.Endpoint, error) {
	if url := c.String("endpoint"); url != "" {
		opts := []transfer.HTTPOption{
			transfer.WithHTTPClient(&http.Client{Transport: httpClient.Transport}),
		}
		if cfg.EndpointToken != "" {
			opts = append(opts, transfer.WithHeader("Authorization", "Bearer "+cfg.EndpointToken))
		}
		return transfer.NewHTTPEndpoint(url, opts...)
	}
	if bucket := c.String("s3-bucket"); bucket != "" {
		s3 := cfg.S3
		endpoint, err := transfer.OpenS3Endpoint(ctx, transfer.S3Config{
			Endpoint:  s3.Endpoint,
			AccessKey: s3.AccessKey,
			SecretKey: s3.SecretKey,
			Region:    s3.Region,
			Bucket:    bucket,
			Prefix:    s3.Prefix,
			UseSSL:    s3.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open bucket: %w", err)
		}
		return endpoint, nil
	}
	return nil, fmt.Errorf("either --endpoint or --s3-bucket is required")
}

// newClassifier builds the local engine, backed by the analysis service
// when --analysis-host is set.
func newClassifier(c *cli.Context, cfg *config.Config) (*classify.Classifier, func(), error) {
	engine, err := classify.NewEngine()
	if err != nil {
		return nil, nil, err
	}

	host := c.String("analysis-host")
	if host == "" {
		classifier, err := classify.NewClassifier(engine)
		return classifier, func() {}, err
	}

	aiOpts := []ai.ConfigOption{ai.WithHost(host)}
	if model := c.String("analysis-model"); model != "" {
		aiOpts = append(aiOpts, ai.WithModel(model))
	}
	if cfg.Analysis.Token != "" {
		aiOpts = append(aiOpts, ai.WithToken(cfg.Analysis.Token))
	}
	aiConfig := ai.NewConfig(aiOpts...)
	if err := aiConfig.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid analysis configuration: %w", err)
	}

	provider, err := openai.NewProvider(aiConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create analysis provider: %w", err)
	}
	classifier, err := classify.NewClassifier(engine, classify.WithAnalyzer(provider.ContentAnalyzer()))
	if err != nil {
		provider.Close()
		return nil, nil, err
	}
	return classifier, func() { provider.Close() }, nil
}

func loadCandidates(path string) ([]core.Candidate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read candidates: %w", err)
	}
	var candidates []core.Candidate
	if err := json.Unmarshal(data, &candidates); err != nil {
		return nil, fmt.Errorf("failed to parse candidates %s: %w", path, err)
	}
	for i, cand := range candidates {
		if cand.ID == "" || cand.Code == "" {
			return nil, fmt.Errorf("candidate %d: id and code are required", i)
		}
	}
	return candidates, nil
}

// totalSize sums the sizes of the paths that exist.
func totalSize(paths []string) int64 {
	var total int64
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			total += info.Size()
		}
	}
	return total
}

func printResults(w io.Writer, results []core.TransferResult) {
	for _, r := range results {
		switch r.Outcome {
		case core.OutcomeUploaded:
			fmt.Fprintf(w, "uploaded   %s record=%s", r.FileName, r.RecordID)
			if r.ScopeID != "" {
				fmt.Fprintf(w, " scope=%s", r.ScopeID)
			}
			if r.Classification != nil {
				fmt.Fprintf(w, " confidence=%d", r.Classification.Confidence)
			}
			fmt.Fprintln(w)
		case core.OutcomeDuplicate:
			fmt.Fprintf(w, "duplicate  %s existing=%s\n", r.FileName, r.ExistingRecordID)
		default:
			fmt.Fprintf(w, "failed     %s kind=%s: %s\n", r.FileName, r.ErrorKind, r.Message)
		}
	}
}

// exitStatus fails the command only when no file made it.
func exitStatus(results []core.TransferResult) error {
	for _, r := range results {
		if r.Succeeded() {
			return nil
		}
	}
	if len(results) == 0 {
		return nil
	}
	return cli.Exit(fmt.Sprintf("all %d files failed", len(results)), 1)
}
