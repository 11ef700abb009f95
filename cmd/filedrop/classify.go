package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/poiesic/filedrop/config"
	"github.com/poiesic/filedrop/core"
	"github.com/poiesic/filedrop/ingestion"
	"github.com/urfave/cli/v2"
)

// rankedShown is how many ranked candidates are printed per file.
const rankedShown = 3

func classifyCommand(cfg *config.Config) cli.ActionFunc {
	return func(c *cli.Context) error {
		paths := c.Args().Slice()
		if len(paths) == 0 {
			return fmt.Errorf("at least one file is required")
		}

		candidates, err := loadCandidates(c.String("candidates"))
		if err != nil {
			return err
		}
		classifier, closeClassifier, err := newClassifier(c, cfg)
		if err != nil {
			return err
		}
		defer closeClassifier()

		w := c.App.Writer
		for _, path := range paths {
			name := filepath.Base(path)
			sample, err := readSample(path, ingestion.DefaultSampleSize)
			if err != nil {
				fmt.Fprintf(w, "%s: %v\n", name, err)
				continue
			}
			mimeType := mimetype.Detect(sample).String()

			result, err := classifier.Classify(c.Context, name, mimeType, sample, candidates)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s (%s): %s\n", name, mimeType, describe(result))

			ranked := classifier.Rank(name, mimeType, sample, candidates)
			for _, r := range ranked[:min(rankedShown, len(ranked))] {
				fmt.Fprintf(w, "  %3d  %s  %v\n", r.Confidence, r.TargetID, r.Reasons)
			}
		}
		return nil
	}
}

func describe(r *core.ClassificationResult) string {
	if r == nil {
		return "no confident match"
	}
	source := "content"
	switch {
	case r.FromAnalysis:
		source = "analysis"
	case r.FromFilename:
		source = "file name"
	}
	return fmt.Sprintf("%s at %d by %s", r.TargetID, r.Confidence, source)
}

func readSample(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, n)
	read, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:read], nil
}
