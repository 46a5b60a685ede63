package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stoik/phish-catcher/internal/config"
	"github.com/stoik/phish-catcher/internal/domain/detection"
)

func newScoreCmd() *cobra.Command {
	cfg := config.Load()
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "score [domain...]",
		Short: "Score domains given as arguments, or one per line on stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			scoringCtx, err := config.LoadScoringContext(cfg.SuspiciousPath, cfg.ExternalPath)
			if err != nil {
				return fmt.Errorf("failed to load scoring context: %w", err)
			}
			scorer := detection.NewScorer(scoringCtx)

			if len(args) > 0 {
				return scoreAll(cmd.OutOrStdout(), scorer, args, asJSON)
			}
			var names []string
			scanner := bufio.NewScanner(cmd.InOrStdin())
			for scanner.Scan() {
				if name := strings.TrimSpace(scanner.Text()); name != "" {
					names = append(names, name)
				}
			}
			if err := scanner.Err(); err != nil {
				return err
			}
			return scoreAll(cmd.OutOrStdout(), scorer, names, asJSON)
		},
	}

	cmd.Flags().StringVar(&cfg.SuspiciousPath, "suspicious", cfg.SuspiciousPath, "Base keyword/TLD configuration")
	cmd.Flags().StringVar(&cfg.ExternalPath, "external", cfg.ExternalPath, "Override keyword/TLD configuration")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print one JSON result per line with every signal")

	return cmd
}

func scoreAll(out io.Writer, scorer *detection.Scorer, names []string, asJSON bool) error {
	enc := json.NewEncoder(out)
	for _, name := range names {
		result := scorer.Analyze(strings.ToLower(name))
		if asJSON {
			if err := enc.Encode(result); err != nil {
				return err
			}
			continue
		}
		if _, err := fmt.Fprintf(out, "%d\t%s\t%s\n", result.Score, result.Level, name); err != nil {
			return err
		}
	}
	return nil
}
