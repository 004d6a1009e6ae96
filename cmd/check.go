package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/app"
	"github.com/JakeFAU/pagewatch/internal/hash/sha256"
	"github.com/JakeFAU/pagewatch/internal/monitor"
	"github.com/JakeFAU/pagewatch/internal/normalizer"
)

type checkOutput struct {
	URL          string          `json:"url"`
	StatusCode   int             `json:"status_code"`
	ContentHash  string          `json:"content_hash"`
	UsedHeadless bool            `json:"used_headless"`
	DurationMs   int64           `json:"duration_ms"`
	Verdict      monitor.Verdict `json:"verdict"`
}

func newCheckCmd() *cobra.Command {
	var previousFile string
	cmd := &cobra.Command{
		Use:   "check <url>",
		Short: "Fetches a page once and classifies it against an optional previous copy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			fetcher, browser, err := app.NewFetcher(rt.cfg, rt.logger.Named("fetcher"))
			if err != nil {
				return err
			}
			if browser != nil {
				defer browser.Close()
			}

			resp, err := fetcher.Fetch(cmd.Context(), monitor.FetchRequest{
				URL:     args[0],
				Timeout: rt.cfg.FetchTimeout(),
			})
			if err != nil {
				return fmt.Errorf("fetch %s: %w", args[0], err)
			}
			if resp.StatusCode >= 400 {
				return fmt.Errorf("fetch %s: unexpected status %d", args[0], resp.StatusCode)
			}

			norm := normalizer.New()
			hasher := sha256.New()
			raw := string(resp.Body)
			currentHash, err := hasher.Hash(resp.Body)
			if err != nil {
				return fmt.Errorf("hash body: %w", err)
			}

			var prev *monitor.Snapshot
			if previousFile != "" {
				prevRaw, err := os.ReadFile(previousFile)
				if err != nil {
					return fmt.Errorf("read previous: %w", err)
				}
				prevHash, err := hasher.Hash(prevRaw)
				if err != nil {
					return fmt.Errorf("hash previous: %w", err)
				}
				prev = &monitor.Snapshot{
					ContentHash:       prevHash,
					RawContent:        string(prevRaw),
					NormalizedContent: norm.Normalize(string(prevRaw)),
					FirstSeenAt:       time.Now().UTC(),
				}
			}

			var verdict monitor.Verdict
			if prev != nil && prev.ContentHash == currentHash {
				verdict = monitor.Verdict{
					Type:        monitor.ChangeNone,
					Priority:    monitor.PriorityInfo,
					Similarity:  1,
					Description: "content unchanged",
				}
			} else {
				verdict = app.NewClassifier(rt.cfg, rt.logger.Named("classifier")).Classify(prev, raw, norm.Normalize(raw))
			}
			rt.logger.Debug("check classified", zap.String("url", args[0]), zap.Bool("has_changed", verdict.HasChanged))

			out := checkOutput{
				URL:          resp.URL,
				StatusCode:   resp.StatusCode,
				ContentHash:  currentHash,
				UsedHeadless: resp.UsedHeadless,
				DurationMs:   resp.Duration.Milliseconds(),
				Verdict:      verdict,
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				return fmt.Errorf("write result: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&previousFile, "previous", "", "HTML file holding the previous version of the page")
	return cmd
}
