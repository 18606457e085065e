package cmd

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/addresolve/internal/output"
	"github.com/Aman-CERP/addresolve/internal/provider"
	"github.com/Aman-CERP/addresolve/internal/telemetry"
)

// statsReport is the persisted telemetry for a date range.
type statsReport struct {
	From        string                            `json:"from"`
	To          string                            `json:"to"`
	Outcomes    map[string]int64                  `json:"outcomes"`
	Latency     map[telemetry.LatencyBucket]int64 `json:"latency"`
	TopNotFound []telemetry.QueryCount            `json:"top_not_found"`
}

func newStatsCmd() *cobra.Command {
	var (
		days       int
		top        int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show persisted resolution statistics",
		Long: `Show resolution outcomes, latency and the most frequent unresolved
queries recorded in the known-address database (providers.stored.path).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Providers.Stored.Path == "" {
				return fmt.Errorf("no known-address database configured (providers.stored.path)")
			}

			store, err := provider.OpenStore(cfg.Providers.Stored.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			ms, err := telemetry.NewSQLiteMetricsStore(store.DB())
			if err != nil {
				return err
			}
			report, err := loadStats(ms, days, top, time.Now())
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			printStats(output.New(cmd.OutOrStdout()), report)
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 7, "Number of days to include")
	cmd.Flags().IntVar(&top, "top", 10, "Number of unresolved queries to list")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func loadStats(ms telemetry.MetricsStore, days, top int, now time.Time) (*statsReport, error) {
	if days < 1 {
		days = 1
	}
	r := &statsReport{
		From: now.AddDate(0, 0, -(days - 1)).Format("2006-01-02"),
		To:   now.Format("2006-01-02"),
	}

	var err error
	if r.Outcomes, err = ms.GetOutcomeCounts(r.From, r.To); err != nil {
		return nil, err
	}
	if r.Latency, err = ms.GetLatencyCounts(r.From, r.To); err != nil {
		return nil, err
	}
	if r.TopNotFound, err = ms.GetTopNotFound(top); err != nil {
		return nil, err
	}
	return r, nil
}

func printStats(out *output.Writer, r *statsReport) {
	out.Statusf("📊", "Resolution statistics %s .. %s", r.From, r.To)

	var total int64
	keys := make([]string, 0, len(r.Outcomes))
	for k, n := range r.Outcomes {
		keys = append(keys, k)
		total += n
	}
	sort.Strings(keys)
	if total == 0 {
		out.Status("", "no batches recorded")
		return
	}
	for _, k := range keys {
		n := r.Outcomes[k]
		out.KeyValue(k, fmt.Sprintf("%d (%.1f%%)", n, float64(n)/float64(total)*100))
	}

	if len(r.TopNotFound) > 0 {
		out.Newline()
		out.Status("🔎", "Most frequent unresolved:")
		for _, q := range r.TopNotFound {
			out.Statusf("", "%5d  %s", q.Count, q.Query)
		}
	}
}
