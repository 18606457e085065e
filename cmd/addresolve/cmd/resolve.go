package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/addresolve/internal/output"
	"github.com/Aman-CERP/addresolve/internal/profiling"
	"github.com/Aman-CERP/addresolve/internal/provider"
	"github.com/Aman-CERP/addresolve/internal/resolve"
	"github.com/Aman-CERP/addresolve/internal/telemetry"
)

// resolveOptions holds CLI flags for resolve.
type resolveOptions struct {
	file        string
	strategy    string
	extractUnit bool
	tenant      string
	language    string
	format      string // "text", "json"
	stats       bool
	profileDir  string
}

func newResolveCmd() *cobra.Command {
	var opts resolveOptions

	cmd := &cobra.Command{
		Use:   "resolve [address...]",
		Short: "Resolve addresses to canonical records",
		Long: `Resolve one or more free-form addresses.

Items come from the arguments, or one per line from --file ("-" reads
stdin). Duplicates are resolved once. Every item ends up either resolved
or with one of NOT_FOUND, NO_PROVIDERS, PROVIDER_ERROR.

Examples:
  addresolve resolve "г. Москва, ул. Ленина, д. 5, кв. 12"
  addresolve resolve --file addresses.txt --strategy per-provider
  cat addresses.txt | addresolve resolve --file - --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			extractSet := cmd.Flags().Changed("extract-unit")
			return runResolve(cmd, args, opts, extractSet)
		},
	}

	cmd.Flags().StringVarP(&opts.file, "file", "i", "", "Read items from a file, one per line (- for stdin)")
	cmd.Flags().StringVarP(&opts.strategy, "strategy", "s", "", "Batch strategy: per-item, per-provider (default from config)")
	cmd.Flags().BoolVar(&opts.extractUnit, "extract-unit", true, "Split unit suffixes off before searching")
	cmd.Flags().StringVar(&opts.tenant, "tenant", "", "Tenant whose stored addresses are searched first")
	cmd.Flags().StringVarP(&opts.language, "language", "l", "", "Address language passed to providers (default from config)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.stats, "stats", false, "Print provider and latency statistics after the results")
	cmd.Flags().StringVar(&opts.profileDir, "profile", "", "Write CPU and heap profiles of the batch into this directory")

	return cmd
}

func runResolve(cmd *cobra.Command, args []string, opts resolveOptions, extractSet bool) error {
	if opts.format != "text" && opts.format != "json" {
		return fmt.Errorf("invalid format %q (valid: text, json)", opts.format)
	}

	items := append([]string(nil), args...)
	if opts.file != "" {
		fromFile, err := readItems(cmd.InOrStdin(), opts.file)
		if err != nil {
			return err
		}
		items = append(items, fromFile...)
	}
	if len(items) == 0 {
		return fmt.Errorf("no addresses given: pass them as arguments or use --file")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	extract := cfg.Resolver.ExtractUnit
	if extractSet {
		extract = opts.extractUnit
	}
	lang := opts.language
	if lang == "" {
		lang = cfg.Resolver.Language
	}

	ctx := cmd.Context()
	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			slog.Warn("close_failed", slog.String("error", cerr.Error()))
		}
	}()

	var prof *profiling.Session
	if opts.profileDir != "" {
		if prof, err = profiling.Start(opts.profileDir); err != nil {
			return err
		}
		defer func() { _ = prof.Stop() }()
	}

	start := time.Now()
	res, err := a.engine.ResolveBatch(ctx, items, resolve.Options{
		Strategy:    opts.strategy,
		ExtractUnit: extract,
		Scope: provider.Scope{
			TenantID: opts.tenant,
			Language: lang,
		},
	})
	if err != nil {
		return err
	}
	elapsed := time.Since(start)
	if prof != nil {
		if err := prof.Stop(); err != nil {
			return err
		}
		slog.Info("profile_written",
			slog.String("dir", prof.Dir()),
			slog.String("heap_in_use", profiling.FormatBytes(profiling.HeapInUse())))
	}

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	out := output.New(cmd.OutOrStdout())
	printResults(out, items, res)
	out.Newline()
	counts := res.Counts()
	out.Statusf("📊", "Resolved %d of %d in %s", counts["resolved"], len(res.Items), elapsed.Round(time.Millisecond))

	if opts.stats {
		out.Newline()
		printSnapshot(out, a.metrics.Snapshot(), a.set.CacheStats())
	}
	return nil
}

// readItems reads non-blank lines from path, or from stdin when path is "-".
func readItems(stdin io.Reader, path string) ([]string, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}

	var items []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		items = append(items, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return items, nil
}

// printResults prints one outcome per distinct item in input order.
func printResults(out *output.Writer, items []string, res *resolve.BatchResult) {
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		if seen[item] {
			continue
		}
		seen[item] = true

		o, ok := res.Items[item]
		if !ok {
			continue
		}
		if !o.Resolved() {
			out.Outcome(item, string(o.Err), o.Message)
			continue
		}
		detail := fmt.Sprintf("%s: %s", o.Data.Provider, res.Addresses[o.Data.AddressKey].Value)
		if o.Data.UnitType != "" {
			detail += fmt.Sprintf(" [%s %s]", o.Data.UnitType, o.Data.UnitName)
		}
		out.Outcome(item, "resolved", detail)
	}
}

// printSnapshot prints session telemetry.
func printSnapshot(out *output.Writer, snap *telemetry.Snapshot, cache map[string]provider.CacheStats) {
	out.Status("📈", "Providers:")
	names := make([]string, 0, len(snap.Providers))
	for name := range snap.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p := snap.Providers[name]
		out.KeyValue(name, fmt.Sprintf("%d calls, %d hits, %d errors", p.Calls, p.Hits, p.Errors))
	}

	if len(snap.LatencyDistribution) > 0 {
		out.Status("⏱️ ", "Latency:")
		for _, b := range []telemetry.LatencyBucket{
			telemetry.BucketP10, telemetry.BucketP50, telemetry.BucketP100, telemetry.BucketP500, telemetry.BucketP1000,
		} {
			if n := snap.LatencyDistribution[b]; n > 0 {
				out.KeyValue(string(b), n)
			}
		}
	}

	if len(cache) > 0 {
		out.Status("💾", "Cache:")
		for name, c := range cache {
			out.KeyValue(name, fmt.Sprintf("%d hits, %d misses, %d entries", c.Hits, c.Misses, c.Entries))
		}
	}
}
