package mcp

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Aman-CERP/addresolve/internal/address"
	"github.com/Aman-CERP/addresolve/internal/resolve"
)

// FormatBatchResult formats a batch result as markdown, in input order.
// Duplicate items are listed once.
func FormatBatchResult(items []string, res *resolve.BatchResult) string {
	ordered := distinct(items)
	if len(ordered) == 0 {
		return "No items to resolve."
	}

	counts := res.Counts()
	var sb strings.Builder
	sb.WriteString("## Resolution Results\n\n")
	sb.WriteString(fmt.Sprintf("Resolved %d of %d item", counts["resolved"], len(ordered)))
	if len(ordered) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")

	for i, item := range ordered {
		o, ok := res.Items[item]
		if !ok {
			continue
		}
		formatOutcome(&sb, i+1, item, o, res.Addresses)
	}

	return sb.String()
}

// formatOutcome formats a single item outcome.
func formatOutcome(sb *strings.Builder, num int, item string, o resolve.Outcome, addrs map[string]address.Address) {
	fmt.Fprintf(sb, "### %d. `%s`\n", num, item)

	if !o.Resolved() {
		fmt.Fprintf(sb, "**%s**", o.Err)
		if o.Message != "" {
			fmt.Fprintf(sb, ": %s", o.Message)
		}
		sb.WriteString("\n\n")
		return
	}

	addr := addrs[o.Data.AddressKey]
	fmt.Fprintf(sb, "**Resolved** via %s: %s\n", o.Data.Provider, addr.Value)
	fmt.Fprintf(sb, "- Key: `%s`\n", o.Data.AddressKey)
	if o.Data.UnitType != "" || o.Data.UnitName != "" {
		fmt.Fprintf(sb, "- Unit: %s %s\n", o.Data.UnitType, o.Data.UnitName)
	}
	if addr.Latitude != 0 || addr.Longitude != 0 {
		fmt.Fprintf(sb, "- Coordinates: %.6f, %.6f\n", addr.Latitude, addr.Longitude)
	}
	if len(addr.Overridden) > 0 {
		paths := make([]string, 0, len(addr.Overridden))
		for p := range addr.Overridden {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		fmt.Fprintf(sb, "- Overridden: %s\n", strings.Join(paths, ", "))
	}
	sb.WriteString("\n")
}

// FormatParse formats a parse_address result as markdown.
func FormatParse(raw string, out ParseOutput) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Parsed `%s`\n\n", raw)
	fmt.Fprintf(&sb, "**Address:** %s\n", out.Address)
	if !out.HasUnit {
		sb.WriteString("\nNo unit found.\n")
		return sb.String()
	}
	fmt.Fprintf(&sb, "**Unit type:** %s\n", out.UnitType)
	fmt.Fprintf(&sb, "**Unit name:** %s (`%s`)\n", out.UnitName, out.NormalizedName)
	return sb.String()
}

// FormatStats formats resolver_stats output as markdown.
func FormatStats(st StatsOutput) string {
	var sb strings.Builder
	sb.WriteString("## Resolver Status\n\n")
	if len(st.Providers) == 0 {
		sb.WriteString("**Providers:** none configured\n")
	} else {
		fmt.Fprintf(&sb, "**Providers:** %s\n", strings.Join(st.Providers, " → "))
	}
	fmt.Fprintf(&sb, "**Strategy:** %s (chunk size %d)\n\n", st.DefaultStrategy, st.ChunkSize)

	m := st.Metrics
	fmt.Fprintf(&sb, "### Session\n\n%d batches, %d items, %.1f%% resolved\n\n",
		m.TotalBatches, m.TotalItems, m.ResolutionRate)

	if len(m.Providers) > 0 {
		sb.WriteString("| Provider | Calls | Hits | Errors |\n|---|---|---|---|\n")
		for _, name := range sortedKeys(m.Providers) {
			p := m.Providers[name]
			fmt.Fprintf(&sb, "| %s | %d | %d | %d |\n", name, p.Calls, p.Hits, p.Errors)
		}
		sb.WriteString("\n")
	}

	if len(m.TopNotFound) > 0 {
		sb.WriteString("### Most Frequent Unresolved\n\n")
		for _, q := range m.TopNotFound {
			fmt.Fprintf(&sb, "- %s (%d)\n", q.Query, q.Count)
		}
		sb.WriteString("\n")
	}

	if len(st.Cache) > 0 {
		sb.WriteString("### Cache\n\n")
		for _, name := range sortedKeys(st.Cache) {
			c := st.Cache[name]
			fmt.Fprintf(&sb, "- %s: %d hits, %d misses, %d entries\n", name, c.Hits, c.Misses, c.Entries)
		}
	}
	return sb.String()
}

func distinct(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		if _, ok := seen[it]; ok {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
