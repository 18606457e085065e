package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/addresolve/internal/output"
	"github.com/Aman-CERP/addresolve/internal/unit"
)

// parseResult is the JSON shape of 'addresolve parse'.
type parseResult struct {
	unit.Parsed
	NormalizedName string `json:"normalized_name,omitempty"`
}

func newParseCmd() *cobra.Command {
	var (
		language   string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "parse <address>",
		Short: "Split an address into its house and unit parts",
		Long: `Split an address into the part used for searching and the unit
suffix, without calling any provider.

Examples:
  addresolve parse "ул. Ленина, д. 5, кв. 12А"
  addresolve parse --language en "12 Baker Street, building 3, flat 4B"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := strings.Join(args, " ")
			if language == "" {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				language = cfg.Resolver.Language
			}
			p := unit.NewParser(unit.DictionaryFor(language))

			res := parseResult{Parsed: p.Parse(raw)}
			if res.UnitName != "" {
				res.NormalizedName = p.NormalizeUnitName(res.UnitName)
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}

			out := output.New(cmd.OutOrStdout())
			out.KeyValue("address", res.Address)
			if !res.HasUnit() {
				out.Status("", "no unit found")
				return nil
			}
			out.KeyValue("unit type", res.UnitType)
			out.KeyValue("unit name", fmt.Sprintf("%s (%s)", res.UnitName, res.NormalizedName))
			return nil
		},
	}

	cmd.Flags().StringVarP(&language, "language", "l", "", "Unit keyword dictionary: ru, en (default from config)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}
