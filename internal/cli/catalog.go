package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/cuongbtq/analysis-console/internal/analysis/domain"
	"github.com/cuongbtq/analysis-console/internal/symbols"
	"github.com/spf13/cobra"
)

// SymbolsCmd lists symbols matching an optional prefix
func SymbolsCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "symbols [prefix]",
		Short: "Search the symbol list by ticker prefix or sector",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var query string
			if len(args) == 1 {
				query = args[0]
			}

			svc := symbols.NewService(a.backend, &symbols.Config{Logger: a.logger})
			list, err := svc.Search(cmd.Context(), query, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "No symbols found")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "SYMBOL\tSECTORS")
			for _, s := range list {
				fmt.Fprintf(tw, "%s\t%s\n", s.Symbol, strings.Join(s.Sectors, ", "))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", symbols.DefaultLimit, "Maximum number of symbols to show")
	return cmd
}

// ModesCmd prints the recognized analysis modes
func ModesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "modes",
		Short: "List analysis modes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "MODE\tNAME\tFREQUENCY")
			for _, m := range domain.Modes() {
				freq := "annual, quarterly"
				if m.IsAggregate() {
					freq = "all"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", m, m.DisplayName(), freq)
			}
			return tw.Flush()
		},
	}
}
