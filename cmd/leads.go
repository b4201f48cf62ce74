package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/leadscout/internal/scorer"
)

var leadsCmd = &cobra.Command{
	Use:   "leads <search-id>",
	Short: "List a search's leads with scores",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("migrate"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if _, err := st.GetSearch(ctx, args[0]); err != nil {
			return eris.Wrap(err, "leads")
		}
		leads, err := st.ListLeads(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "list leads")
		}
		if len(leads) == 0 {
			fmt.Fprintln(os.Stderr, "No leads found.")
			return nil
		}
		sortByScore(leads)

		explain, _ := cmd.Flags().GetBool("explain")
		if !explain {
			formatLeads(os.Stdout, leads)
			return nil
		}
		for _, l := range leads {
			formatBreakdown(os.Stdout, l, scorer.Explain(scorer.InputFromLead(l)))
		}
		return nil
	},
}

func init() {
	leadsCmd.Flags().Bool("explain", false, "print the score checklist for each lead")
	rootCmd.AddCommand(leadsCmd)
}
