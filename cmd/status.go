package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/leadscout/internal/model"
	"github.com/sells-group/leadscout/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status [search-id]",
	Short: "Show a search's progress, or list recent searches",
	Args:  cobra.MaximumNArgs(1),
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

		asJSON, _ := cmd.Flags().GetBool("json")

		if len(args) == 1 {
			sr, err := st.GetSearch(ctx, args[0])
			if err != nil {
				return eris.Wrap(err, "status")
			}
			v := sr.View()
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(v)
			}
			formatStatus(os.Stdout, &v)
			return nil
		}

		user, _ := cmd.Flags().GetString("user")
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		searches, err := st.ListSearches(ctx, store.SearchFilter{
			UserID: user,
			Status: model.SearchStatus(status),
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "list searches")
		}
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(searches)
		}
		if len(searches) == 0 {
			fmt.Fprintln(os.Stderr, "No searches found.")
			return nil
		}
		formatSearches(os.Stdout, searches)
		return nil
	},
}

func init() {
	statusCmd.Flags().String("user", "", "only searches owned by this user")
	statusCmd.Flags().String("status", "", "filter by status (processing, completed, failed)")
	statusCmd.Flags().Int("limit", 20, "maximum searches to list")
	statusCmd.Flags().Bool("json", false, "print JSON instead of a table")
	rootCmd.AddCommand(statusCmd)
}
