package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var contactCmd = &cobra.Command{
	Use:   "contact",
	Short: "Contact provider utilities",
}

var contactVerifyCmd = &cobra.Command{
	Use:   "verify <email>",
	Short: "Check deliverability of an email address (uses a metered credit)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("verify"); err != nil {
			return err
		}

		finder := newFinder()
		v, err := finder.Verify(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		zap.L().Info("email verified",
			zap.String("email", v.Email),
			zap.String("status", v.Status),
			zap.Int64("verifications_used", finder.VerificationsUsed()),
		)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintf(w, "Email:\t%s\n", v.Email)
		_, _ = fmt.Fprintf(w, "Status:\t%s\n", v.Status)
		_, _ = fmt.Fprintf(w, "Result:\t%s\n", v.Result)
		_, _ = fmt.Fprintf(w, "Score:\t%d\n", v.Score)
		_, _ = fmt.Fprintf(w, "Deliverable:\t%t\n", v.Deliverable())
		return w.Flush()
	},
}

func init() {
	contactCmd.AddCommand(contactVerifyCmd)
	rootCmd.AddCommand(contactCmd)
}
