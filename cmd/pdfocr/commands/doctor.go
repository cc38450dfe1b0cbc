package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/local/pdfocr/internal/statuscheck"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check credentials, MuPDF and the configured Redis and S3 backends",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := openBackends(ctx, false)
		if err != nil {
			return err
		}
		defer env.Close()

		sum := env.checker().Summary(ctx)
		printSummary(cmd, sum)
		return sum.Ready()
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func printSummary(cmd *cobra.Command, sum statuscheck.Summary) {
	named := sum.Named()
	for _, name := range statuscheck.Order {
		st := named[name]
		mark := "ok"
		switch {
		case !st.OK && st.Required:
			mark = "FAIL"
		case !st.OK:
			mark = "warn"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%-10s %-5s %s\n", name, mark, st.Message)
	}
}
