package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/local/pdfocr/internal/source"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the PDFs in INPUT_DIR",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := source.ListPDFs(cfg.Paths.InputDir)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(files) == 0 {
			fmt.Fprintf(out, "No PDF files found in %s\n", cfg.Paths.InputDir)
			return nil
		}
		fmt.Fprintf(out, "PDF files in %s:\n", cfg.Paths.InputDir)
		for i, f := range files {
			fmt.Fprintf(out, "%3d. %s\n", i+1, f)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
