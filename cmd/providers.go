package cmd

import (
	"fmt"

	"github.com/khanhnv2901/cmpscan/internal/catalog"
	"github.com/khanhnv2901/cmpscan/internal/report"
	"github.com/spf13/cobra"
)

var providersFormat = string(report.FormatText)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List the consent management platforms and cookies cmpscan recognizes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := report.ParseFormat(providersFormat)
		if err != nil {
			return err
		}
		cat, err := catalog.Default()
		if err != nil {
			return fmt.Errorf("load catalog: %w", err)
		}
		writer, err := report.NewWriter(format, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		return writer.WriteCatalog(cat)
	},
}

func init() {
	providersCmd.Flags().StringVarP(&providersFormat, "format", "f", providersFormat, "Output format: text, markdown or json")
}
