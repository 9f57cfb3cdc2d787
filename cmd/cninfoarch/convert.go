package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cninfoarch/internal/convert"
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert archived documents to markdown",
	Long: "Walks the archive directory and extracts every PDF and HTML document " +
		"into a markdown file under the output directory, mirroring the layout. " +
		"PDF extraction requires the pdftotext utility from poppler-utils.",
	RunE: runConvert,
}

var (
	convertSrc string
	convertOut string
)

func init() {
	convertCmd.Flags().StringVar(&convertSrc, "src", "downloads", "Archive directory to convert")
	convertCmd.Flags().StringVar(&convertOut, "out", "processed", "Output directory for markdown files")
	rootCmd.AddCommand(convertCmd)
}

func runConvert(cmd *cobra.Command, _ []string) error {
	res, err := convert.Run(cmd.Context(), convertSrc, convertOut, nil)
	if err != nil {
		return err
	}
	fmt.Printf("Converted %d documents (%d failed, %d skipped)\n", res.Converted, res.Failed, res.Skipped)
	return nil
}
