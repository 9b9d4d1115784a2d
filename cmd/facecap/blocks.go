package main

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/banshee-data/facecap/internal/blocks"
	"github.com/banshee-data/facecap/internal/monitoring"
	"github.com/banshee-data/facecap/internal/security"
)

func newBlocksCmd() *cobra.Command {
	var (
		height float64
		heads  float64
		png    string
	)
	cmd := &cobra.Command{
		Use:   "blocks",
		Short: "Generate heads-tall proportion blocks",
		Long: `Lays out a column of head-sized blocks as tall as the figure, a
column of quarter-height blocks and a row of head blocks at head height.
Prints the layout as JSON; --png also renders a front view. A --png
directory gets a file named after the layout. Output must stay under the
working directory or the temp directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			layout, err := blocks.Generate(height, heads)
			if err != nil {
				return err
			}
			if png != "" {
				if info, err := os.Stat(png); err == nil && info.IsDir() {
					png = filepath.Join(png, security.SanitizeFilename(layout.Name)+".png")
				}
				if err := security.ValidateOutputPath(png); err != nil {
					return err
				}
				if err := blocks.RenderPNG(layout, png); err != nil {
					return err
				}
				monitoring.Named("blocks").Info("wrote front view", zap.String("path", png))
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(layout)
		},
	}
	cmd.Flags().Float64Var(&height, "height", 170, "figure height in centimetres")
	cmd.Flags().Float64Var(&heads, "heads", 7, "figure height in heads")
	cmd.Flags().StringVar(&png, "png", "", "write a PNG front view to this path")
	return cmd
}
