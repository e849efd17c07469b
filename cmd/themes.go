// File: cmd/themes.go
// Description: Quick theme extraction over a transcript, with optional
// per-theme analysis. A lightweight alternative to the full pipeline.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/loupe-sh/loupe-cli/internal/config"
	"github.com/loupe-sh/loupe-cli/internal/observability"
)

func newThemesCmd() *cobra.Command {
	var (
		transcriptPath string
		expand         bool
	)

	themesCmd := &cobra.Command{
		Use:   "themes",
		Short: "Extracts the top-level themes from a transcript",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}

			facade, err := initializedFacade(cfg, logger)
			if err != nil {
				return err
			}

			transcript, err := readTranscript(transcriptPath)
			if err != nil {
				return err
			}

			// Theme extraction never fails; the facade degrades to a generic
			// theme set when the model response is unusable.
			themes := facade.GenerateThemes(ctx, transcript, "")

			out := cmd.OutOrStdout()
			for _, theme := range themes {
				fmt.Fprintf(out, "- %s\n", theme)
				if !expand {
					continue
				}
				analysis, err := facade.AnalyzeTheme(ctx, transcript, theme, "")
				if err != nil {
					logger.Warn("Theme analysis failed.", zap.String("theme", theme), zap.Error(err))
					continue
				}
				fmt.Fprintf(out, "\n%s\n\n", analysis)
			}
			return nil
		},
	}

	themesCmd.Flags().StringVarP(&transcriptPath, "transcript", "t", "", "path to the transcript file (required)")
	themesCmd.Flags().BoolVar(&expand, "expand", false, "analyze each extracted theme")
	_ = themesCmd.MarkFlagRequired("transcript")

	return themesCmd
}
