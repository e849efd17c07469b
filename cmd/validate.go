// File: cmd/validate.go
// Description: Checks the configured provider credential with one minimal
// live generation call.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/loupe-sh/loupe-cli/api/schemas"
	"github.com/loupe-sh/loupe-cli/internal/config"
	"github.com/loupe-sh/loupe-cli/internal/llmclient"
	"github.com/loupe-sh/loupe-cli/internal/observability"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validates the configured API key against the active provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}

			credential := cfg.LLM.Gemini.APIKey
			if cfg.LLM.Provider == schemas.ProviderGateway {
				credential = cfg.LLM.Gateway.APIKey
			}
			if credential == "" {
				return fmt.Errorf("no API key configured for provider %q", cfg.LLM.Provider)
			}

			facade := llmclient.NewFacade(cfg.LLM, observability.GetLogger())
			if !facade.ValidateAPIKey(cmd.Context(), cfg.LLM.Provider, credential) {
				return fmt.Errorf("provider %q rejected the configured API key", cfg.LLM.Provider)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "API key for provider %q is valid.\n", cfg.LLM.Provider)
			return nil
		},
	}
}
