package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dicteo/dicteo/internal/config"
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Write a starter configuration file",
	Long: `Write a configuration file with defaults to the config path.
Existing settings are preserved; edit the file afterwards to set the
transcription provider API key.`,
	RunE: runConfigure,
}

func init() {
	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)

	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	path, err := loader.Path()
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Configuration saved to: %s\n", path)
	if cfg.Deepgram.APIKey == "" {
		fmt.Fprintln(cmd.OutOrStdout(), "Set deepgram.api_key (or DICTEO_DEEPGRAM_API_KEY) before serving.")
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Start the server with: dicteo serve")
	return nil
}
