package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"firestige.xyz/avbstream/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Validate a configuration file and print the effective configuration,
defaults and AVBSTREAM_* environment overrides included, as YAML.

Examples:
  avbstream validate -c /etc/avbstream/config.yml`,
	Args: cobra.NoArgs,
	// validate loads the file itself and reports errors as INVALID.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		runValidateCommand()
	},
}

func runValidateCommand() {
	c, err := config.Load(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "INVALID: %v\n", err)
		os.Exit(1)
	}

	out, err := yaml.Marshal(struct {
		AVBStream *config.Config `yaml:"avbstream"`
	}{c})
	if err != nil {
		exitWithError("failed to render config", err)
	}
	fmt.Print(string(out))
}
