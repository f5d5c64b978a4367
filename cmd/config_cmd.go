package main

import (
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/valuation-console/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long:  "Prints configuration after defaults, config.yaml and VALUATION_* environment overrides are applied.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return printConfig(os.Stdout, cfg)
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func printConfig(w io.Writer, c *config.Config) error {
	out := *c
	out.Property.Regions = c.Regions().All()

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return eris.Wrap(err, "encode config")
	}
	return enc.Close()
}
