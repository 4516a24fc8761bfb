package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kstaniek/go-mcp2518fd/internal/chipconfig"
	"github.com/kstaniek/go-mcp2518fd/internal/mcp2518fd"
)

func (a *app) newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the chip configuration as TOML",
		Long: `Print the built-in chip configuration as TOML, a starting point for --config.
With --config the file is validated and printed back in canonical form.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := chipconfig.Default()
			if a.chipConfig != "" {
				data, err := os.ReadFile(a.chipConfig)
				if err != nil {
					return err
				}
				if f, err = chipconfig.Decode(data); err != nil {
					return err
				}
			}
			cfg, err := f.Build()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "# message RAM: %d of %d bytes\n", cfg.RAMUsage(), mcp2518fd.RAMSize)
			return chipconfig.Encode(w, f)
		},
	}
}
