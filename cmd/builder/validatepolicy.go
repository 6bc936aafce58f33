package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/moduleforge/builder/internal/config"
)

func newValidatePolicyCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "validate-policy",
		Short: "Loads and validates a config.yaml without starting any server",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := config.Load(configPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d profile(s), %d route(s)\n", len(f.Profiles), len(f.Routes))
			for name, p := range f.Profiles {
				fmt.Fprintf(cmd.OutOrStdout(), "  profile %q: backend=%s network=%s max_repair_attempts=%d\n",
					name, p.Backend, p.Network, p.MaxRepairAttempts)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "/etc/builder/config.yaml", "path to config.yaml")
	return cmd
}
