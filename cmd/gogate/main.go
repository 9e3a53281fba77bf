// Command gogate runs the request gate as a standalone HTTP server and manages
// its app-state schedule, role assignments and tokens from the shell.
//
//	gogate serve --config gogate.yaml
//	gogate state schedule --state IN_MAINTENANCE --at 2026-11-01T02:00:00Z
//	gogate token --principal u1 --attr name=Ada
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/MrEthical07/goGate/logging"
	"github.com/spf13/cobra"
)

// cliState is shared by every subcommand once the root pre-run loaded the
// configuration.
type cliState struct {
	configPath string
	cfg        *appConfig
}

func newRootCmd() *cobra.Command {
	st := &cliState{}
	root := &cobra.Command{
		Use:           "gogate",
		Short:         "Authentication, authorization and app-state gate for HTTP APIs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(st.configPath)
			if err != nil {
				return err
			}
			if cfg.Logging.Output == nil {
				cfg.Logging.Output = cmd.ErrOrStderr()
			}
			logging.Init(cfg.Logging)
			st.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&st.configPath, "config", "c", "", "path to a YAML config file")

	root.AddCommand(
		newServeCmd(st),
		newStateCmd(st),
		newRolesCmd(st),
		newTokenCmd(st),
	)
	return root
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "gogate:", err)
		os.Exit(1)
	}
}
