package cli

import (
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/atelier/internal/app"
	"github.com/aussiebroadwan/atelier/internal/devserver"
	"github.com/aussiebroadwan/atelier/pkg/httpx"
	"github.com/aussiebroadwan/atelier/pkg/slogx"
)

func newDevServerCmd(e *env) *cobra.Command {
	var host string
	var port int
	var seed bool

	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Run a local in-memory backend for development",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("port") {
				port = e.cfg.DevServerPort
			}

			logger := slogx.New(slogx.Config{
				Service: "atelier-devserver",
				Version: app.BuildVersion,
				Env:     e.cfg.Env,
				Level:   e.cfg.LogLevel,
				Format:  e.cfg.LogFormat,
				Output:  e.errOut,
			})

			srv, err := devserver.New(devserver.Config{
				TokenTTL:    e.cfg.DevServerTokenTTL,
				AdminSecret: e.cfg.DevServerSecret,
				Seed:        seed,
				LoginLimit:  httpx.PerMinute(e.cfg.DevServerLoginRPM),
			}, logger)
			if err != nil {
				return err
			}

			addr := net.JoinHostPort(host, strconv.Itoa(port))
			fmt.Fprintf(e.out, "Dev backend on http://%s/api\n", addr)
			if seed {
				fmt.Fprintf(e.out, "Seeded accounts (password %s):\n  %s\n  %s\n  %s\n",
					devserver.SeedPassword, devserver.SuperAdminEmail, devserver.AdminEmail, devserver.UserEmail)
			}
			return srv.Run(cmd.Context(), addr)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "listen address")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (default devserver_port)")
	cmd.Flags().BoolVar(&seed, "seed", true, "load demo accounts and catalog")
	return cmd
}
