package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yegors/flightlog/internal/api"
	"github.com/yegors/flightlog/internal/config"
	"github.com/yegors/flightlog/internal/server"
	"github.com/yegors/flightlog/internal/storage/sqlite"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the local HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = a.cfg.API.Address
			}
			return a.withLogbook(cmd.Context(), func(lb *logbook) error {
				router := api.NewRouter(lb.flights, a.newImporter(lb), lb.airports, a.cfg.API.CORSAllowedOrigins, a.log)
				return router.ListenAndServe(cmd.Context(), addr)
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}

func (a *app) withServer(fn func(srv *server.Server) error) error {
	db, err := sqlite.Open(a.cfg.Server.DatabasePath, a.log)
	if err != nil {
		return err
	}
	store, err := sqlite.NewServerStorage(db, a.log)
	if err != nil {
		db.Close()
		return err
	}
	srv := server.New(a.cfg.ServerConfig(), store, a.log)
	return errors.Join(fn(srv), db.Close())
}

func newSyncServerCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync-server",
		Short: "Run the sync server",
		Long: `Run the server that flightlog clients sync with. It keeps one logbook
per account. Accounts are created by clients when server.allow_registration
is set, or with 'sync-server add-user'.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withServer(func(srv *server.Server) error {
				return srv.ListenAndServe(cmd.Context())
			})
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add-user USERNAME",
		Short: "Create an account on the server",
		Long:  "Create an account. The password is read from " + config.EnvPassword + ".",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password := os.Getenv(config.EnvPassword)
			if password == "" {
				return fmt.Errorf("set %s to the new account's password", config.EnvPassword)
			}
			return a.withServer(func(srv *server.Server) error {
				if err := srv.CreateAccount(cmd.Context(), args[0], password); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "user %s created\n", sqlite.NormalizeUsername(args[0]))
				return nil
			})
		},
	})
	return cmd
}
