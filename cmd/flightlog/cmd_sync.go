package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yegors/flightlog/internal/config"
	"github.com/yegors/flightlog/internal/flightsync"
)

func (a *app) synchronizer(lb *logbook) (*flightsync.Synchronizer, error) {
	s := a.cfg.Sync
	if s.Server == "" {
		return nil, fmt.Errorf("no sync server configured (sync.server or %s)", config.EnvServer)
	}
	if s.Username == "" || s.Password == "" {
		return nil, fmt.Errorf("sync.username and a password (sync.password or %s) are required", config.EnvPassword)
	}
	creds := flightsync.Credentials{Username: s.Username, Password: s.Password}
	return flightsync.New(a.cfg.ClientConfig(), creds, lb.flights, lb.state, a.log), nil
}

func newSyncCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Synchronise the logbook with the sync server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withLogbook(cmd.Context(), func(lb *logbook) error {
				syncer, err := a.synchronizer(lb)
				if err != nil {
					return err
				}
				report, err := syncer.Sync(cmd.Context())
				if errors.Is(err, flightsync.ErrBadLogin) {
					return fmt.Errorf("%w; create the account with 'flightlog account create'", err)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "received %d, sent %d, renumbered %d (server time %s)\n",
					report.Received, report.Sent, report.Renumbered, report.ServerTime.Format("2006-01-02 15:04:05Z"))
				return nil
			})
		},
	}
}

func newAccountCmd(a *app) *cobra.Command {
	account := &cobra.Command{
		Use:   "account",
		Short: "Manage the sync account",
	}

	account.AddCommand(&cobra.Command{
		Use:   "create",
		Short: "Register the configured user with the sync server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withLogbook(cmd.Context(), func(lb *logbook) error {
				syncer, err := a.synchronizer(lb)
				if err != nil {
					return err
				}
				if err := syncer.CreateAccount(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "account %s created\n", a.cfg.Sync.Username)
				return nil
			})
		},
	})
	return account
}
