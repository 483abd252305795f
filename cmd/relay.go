package main

import (
	"github.com/spf13/cobra"

	"github.com/xoity/medicinedb/config"
	"github.com/xoity/medicinedb/internal/mcpserver"
)

func relayCMD() *cobra.Command {
	var cfgPath string
	var relay = &cobra.Command{
		Use:   "relay",
		Short: "Run the query relay service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)

			return mcpserver.NewServer(cfg.Storage.SQLite.Path).Run(cfg.Relay.Address)
		},
	}
	relay.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return relay
}
