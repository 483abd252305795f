package main

import (
	"github.com/spf13/cobra"

	"github.com/xoity/medicinedb/config"
	srv "github.com/xoity/medicinedb/internal/server"
)

func serveCMD() *cobra.Command {
	var cfgPath string
	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run the web UI server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)

			s, err := srv.New(cfg)
			if err != nil {
				return err
			}
			return s.Run()
		},
	}
	serve.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return serve
}
