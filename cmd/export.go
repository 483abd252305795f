package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xoity/medicinedb/config"
	"github.com/xoity/medicinedb/internal/export"
	"github.com/xoity/medicinedb/internal/store"
)

func exportCMD() *cobra.Command {
	var cfgPath string
	var exportCmd = &cobra.Command{
		Use:   "export",
		Short: "Export the medicine database",
	}
	exportCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	var csv = &cobra.Command{
		Use:   "csv",
		Short: "Export all medicines to a CSV file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)

			path, err := export.CSV(context.Background(), store.New(cfg.Storage.SQLite.Path))
			if err != nil {
				return err
			}
			if path == "" {
				fmt.Println("No data to export")
				return nil
			}
			fmt.Printf("Exported to %s\n", path)
			return nil
		},
	}

	var out string
	var prolog = &cobra.Command{
		Use:   "prolog",
		Short: "Export all medicines as a Prolog knowledge base",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)

			if err := export.Prolog(context.Background(), cfg.Storage.SQLite.Path, out); err != nil {
				return err
			}
			fmt.Printf("Exported to %s\n", out)
			return nil
		},
	}
	prolog.Flags().StringVar(&out, "out", "medicines.pl", "output file")

	exportCmd.AddCommand(csv, prolog)
	return exportCmd
}
