package main

import (
	"github.com/spf13/cobra"
)

func main() {
	var root = &cobra.Command{Use: "medicinedb"}

	root.AddCommand(serveCMD(), relayCMD(), exportCMD())
	_ = root.Execute()
}
