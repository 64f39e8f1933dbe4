package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "amazonpay",
	Short: "Amazon Pay gateway service",
	Long:  "Receives Amazon Pay instant payment notifications, polls pending payments and keeps orders in sync with the vendor.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
