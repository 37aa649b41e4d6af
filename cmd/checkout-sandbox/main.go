package main

import (
	"fmt"
	"os"

	"github.com/aussiebroadwan/checkout/internal/sandbox/app"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "checkout-sandbox",
		Short:        "Local checkout gateway for exercising the SDK offline",
		Version:      app.BuildVersion,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(demoCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
