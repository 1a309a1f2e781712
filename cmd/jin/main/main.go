package main

import (
	"os"

	"github.com/arthur-debert/jin/cmd/jin"
	"github.com/arthur-debert/jin/pkg/output"
	"github.com/joho/godotenv"
)

func main() {
	// A .env in the working directory may carry JIN_ settings
	_ = godotenv.Load()

	rootCmd := jin.NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		output.NewPrinter(os.Stderr, output.FormatAuto).Error(err)
		os.Exit(1)
	}
}
