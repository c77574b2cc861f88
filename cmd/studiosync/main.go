package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Exit codes reported to the service manager.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()

	root := buildRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "studiosync: %v\n", err)
		if isConfigError(err) {
			os.Exit(exitConfig)
		}
		os.Exit(exitRuntime)
	}
	os.Exit(exitOK)
}
