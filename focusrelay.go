package main

import (
	_ "embed"
	"fmt"
	"os"

	cli "github.com/neboloop/focusrelay/cmd/focusrelay"
	"github.com/neboloop/focusrelay/internal/config"

	"github.com/joho/godotenv"
)

//go:embed etc/focusrelay.yaml
var embeddedConfig []byte

func main() {
	// Load .env file if present (OBSIDIAN_VAULT_PATH, FOCUSRELAY_*)
	_ = godotenv.Load()

	// Load embedded config (defaults)
	c, err := config.LoadFromBytes(embeddedConfig)
	if err != nil {
		fmt.Printf("Failed to load embedded config: %v\n", err)
		os.Exit(1)
	}

	// Pass config to CLI and execute
	if err := cli.SetupRootCmd(&c).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
