package main

import (
	"fmt"
	"os"

	"variance-backend/internal/bootstrap"
	"variance-backend/internal/shared/config"
)

func main() {
	cfg := config.Load()
	gen, err := bootstrap.NewGenerator(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	app := newCLIApp(cliDeps{
		Generator:      gen,
		IdentityConfig: cfg.IdentityConfig,
		AppID:          cfg.AppID,
		Stdin:          os.Stdin,
	})
	app.Writer = os.Stdout
	app.ErrWriter = os.Stderr

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
