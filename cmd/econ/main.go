package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"econscour/internal/app"
	"econscour/internal/config"
)

// Version is set via -ldflags at build time.
var Version = "dev"

func main() {
	log.SetFlags(0)
	log.SetPrefix("econ: ")

	// Ctrl-C cancels the running command; a load stops issuing fetches.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	application, err := app.New(ctx, cfg, app.Options{SkipSettings: true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	runErr := newCLIApp(application.Loader).RunContext(ctx, os.Args)
	if err := application.Close(); err != nil {
		log.Printf("close: %v", err)
	}
	if runErr != nil {
		fmt.Fprintln(os.Stderr, runErr)
		code := 1
		var exit cli.ExitCoder
		if errors.As(runErr, &exit) {
			code = exit.ExitCode()
		}
		stop()
		os.Exit(code)
	}
}
