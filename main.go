package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/dhcgn/inotes-export/cmd"
	"github.com/dhcgn/inotes-export/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := cmd.Execute(ctx)
	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if config.IsConfigurationError(err) {
			os.Exit(config.ExitCodeConfiguration)
		}
		os.Exit(1)
	}
}
