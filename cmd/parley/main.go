// Command parley runs the telephony voice-agent server. With a phone
// number argument it also places an outbound call to that number once
// the server is up.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/parleyvoice/parley/config"
	"github.com/parleyvoice/parley/core/telephony"
	"github.com/parleyvoice/parley/server"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.New(cfg).ListenAndServe(ctx)
	})

	if len(os.Args) > 1 {
		number := os.Args[1]
		g.Go(func() error {
			// Give the listener a moment before the provider calls back.
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}

			callSID, err := telephony.StartOutboundCall(telephony.CallerConfig{
				AccountSID: cfg.TwilioAccountSID,
				AuthToken:  cfg.TwilioAuthToken,
				FromNumber: cfg.TwilioFromNumber,
				PublicURL:  cfg.PublicURL,
			}, number)
			if err != nil {
				return fmt.Errorf("failed to call %s: %w", number, err)
			}
			fmt.Printf("Calling %s (call sid %s)\n", number, callSID)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
