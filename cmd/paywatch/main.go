// Command paywatch follows a payment reference until it reaches a terminal
// status. Exit codes: 0 fulfilled, 2 timed_out or cancelled, 1 anything else.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cyberbrief/cyberbrief-backend/internal/poller"
	"github.com/cyberbrief/cyberbrief-backend/pkg/enums"
	"github.com/cyberbrief/cyberbrief-backend/pkg/logger"
)

func main() {
	baseURL := flag.String("base-url", "http://localhost:8080", "API base URL")
	reference := flag.String("ref", "", "payment reference to watch")
	interval := flag.Duration("interval", 3*time.Second, "delay between status checks")
	timeout := flag.Duration("timeout", 30*time.Minute, "give up after this long")
	maxErrors := flag.Int("max-errors", 5, "consecutive fetch failures tolerated")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "paywatch", Level: logger.ParseLevel(*logLevel)})

	if *reference == "" {
		fmt.Fprintln(os.Stderr, "missing -ref")
		os.Exit(1)
	}

	fetcher, err := poller.NewHTTPFetcher(*baseURL, &http.Client{Timeout: 10 * time.Second})
	if err != nil {
		logg.Error(context.Background(), "invalid base url", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()
	ctx = logg.WithReference(ctx, *reference)

	final, err := poller.Poll(ctx, fetcher, *reference, poller.Options{
		Interval:  *interval,
		MaxErrors: *maxErrors,
		OnObservation: func(obs poller.Observation) {
			fields := map[string]any{"attempt": obs.Attempt, "status": obs.Status}
			if obs.NotFound {
				fields["not_found"] = true
			}
			if obs.Err != nil {
				logg.Warn(logg.WithFields(ctx, map[string]any{"attempt": obs.Attempt, "error": obs.Err.Error()}), "status check failed")
				return
			}
			logg.Debug(logg.WithFields(ctx, fields), "status observed")
		},
	})
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			logg.Warn(logg.WithField(ctx, "last_status", final.Status), "gave up waiting for a terminal status")
		default:
			logg.Error(logg.WithField(ctx, "last_status", final.Status), "polling stopped", err)
		}
		os.Exit(1)
	}

	logg.Info(logg.WithField(ctx, "status", final.Status), "payment reached terminal status")
	fmt.Println(final.Status)
	if final.Status != enums.PaymentStatusFulfilled {
		os.Exit(2)
	}
}
