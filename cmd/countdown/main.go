package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	log "github.com/sirupsen/logrus"

	"calendar-countdown/clock"
	"calendar-countdown/countdown"
)

func main() {
	var (
		baseURL  = flag.String("url", "http://localhost:8080", "service base URL")
		offset   = flag.Int("offset", 0, "which upcoming event to start from")
		timezone = flag.String("timezone", "UTC", "site time zone (IANA name)")
		debug    = flag.Bool("debug", false, "log state transitions")
	)
	flag.Parse()

	if *debug {
		log.SetLevel(log.DebugLevel)
	}
	loc, err := time.LoadLocation(*timezone)
	if err != nil {
		log.Fatalf("invalid timezone %q: %v", *timezone, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := countdown.NewClient(*baseURL, loc, nil)
	seed, found, err := client.Seed(ctx, *offset)
	if err != nil {
		log.Fatalf("seed: %v", err)
	}
	if !found {
		fmt.Println(countdown.NoUpcomingMessage)
		return
	}

	runner := countdown.NewRunner(seed, client, clock.NewSystem(loc), printer(os.Stdout))
	if err := runner.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("countdown: %v", err)
	}
}

func printer(w io.Writer) countdown.RenderFunc {
	var lastID int64
	return func(state countdown.State, target countdown.Target, display string) {
		log.WithFields(log.Fields{"state": state.String(), "id": target.ID}).Debug("countdown transition")
		if state == countdown.Counting && target.ID != lastID {
			lastID = target.ID
			fmt.Fprintf(w, "\n%s (%s)\n", target.Title, target.At.Format("2006-01-02 15:04"))
		}
		fmt.Fprintf(w, "\r%-40s", display)
		if state == countdown.Exhausted {
			fmt.Fprintln(w)
		}
	}
}
