// Package main runs the cross-survey invitation sweep once and exits.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	campaigncmd "github.com/louisbranch/surveycast/internal/cmd/campaign"
)

func main() {
	cfg, err := campaigncmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[CAMPAIGN] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := campaigncmd.Run(ctx, cfg, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		log.Fatalf("campaign sweep: %v", err)
	}
}
