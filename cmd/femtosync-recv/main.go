// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Command femtosync-recv runs the receiver side of a delta sync: it
// serves a destination directory over HTTP and applies whatever plan of
// deletes, creates, and patches a femtosync-send process sends it.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/c4milo/deltasync/httpapi"
)

func main() {
	os.Exit(run())
}

func run() int {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] DESTINATION\n", os.Args[0])
		flag.PrintDefaults()
	}

	port := flag.Int("port", 9999, "TCP port to listen on.")
	public := flag.Bool("public", false, "Bind all interfaces instead of loopback only.")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	if flag.NArg() != 1 {
		flag.Usage()
		return 1
	}
	dest := flag.Arg(0)

	info, err := os.Stat(dest)
	if err != nil {
		logger.Error().Err(err).Str("dest", dest).Msg("failed stating destination")
		return 1
	}
	if !info.IsDir() {
		logger.Error().Str("dest", dest).Msg("destination must be a directory")
		return 1
	}

	host := "127.0.0.1"
	if *public {
		host = "0.0.0.0"
	}
	addr := net.JoinHostPort(host, strconv.Itoa(*port))

	server := httpapi.NewServer(dest, logger)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: server.NewRouter(),
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Error().Err(err).Str("addr", addr).Msg("failed binding listener")
		return 1
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Str("dest", dest).Msg("femtosync-recv listening")
		errCh <- httpServer.Serve(listener)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("server stopped unexpectedly")
			return 1
		}
	case <-sigCh:
		logger.Info().Msg("received shutdown signal")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown failed")
			return 1
		}
	}

	return 0
}
