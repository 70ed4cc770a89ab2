// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Command femtosync-send drives a one-way delta sync of a local source
// tree to a remote femtosync-recv process: it computes the action plan
// that reconciles the destination to match source, then executes it,
// uploading only the bytes that differ for files that already exist
// remotely.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/c4milo/deltasync/fstree"
	"github.com/c4milo/deltasync/httpclient"
	"github.com/c4milo/deltasync/patch"
	"github.com/c4milo/deltasync/plan"
)

func main() {
	os.Exit(run())
}

func run() int {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] SOURCE\n", os.Args[0])
		flag.PrintDefaults()
	}

	host := flag.String("host", "127.0.0.1", "Receiver host.")
	port := flag.Int("port", 9999, "Receiver TCP port.")
	useChecksum := flag.Bool("checksum", false, "Identify files by whole-file SHA-256 instead of size+mtime.")
	dryRun := flag.Bool("dry-run", false, "Compute and print the plan without executing it.")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	if flag.NArg() != 1 {
		flag.Usage()
		return 1
	}
	source := flag.Arg(0)

	if _, err := os.Stat(source); err != nil {
		logger.Error().Err(err).Str("source", source).Msg("failed stating source")
		return 1
	}

	identify := fstree.SizeMTimeIdentifier
	if *useChecksum {
		identify = fstree.ChecksumIdentifier
	}

	ctx := context.Background()
	sourceSnap, err := fstree.Walk(ctx, fstree.OSFS{}, source, identify)
	if err != nil {
		logger.Error().Err(err).Msg("failed walking source tree")
		return 1
	}

	baseURL := "http://" + net.JoinHostPort(*host, strconv.Itoa(*port))
	client := httpclient.New(baseURL)

	destSnap, err := client.DirectoryTree(ctx, *useChecksum)
	if err != nil {
		logger.Error().Err(err).Msg("failed fetching destination tree")
		return 1
	}

	actionPlan := plan.Diff(sourceSnap, destSnap)

	if *dryRun {
		for _, action := range actionPlan {
			fmt.Printf("%s %s\n", action.Kind, action.Rel)
		}
		return 0
	}

	for _, action := range actionPlan {
		if err := execute(ctx, client, source, action); err != nil {
			logger.Error().Err(err).Str("rel", action.Rel).Str("action", action.Kind.String()).Msg("action failed, continuing with next entry")
		}
	}

	return 0
}

// execute runs one plan action, per the best-effort-per-file error
// policy: a failure here is logged by the caller and does not abort the
// remaining plan.
func execute(ctx context.Context, client *httpclient.Client, sourceRoot string, action plan.Action) error {
	localPath := filepath.Join(sourceRoot, action.Rel)

	switch action.Kind {
	case plan.KindDelete:
		return client.Delete(ctx, action.Rel)

	case plan.KindCreateDirectory:
		return client.CreateDirectory(ctx, action.Rel)

	case plan.KindCreateFile:
		f, err := os.Open(localPath)
		if err != nil {
			return err
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil {
			return err
		}
		return client.CreateFile(ctx, action.Rel, f, info.ModTime().UnixNano())

	case plan.KindPatchFile:
		return executePatch(ctx, client, localPath, action.Rel)

	default:
		return nil
	}
}

func executePatch(ctx context.Context, client *httpclient.Client, localPath, rel string) error {
	table, err := client.BlockChecksums(ctx, rel)
	if err != nil {
		return err
	}

	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	items, err := patch.Generate(ctx, f, table)
	if err != nil {
		return err
	}
	chunks := patch.Frame(items, patch.MaxChunkSize)

	return client.PatchFile(ctx, rel, chunks, info.ModTime().UnixNano())
}
