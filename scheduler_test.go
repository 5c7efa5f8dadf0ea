package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestStartWatchSchedulerDisabledWithoutCron(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := &pipeline{cfg: Config{}}
	if StartWatchScheduler(ctx, p) {
		t.Fatal("empty schedule must not start watch mode")
	}
}

func TestStartWatchSchedulerRejectsInvalidCron(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := &pipeline{cfg: Config{WatchCron: "not a cron", NamesFile: "names.txt"}}
	if StartWatchScheduler(ctx, p) {
		t.Fatal("invalid schedule must not start watch mode")
	}
}

func TestStartWatchSchedulerRequiresNamesFile(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := &pipeline{cfg: Config{WatchCron: "0 11 * * *"}}
	if StartWatchScheduler(ctx, p) {
		t.Fatal("watch mode needs a names file")
	}
}

func TestStartWatchSchedulerAcceptsValidCron(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	names := filepath.Join(t.TempDir(), "names.txt")
	if err := os.WriteFile(names, []byte("Target Pilot\n"), 0o644); err != nil {
		t.Fatalf("writing names file: %v", err)
	}

	p := &pipeline{cfg: Config{WatchCron: "0 11 * * *", NamesFile: names}}
	if !StartWatchScheduler(ctx, p) {
		t.Fatal("valid schedule should start watch mode")
	}
}
