package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

func main() {
	cfg := LoadConfig()

	cache, err := OpenCache(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open cache: %v", err)
	}
	defer cache.Close()

	if len(os.Args) > 1 && os.Args[1] == "clear-cache" {
		if err := cache.ClearPilotCache(); err != nil {
			log.Fatalf("Failed to clear cache: %v", err)
		}
		log.Println("Pilot cache cleared")
		return
	}

	static, err := OpenStaticData(cfg)
	if err != nil {
		log.Fatalf("Failed to open static data: %v", err)
	}
	defer static.Close()

	p := newPipeline(cfg, cache, static)

	// Stop requests take effect at the next chunk boundary.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if StartWatchScheduler(ctx, p) {
		StartStaticRefreshScheduler(ctx, p)
		log.Println("Running in watch mode, Ctrl-C to stop")
		<-ctx.Done()
		return
	}

	names, err := gatherNames(cfg)
	if err != nil {
		log.Fatalf("Failed to read pilot names: %v", err)
	}
	if len(names) == 0 {
		log.Fatal("No pilot names given (arguments, names_file, or stdin)")
	}

	if err := sweepAndReport(ctx, p, names); err != nil {
		log.Fatalf("Sweep failed: %v", err)
	}
}

// sweepAndReport runs one full batch and delivers the report: stdout,
// the report directory, and Slack when configured.
func sweepAndReport(ctx context.Context, p *pipeline, names []string) error {
	start := time.Now()
	sweep, err := runSweep(ctx, p, names)
	if err != nil {
		return err
	}
	log.Printf("sweep done pilots=%d filtered=%d elapsed=%s",
		len(sweep.Results), sweep.Filtered, time.Since(start).Round(time.Millisecond))

	content := BuildReportContent(p.cfg, sweep, time.Now())
	fmt.Print(content)

	path, err := WriteReportFile(content, p.cfg.ReportOutputDir, time.Now(), p.cfg.TeamName)
	if err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	log.Printf("report written path=%s", path)

	if err := PostReportToSlack(p.cfg, content); err != nil {
		log.Printf("slack post failed err=%v", err)
	}
	return nil
}

// gatherNames collects pilot display names from the command line, the
// configured names file, or stdin, in that order of preference.
func gatherNames(cfg Config) ([]string, error) {
	if len(os.Args) > 1 {
		return cleanNames(os.Args[1:]), nil
	}
	if cfg.NamesFile != "" {
		return readNamesFile(cfg.NamesFile)
	}

	stat, err := os.Stdin.Stat()
	if err != nil || (stat.Mode()&os.ModeCharDevice) != 0 {
		return nil, nil
	}
	var lines []string
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return cleanNames(lines), nil
}

func readNamesFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading names file: %w", err)
	}
	return cleanNames(strings.Split(string(data), "\n")), nil
}

func cleanNames(raw []string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, name := range raw {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}
