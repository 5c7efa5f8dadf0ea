package main

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// StartWatchScheduler re-runs the sweep over the configured names file
// on a cron schedule. The schedule is a standard 5-field cron expression
// (minute hour day-of-month month day-of-week).
// Examples: "0 */6 * * *" (every six hours), "0 11 * * *" (daily 11:00).
func StartWatchScheduler(ctx context.Context, p *pipeline) bool {
	schedule := strings.TrimSpace(p.cfg.WatchCron)
	if schedule == "" {
		return false
	}
	if p.cfg.NamesFile == "" {
		log.Println("Watch mode disabled: names_file not set")
		return false
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(schedule)
	if err != nil {
		log.Printf("Invalid watch_cron '%s': %v, watch mode disabled", schedule, err)
		return false
	}
	log.Printf("Watch mode scheduled (cron: %s) over %s", schedule, p.cfg.NamesFile)

	go func() {
		for {
			now := time.Now()
			next := sched.Next(now)
			log.Printf("Next sweep at %s (in %s)", next.Format("Mon Jan 2 15:04"), next.Sub(now).Round(time.Minute))

			select {
			case <-ctx.Done():
				return
			case <-time.After(next.Sub(now)):
			}

			names, err := readNamesFile(p.cfg.NamesFile)
			if err != nil {
				log.Printf("Watch sweep skipped: %v", err)
				continue
			}
			if err := sweepAndReport(ctx, p, names); err != nil {
				log.Printf("Watch sweep error: %v", err)
			}
		}
	}()
	return true
}

// StartStaticRefreshScheduler periodically re-downloads the static data
// dumps and rebuilds the reference database, keeping the out-of-band
// refresh inside the process when a schedule is configured.
func StartStaticRefreshScheduler(ctx context.Context, p *pipeline) {
	schedule := strings.TrimSpace(p.cfg.StaticRefreshCron)
	if schedule == "" {
		return
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(schedule)
	if err != nil {
		log.Printf("Invalid static_refresh_cron '%s': %v, refresh disabled", schedule, err)
		return
	}
	log.Printf("Static data refresh scheduled (cron: %s)", schedule)

	go func() {
		for {
			now := time.Now()
			next := sched.Next(now)

			select {
			case <-ctx.Done():
				return
			case <-time.After(next.Sub(now)):
			}

			log.Println("Refreshing static data...")
			fresh, err := RefreshStaticData(p.cfg)
			if err != nil {
				log.Printf("Static data refresh failed: %v", err)
				continue
			}
			if old := p.swapStaticData(fresh); old != nil {
				_ = old.Close()
			}
			log.Println("Static data refreshed")
		}
	}()
}
