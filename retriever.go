package main

import (
	"errors"
	"log"
	"sync"
)

// retrieveEvents fetches one capped page of summaries for a pilot, then
// assembles fully-merged events: the authoritative half comes from the
// local cache when present, otherwise from the record service, with all
// missing records for the page fetched concurrently and written back to
// cache before merging. Malformed events are dropped individually. An
// empty return with nil error means the pilot has no history of this
// role, which is a success.
func retrieveEvents(cfg Config, cache *Cache, pilot Identity, role Role) ([]Event, error) {
	summaries, err := fetchKillPage(cfg, pilot.ID, role, 1)
	if err != nil {
		return nil, err
	}
	if len(summaries) > cfg.MaxKillmails {
		summaries = summaries[:cfg.MaxKillmails]
	}
	if len(summaries) == 0 {
		return nil, nil
	}

	records := make(map[int64]EventRecord, len(summaries))
	var missing []EventSummary
	for _, summary := range summaries {
		record, ok, err := cache.GetKillmail(summary.KillmailID)
		if err != nil {
			log.Printf("cache error reading killmail=%d err=%v", summary.KillmailID, err)
			ok = false
		}
		if ok {
			records[summary.KillmailID] = record
			continue
		}
		missing = append(missing, summary)
	}
	log.Printf("killmails pilot=%d cached=%d missing=%d", pilot.ID, len(records), len(missing))

	if len(missing) > 0 {
		fetched, err := fetchMissingRecords(cfg, cache, missing)
		if err != nil {
			return nil, err
		}
		for id, record := range fetched {
			records[id] = record
		}
	}

	var events []Event
	for _, summary := range summaries {
		record, ok := records[summary.KillmailID]
		if !ok {
			continue
		}
		event, err := mergeEvent(summary, record)
		if err != nil {
			log.Printf("dropping event pilot=%d err=%v", pilot.ID, err)
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

// fetchMissingRecords pulls the authoritative half of every summary not
// found in cache, all fetches for the page running concurrently. Each
// freshly-fetched record is persisted before the merge step sees it. A
// record that exhausts its retry budget is dropped as malformed; a
// transport-level failure aborts the whole retrieval.
func fetchMissingRecords(cfg Config, cache *Cache, missing []EventSummary) (map[int64]EventRecord, error) {
	type fetchResult struct {
		id     int64
		record EventRecord
		err    error
	}

	results := make(chan fetchResult, len(missing))
	var wg sync.WaitGroup
	for _, summary := range missing {
		wg.Add(1)
		go func(summary EventSummary) {
			defer wg.Done()
			record, err := fetchKillmail(cfg, summary.KillmailID, summary.ZKB.Hash)
			results <- fetchResult{id: summary.KillmailID, record: record, err: err}
		}(summary)
	}
	wg.Wait()
	close(results)

	fetched := make(map[int64]EventRecord, len(missing))
	var unavailable error
	for result := range results {
		if errors.Is(result.err, errUpstreamUnavailable) {
			unavailable = result.err
			continue
		}
		if result.err != nil {
			// Per-event failure: drop the event, keep the pilot.
			log.Printf("dropping unfetchable record killmail=%d err=%v", result.id, result.err)
			continue
		}
		if err := cache.PutKillmail(result.id, result.record); err != nil {
			log.Printf("cache error storing killmail=%d err=%v", result.id, err)
		}
		fetched[result.id] = result.record
	}
	if unavailable != nil && len(fetched) == 0 {
		return nil, unavailable
	}
	return fetched, nil
}
