package main

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// pipeline bundles the shared collaborators a batch run needs. One
// pipeline is built per process; everything in it is safe for concurrent
// use within a chunk. The static data handle is guarded so the refresh
// scheduler can swap in a rebuilt copy mid-process.
type pipeline struct {
	cfg   Config
	cache *Cache

	mu     sync.RWMutex
	static *StaticData
}

func newPipeline(cfg Config, cache *Cache, static *StaticData) *pipeline {
	return &pipeline{cfg: cfg, cache: cache, static: static}
}

func (p *pipeline) staticData() *StaticData {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.static
}

// swapStaticData installs a freshly-rebuilt reference database and
// returns the old handle for closing.
func (p *pipeline) swapStaticData(fresh *StaticData) *StaticData {
	p.mu.Lock()
	defer p.mu.Unlock()
	old := p.static
	p.static = fresh
	return old
}

// lookupNames resolves character IDs to display names through the cache,
// falling back to one batched authority call for the misses. Resolution
// failures degrade to unresolved names rather than failing a profile.
func (p *pipeline) lookupNames(ids []int64) map[int64]string {
	names, err := p.cache.GetEntityNames(ids)
	if err != nil {
		log.Printf("cache error reading names err=%v", err)
		names = map[int64]string{}
	}
	var missing []int64
	for _, id := range ids {
		if _, ok := names[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return names
	}
	rows, err := fetchEntityNames(p.cfg, missing)
	if err != nil {
		log.Printf("name lookup failed count=%d err=%v", len(missing), err)
		return names
	}
	for _, row := range rows {
		names[row.ID] = row.Name
		if err := p.cache.PutEntity(row.ID, row.Name); err != nil {
			log.Printf("cache error storing entity=%d err=%v", row.ID, err)
		}
	}
	return names
}

// runBatch fans the pilots out to the event retriever in fixed-size
// chunks: full concurrency inside a chunk, a barrier between chunks so
// burst pressure on the upstreams stays bounded. One pilot failing (after
// its own retry budget) yields an incomplete result without aborting the
// chunk. Cancellation is honored between chunks only; in-flight work
// runs to completion so no partially-written cache entries are left
// behind.
func runBatch(ctx context.Context, p *pipeline, pilots []Identity, role Role) []PilotResult {
	results := make([]PilotResult, 0, len(pilots))

	for _, chunk := range divideChunks(pilots, p.cfg.ChunkSize) {
		if ctx.Err() != nil {
			log.Printf("batch cancelled pending=%d done=%d", len(pilots)-len(results), len(results))
			break
		}

		log.Printf("running chunk size=%d role=%s", len(chunk), role)
		start := time.Now()

		chunkResults := make([]PilotResult, len(chunk))
		var wg sync.WaitGroup
		for i, pilot := range chunk {
			wg.Add(1)
			go func(i int, pilot Identity) {
				defer wg.Done()
				chunkResults[i] = runPilot(p, pilot, role)
			}(i, pilot)
		}
		wg.Wait()

		results = append(results, chunkResults...)
		log.Printf("chunk done size=%d elapsed=%s", len(chunk), time.Since(start).Round(time.Millisecond))
	}
	return results
}

// runPilot retrieves and aggregates one pilot's history. Failures map to
// explicit incomplete statuses so the output never confuses "could not
// query" with "no history".
func runPilot(p *pipeline, pilot Identity, role Role) PilotResult {
	events, err := retrieveEvents(p.cfg, p.cache, pilot, role)
	if errors.Is(err, ErrRateLimited) {
		log.Printf("pilot rate limited id=%d name=%q", pilot.ID, pilot.Name)
		return PilotResult{Identity: pilot, Status: StatusRateLimited, Profile: Profile{Timezone: "N/A", SpaceType: "N/A"}}
	}
	if err != nil {
		log.Printf("pilot retrieval failed id=%d name=%q err=%v", pilot.ID, pilot.Name, err)
		return PilotResult{Identity: pilot, Status: StatusError, Profile: Profile{Timezone: "N/A", SpaceType: "N/A"}}
	}
	profile := aggregateProfile(p.cfg, p.staticData(), p.lookupNames, pilot, events)
	return PilotResult{Identity: pilot, Profile: profile, Status: StatusOK}
}

// SweepResult is what one full batch run hands to the consumer: profiles
// for every surviving pilot plus how many input names were filtered out
// before retrieval.
type SweepResult struct {
	Results  []PilotResult
	Filtered int
}

// runSweep drives the whole pipeline for a list of display names:
// ignore-list filter, identity resolution, affiliation resolution (with
// the group-level ignore filter), then the chunked concurrent batch run.
func runSweep(ctx context.Context, p *pipeline, names []string) (SweepResult, error) {
	if len(names) > p.cfg.MaxNames {
		log.Printf("truncating name list from %d to %d", len(names), p.cfg.MaxNames)
		names = names[:p.cfg.MaxNames]
	}

	kept, ignoredCount := filterIgnoredNames(names, p.cfg)

	log.Printf("resolving %d pilot names", len(kept))
	pilots, notFound, err := resolvePilots(p.cfg, p.cache, kept)
	if err != nil {
		return SweepResult{}, err
	}

	pilots, groupIgnored, err := resolveAffiliations(p.cfg, p.cache, pilots)
	if err != nil {
		return SweepResult{}, err
	}

	filtered := ignoredCount + groupIgnored
	var results []PilotResult
	if len(pilots) > 0 {
		results = runBatch(ctx, p, pilots, Role(p.cfg.Role))
	} else {
		log.Printf("all pilots filtered out total=%d", filtered+len(notFound))
	}

	// Unresolvable names stay visible as explicitly incomplete rows.
	for _, name := range notFound {
		results = append(results, PilotResult{
			Identity: Identity{Name: name},
			Status:   StatusNotFound,
			Profile:  Profile{Timezone: "N/A", SpaceType: "N/A"},
		})
	}
	return SweepResult{Results: results, Filtered: filtered}, nil
}
