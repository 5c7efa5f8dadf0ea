package main

import (
	"errors"
	"fmt"
	"log"
	"sync"
)

// filterIgnoredNames drops pilot names on the ignore list before any
// remote work happens. Returns the kept names and how many were dropped.
func filterIgnoredNames(names []string, cfg Config) ([]string, int) {
	ignored := cfg.IgnoredNames()
	if len(ignored) == 0 {
		return names, 0
	}
	var kept []string
	dropped := 0
	for _, name := range names {
		if ignored[name] {
			log.Printf("ignore list removed pilot=%q", name)
			dropped++
			continue
		}
		kept = append(kept, name)
	}
	return kept, dropped
}

// resolvePilot maps a display name to its identity: cache first, one
// remote strict lookup on a miss, write-back of the name/ID pair only.
// NotFound is a valid outcome and is never cached, since the name could
// become valid later. Safe to call concurrently for distinct names.
func resolvePilot(cfg Config, cache *Cache, name string) (Identity, error) {
	cached, ok, err := cache.GetPilotByName(name)
	if err != nil {
		// Storage failure degrades to a miss.
		log.Printf("cache error resolving pilot=%q err=%v", name, err)
	} else if ok {
		return cached, nil
	}

	pilotID, err := resolveNameRemote(cfg, name)
	if err != nil {
		return Identity{}, err
	}
	id := Identity{ID: pilotID, Name: name}
	if err := cache.PutPilot(id); err != nil {
		log.Printf("cache error storing pilot=%q err=%v", name, err)
	}
	return id, nil
}

// resolvePilots resolves a batch of names concurrently. Names the
// authority does not know are returned separately so they can surface in
// the output as explicitly unresolved, never silently dropped. Input
// order is preserved.
func resolvePilots(cfg Config, cache *Cache, names []string) ([]Identity, []string, error) {
	resolved := make([]Identity, len(names))
	errs := make([]error, len(names))

	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			resolved[i], errs[i] = resolvePilot(cfg, cache, name)
		}(i, name)
	}
	wg.Wait()

	var pilots []Identity
	var notFound []string
	for i, err := range errs {
		if errors.Is(err, ErrNotFound) {
			log.Printf("pilot not found name=%q", names[i])
			notFound = append(notFound, names[i])
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("resolving pilots: %w", err)
		}
		pilots = append(pilots, resolved[i])
	}
	return pilots, notFound, nil
}

// resolveAffiliations fills in the group fields for every pilot,
// remote-refreshing only the subset whose cached affiliation is missing
// or stale, then resolves group names, and finally applies the
// corp/alliance ignore filter. The filter runs after name resolution so
// the exclusion can be logged with the group's display name.
func resolveAffiliations(cfg Config, cache *Cache, pilots []Identity) ([]Identity, int, error) {
	if len(pilots) == 0 {
		return nil, 0, nil
	}

	ids := make([]int64, len(pilots))
	for i, p := range pilots {
		ids[i] = p.ID
	}
	cached, err := cache.GetPilotsByIDs(ids)
	if err != nil {
		log.Printf("cache error reading affiliations err=%v", err)
		cached = map[int64]Identity{}
	}

	// Partition: fresh rows with resolved groups keep their cached
	// affiliation; the rest go to the authority in one batched call.
	var needRemote []int64
	for i, p := range pilots {
		row, ok := cached[p.ID]
		if ok && row.Affiliated() {
			pilots[i].CorpID = row.CorpID
			pilots[i].AllianceID = row.AllianceID
			continue
		}
		needRemote = append(needRemote, p.ID)
	}

	if len(needRemote) > 0 {
		rows, err := fetchAffiliations(cfg, needRemote)
		if err != nil {
			return nil, 0, err
		}
		byID := make(map[int64]affiliationRow, len(rows))
		for _, row := range rows {
			byID[row.CharacterID] = row
		}
		for i, p := range pilots {
			row, ok := byID[p.ID]
			if !ok {
				continue
			}
			pilots[i].CorpID = row.CorpID
			pilots[i].AllianceID = row.AllianceID
			if err := cache.PutPilot(pilots[i]); err != nil {
				log.Printf("cache error storing affiliation pilot=%d err=%v", p.ID, err)
			}
		}
	}

	if err := resolveGroupNames(cfg, cache, pilots); err != nil {
		return nil, 0, err
	}

	// Ignore filter, strictly after names resolve.
	ignored := cfg.IgnoredIDs()
	var kept []Identity
	dropped := 0
	for _, p := range pilots {
		if reason, hit := groupIgnored(p, ignored); hit {
			log.Printf("ignore list removed pilot=%q group=%q", p.Name, reason)
			dropped++
			continue
		}
		kept = append(kept, p)
	}
	return kept, dropped, nil
}

func groupIgnored(p Identity, ignored map[int64]string) (string, bool) {
	if name, ok := ignored[p.CorpID]; ok {
		return name, true
	}
	if p.AllianceID != 0 {
		if name, ok := ignored[p.AllianceID]; ok {
			return name, true
		}
	}
	return "", false
}

// resolveGroupNames fills CorpName/AllianceName for every pilot, with
// one batched remote lookup for all group IDs missing from the cache.
func resolveGroupNames(cfg Config, cache *Cache, pilots []Identity) error {
	var groupIDs []int64
	seen := make(map[int64]bool)
	for _, p := range pilots {
		for _, id := range []int64{p.CorpID, p.AllianceID} {
			if id != 0 && !seen[id] {
				seen[id] = true
				groupIDs = append(groupIDs, id)
			}
		}
	}
	if len(groupIDs) == 0 {
		return nil
	}

	names, err := cache.GetEntityNames(groupIDs)
	if err != nil {
		log.Printf("cache error reading entity names err=%v", err)
		names = map[int64]string{}
	}

	var missing []int64
	for _, id := range groupIDs {
		if _, ok := names[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		rows, err := fetchEntityNames(cfg, missing)
		if err != nil {
			return err
		}
		for _, row := range rows {
			names[row.ID] = row.Name
			if err := cache.PutEntity(row.ID, row.Name); err != nil {
				log.Printf("cache error storing entity=%d err=%v", row.ID, err)
			}
		}
	}

	for i := range pilots {
		pilots[i].CorpName = names[pilots[i].CorpID]
		if pilots[i].AllianceID != 0 {
			pilots[i].AllianceName = names[pilots[i].AllianceID]
		}
	}
	return nil
}
