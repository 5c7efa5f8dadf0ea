package main

import (
	"fmt"
	"math"
	"strings"
)

// nameLookup resolves character IDs to display names for the associates
// summary. Injected so tests can run without the authority.
type nameLookup func(ids []int64) map[int64]string

// fleetSizeThreshold splits events into "large fleet" (strictly more
// attackers than this) and "small gang".
const fleetSizeThreshold = 9

// aggregateProfile reduces one pilot's merged event list into its
// fixed-shape profile in a single linear pass. It assumes well-formed
// events: the retriever's merge step already rejected anything missing
// required sub-fields. Zero events is a normal terminal state and yields
// a defaulted profile.
func aggregateProfile(cfg Config, static *StaticData, names nameLookup, pilot Identity, events []Event) Profile {
	profile := Profile{
		Timezone:  "N/A",
		SpaceType: "N/A",
	}
	if len(events) == 0 {
		return profile
	}

	// Bucket order fixes the tie-break: the first bucket wins a tie for
	// dominance.
	buckets := []tzBucket{
		{Label: "AUTZ", Kills: epsilon},
		{Label: "EUTZ", Kills: epsilon},
		{Label: "USTZ", Kills: epsilon},
	}
	bucketIndex := map[string]int{"AUTZ": 0, "EUTZ": 1, "USTZ": 2}

	bandOrder := []string{bandHighsec, bandLowsec, bandWormhole, bandNullsec}
	bandCounts := make(map[string]int, len(bandOrder))

	var (
		attackerTotal int
		killValue     float64
		avg10Sum      int
		avgGangSum    int
		capitalUse    int
		blopsUse      int
		cynoUse       int
		smartbombUse  int
		gateCamps     int
	)
	ships := newCounter()
	ships10 := newCounter()
	shipsGang := newCounter()
	regions := newCounter()
	associates := newCounter()

	for _, ev := range events {
		profile.ProcessedKillmails++
		attackers := len(ev.Attackers)
		attackerTotal += attackers
		killValue += ev.TotalValue

		if attackers > fleetSizeThreshold {
			profile.Pro10++
			avg10Sum += attackers
		} else {
			profile.ProGang++
			avgGangSum += attackers
		}

		if band, ok := static.SecurityBand(ev.SolarSystemID); ok {
			bandCounts[band]++
		}
		if regionID, ok := static.RegionID(ev.SolarSystemID); ok {
			regions.add(regionID)
		}

		idx := bucketIndex[timezoneLabel(ev.KillmailTime.UTC().Hour())]
		buckets[idx].Kills++
		buckets[idx].Attackers += attackers

		for _, attacker := range ev.Attackers {
			if attacker.CharacterID == pilot.ID {
				ships.add(attacker.ShipTypeID)
				if attackers > fleetSizeThreshold {
					ships10.add(attacker.ShipTypeID)
				} else {
					shipsGang.add(attacker.ShipTypeID)
				}
				continue
			}
			// Associates are participants outside the subject's own group.
			if attacker.CorpID != 0 && attacker.CorpID == pilot.CorpID {
				continue
			}
			associates.add(attacker.CharacterID)
		}

		if static.UsedCapital(ev.Attackers, pilot.ID) {
			capitalUse++
		}
		if static.UsedBlops(ev.Attackers, pilot.ID) {
			blopsUse++
		}
		if static.UsedCyno(ev.Attackers, pilot.ID) {
			cynoUse++
		}
		if static.UsedSmartbomb(ev.Attackers, pilot.ID) {
			smartbombUse++
		}
		if static.UsedSuper(ev.Attackers, pilot.ID) {
			profile.Supers++
		}
		if static.UsedTitan(ev.Attackers, pilot.ID) {
			profile.Titans++
		}
		if static.KilledOnGate(ev) &&
			!static.UsedCapital(ev.Attackers, pilot.ID) &&
			!static.UsedBlops(ev.Attackers, pilot.ID) {
			gateCamps++
		}
	}

	denominator := float64(profile.ProcessedKillmails) + epsilon
	profile.AverageKillValue = killValue / denominator
	profile.AveragePilots = int(math.Round(float64(attackerTotal) / denominator))
	profile.Avg10 = int(math.Round(float64(avg10Sum) / (float64(profile.Pro10) + epsilon)))
	profile.AvgGang = int(math.Round(float64(avgGangSum) / (float64(profile.ProGang) + epsilon)))

	profile.CapitalUse = float64(capitalUse) / denominator
	profile.BlopsUse = float64(blopsUse) / denominator
	profile.CynoUse = float64(cynoUse) / denominator
	profile.SmartbombUse = float64(smartbombUse) / denominator
	profile.GateCampUse = float64(gateCamps) / denominator

	// Dominant timezone: highest raw kill count, first bucket wins ties.
	dominant := 0
	for i := 1; i < len(buckets); i++ {
		if buckets[i].Kills > buckets[dominant].Kills {
			dominant = i
		}
	}
	profile.Timezone = fmt.Sprintf("%s: %d%% (%d)",
		buckets[dominant].Label,
		int(math.Round(buckets[dominant].Kills/denominator*100)),
		profile.AveragePilots,
	)

	// Dominant space type, same tie-break policy over the fixed band order.
	dominantBand := bandOrder[0]
	for _, band := range bandOrder[1:] {
		if bandCounts[band] > bandCounts[dominantBand] {
			dominantBand = band
		}
	}
	profile.SpaceType = dominantBand

	profile.TopShips = joinShipNames(static, ships.topThree())
	profile.Top10Ships = joinShipNames(static, ships10.topThree())
	profile.TopGangShips = joinShipNames(static, shipsGang.topThree())
	profile.TopRegions = joinRegionNames(static, regions.topThree())
	profile.Associates = joinAssociateNames(names, associates.topThree())

	profile.Warning = buildWarning(cfg, profile)
	return profile
}

// buildWarning concatenates the triggered tags with the fixed " + "
// separator. All threshold comparisons are strictly greater-than.
func buildWarning(cfg Config, p Profile) string {
	warning := ""
	if p.CapitalUse > cfg.CapitalWarnRatio {
		warning = addWarning(warning, "CAPITAL")
	}
	if p.BlopsUse > cfg.BlopsWarnRatio {
		warning = addWarning(warning, "BLOPS")
	}
	if p.CynoUse > cfg.CynoWarnRatio {
		warning = addWarning(warning, "CYNO")
	}
	if p.Supers > 0 {
		warning = addWarning(warning, "SUPER")
	}
	if p.Titans > 0 {
		warning = addWarning(warning, "TITAN")
	}
	if p.SmartbombUse > cfg.SmartbombWarnRatio {
		warning = addWarning(warning, "SMARTBOMB")
	}
	if p.GateCampUse > cfg.GateCampWarnRatio {
		warning = addWarning(warning, "GATECAMP")
	}
	return warning
}

// joinShipNames resolves type IDs to display names, dropping IDs that
// resolve to nothing, and comma-joins the survivors.
func joinShipNames(static *StaticData, typeIDs []int64) string {
	var names []string
	for _, id := range typeIDs {
		if name := static.ShipName(id); name != "" {
			names = append(names, name)
		}
	}
	return strings.Join(names, ", ")
}

func joinRegionNames(static *StaticData, regionIDs []int64) string {
	var names []string
	for _, id := range regionIDs {
		if name := static.RegionLabel(id); name != "" {
			names = append(names, name)
		}
	}
	return strings.Join(names, ", ")
}

func joinAssociateNames(names nameLookup, ids []int64) string {
	var lookup []int64
	for _, id := range ids {
		if id != 0 {
			lookup = append(lookup, id)
		}
	}
	if len(lookup) == 0 || names == nil {
		return ""
	}
	resolved := names(lookup)
	var out []string
	for _, id := range lookup {
		if name := resolved[id]; name != "" {
			out = append(out, name)
		}
	}
	return strings.Join(out, ", ")
}
