package main

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"
)

func aggregateTestConfig() Config {
	cfg := Config{}
	applyDefaults(&cfg)
	return cfg
}

func fakeNameLookup(ids []int64) map[int64]string {
	out := make(map[int64]string, len(ids))
	for _, id := range ids {
		out[id] = fmt.Sprintf("Pilot %d", id)
	}
	return out
}

func mkEvent(id int64, hour int, systemID int64, value float64, attackers []Attacker) Event {
	return Event{
		KillmailID:    id,
		Hash:          "h",
		TotalValue:    value,
		KillmailTime:  time.Date(2026, 3, 1, hour, 0, 0, 0, time.UTC),
		SolarSystemID: systemID,
		Victim:        Victim{CharacterID: 55, ShipTypeID: 587},
		Attackers:     attackers,
	}
}

// fleet builds an attacker list of the given size with the subject pilot
// first, flying shipType, and filler pilots around them.
func fleet(size int, subjectShip int64) []Attacker {
	attackers := []Attacker{{CharacterID: 100, CorpID: 2001, ShipTypeID: subjectShip}}
	for i := 1; i < size; i++ {
		attackers = append(attackers, Attacker{
			CharacterID: int64(200 + i),
			CorpID:      3001,
			ShipTypeID:  587,
		})
	}
	return attackers
}

func TestAggregateProfileFleetSplit(t *testing.T) {
	static, _ := newTestStatic(t)
	cfg := aggregateTestConfig()
	pilot := Identity{ID: 100, Name: "Target Pilot", CorpID: 2001}

	events := []Event{
		mkEvent(1, 16, 30000142, 5e6, fleet(12, 587)),
		mkEvent(2, 16, 30000142, 15e6, fleet(4, 587)),
	}

	p := aggregateProfile(cfg, static, fakeNameLookup, pilot, events)

	if p.ProcessedKillmails != 2 {
		t.Fatalf("expected 2 processed, got %d", p.ProcessedKillmails)
	}
	if p.Pro10 != 1 || p.ProGang != 1 {
		t.Fatalf("fleet split wrong: pro10=%d gang=%d", p.Pro10, p.ProGang)
	}
	if p.Avg10 != 12 || p.AvgGang != 4 {
		t.Fatalf("fleet averages wrong: avg10=%d avgGang=%d", p.Avg10, p.AvgGang)
	}
	if p.AveragePilots != 8 {
		t.Fatalf("expected average pilots 8, got %d", p.AveragePilots)
	}
	if p.Timezone != "EUTZ: 100% (8)" {
		t.Fatalf("unexpected timezone summary: %q", p.Timezone)
	}
	if p.SpaceType != "highsec" {
		t.Fatalf("unexpected space type: %q", p.SpaceType)
	}
	if p.TopShips != "Rifter" {
		t.Fatalf("unexpected top ships: %q", p.TopShips)
	}
	if p.TopRegions != "The Forge" {
		t.Fatalf("unexpected top regions: %q", p.TopRegions)
	}
	if p.AverageKillValue <= 9e6 || p.AverageKillValue >= 10.1e6 {
		t.Fatalf("unexpected average kill value: %f", p.AverageKillValue)
	}
	if p.Warning != "" {
		t.Fatalf("no warning expected, got %q", p.Warning)
	}
}

func TestAggregateProfileRatiosStayBounded(t *testing.T) {
	static, _ := newTestStatic(t)
	cfg := aggregateTestConfig()
	pilot := Identity{ID: 100, CorpID: 2001}

	events := []Event{mkEvent(1, 16, 30000142, 1e6, fleet(2, 19722))}
	p := aggregateProfile(cfg, static, fakeNameLookup, pilot, events)

	for name, ratio := range map[string]float64{
		"capital":   p.CapitalUse,
		"blops":     p.BlopsUse,
		"cyno":      p.CynoUse,
		"smartbomb": p.SmartbombUse,
		"gatecamp":  p.GateCampUse,
	} {
		if ratio < 0 || ratio > 1 {
			t.Fatalf("%s ratio out of bounds: %f", name, ratio)
		}
	}
	// One capital event of one: just below 1 because of the epsilon.
	if p.CapitalUse < 0.9 || p.CapitalUse >= 1 {
		t.Fatalf("unexpected capital ratio: %f", p.CapitalUse)
	}
}

func TestAggregateProfileEmptyHistory(t *testing.T) {
	static, _ := newTestStatic(t)
	cfg := aggregateTestConfig()

	p := aggregateProfile(cfg, static, fakeNameLookup, Identity{ID: 100}, nil)
	if p.ProcessedKillmails != 0 {
		t.Fatalf("expected zero processed, got %d", p.ProcessedKillmails)
	}
	if p.Timezone != "N/A" || p.SpaceType != "N/A" {
		t.Fatalf("expected N/A markers, got %q %q", p.Timezone, p.SpaceType)
	}
	if p.Warning != "" {
		t.Fatalf("empty history must not warn, got %q", p.Warning)
	}
}

func TestAggregateProfileDeterministic(t *testing.T) {
	static, _ := newTestStatic(t)
	cfg := aggregateTestConfig()
	pilot := Identity{ID: 100, CorpID: 2001}

	events := []Event{
		mkEvent(1, 3, 30000142, 5e6, fleet(12, 587)),
		mkEvent(2, 16, 30000500, 2e6, fleet(4, 19722)),
		mkEvent(3, 7, 31000001, 9e6, fleet(6, 587)),
	}

	first := aggregateProfile(cfg, static, fakeNameLookup, pilot, events)
	second := aggregateProfile(cfg, static, fakeNameLookup, pilot, events)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("aggregation is not deterministic:\n%+v\n%+v", first, second)
	}
}

func TestAggregateProfileTimezoneTieBreak(t *testing.T) {
	static, _ := newTestStatic(t)
	cfg := aggregateTestConfig()
	pilot := Identity{ID: 100, CorpID: 2001}

	// One kill at 03:00 (USTZ), one at 07:00 (AUTZ). On a tie the
	// earlier bucket in the fixed scan order wins.
	events := []Event{
		mkEvent(1, 3, 30000142, 1e6, fleet(2, 587)),
		mkEvent(2, 7, 30000142, 1e6, fleet(2, 587)),
	}

	p := aggregateProfile(cfg, static, fakeNameLookup, pilot, events)
	if !strings.HasPrefix(p.Timezone, "AUTZ:") {
		t.Fatalf("expected AUTZ to win the tie, got %q", p.Timezone)
	}
}

func TestAggregateProfileWarnings(t *testing.T) {
	static, _ := newTestStatic(t)
	cfg := aggregateTestConfig()
	pilot := Identity{ID: 100, CorpID: 2001}

	// Titan hull: its group sits in both the capital and titan sets, so
	// both tags trigger, in the fixed order.
	events := []Event{mkEvent(1, 16, 30000142, 1e6, fleet(2, 671))}
	p := aggregateProfile(cfg, static, fakeNameLookup, pilot, events)
	if p.Warning != "CAPITAL + TITAN" {
		t.Fatalf("unexpected warning: %q", p.Warning)
	}

	// Recon hull with a smartbomb fitted.
	attackers := fleet(2, 11957)
	attackers[0].WeaponTypeID = 3993
	events = []Event{mkEvent(1, 16, 30000142, 1e6, attackers)}
	p = aggregateProfile(cfg, static, fakeNameLookup, pilot, events)
	if p.Warning != "CYNO + SMARTBOMB" {
		t.Fatalf("unexpected warning: %q", p.Warning)
	}

	// Supercarrier.
	events = []Event{mkEvent(1, 16, 30000142, 1e6, fleet(2, 23919))}
	p = aggregateProfile(cfg, static, fakeNameLookup, pilot, events)
	if p.Warning != "SUPER" {
		t.Fatalf("unexpected warning: %q", p.Warning)
	}
	if p.Supers != 1 {
		t.Fatalf("expected 1 super event, got %d", p.Supers)
	}
}

func TestAggregateProfileGateCamp(t *testing.T) {
	static, _ := newTestStatic(t)
	cfg := aggregateTestConfig()
	pilot := Identity{ID: 100, CorpID: 2001}

	onGate := mkEvent(1, 16, 30000142, 1e6, fleet(3, 587))
	onGate.Victim.Position = &Position{X: 30000}

	p := aggregateProfile(cfg, static, fakeNameLookup, pilot, []Event{onGate})
	if !strings.Contains(p.Warning, "GATECAMP") {
		t.Fatalf("expected GATECAMP warning, got %q", p.Warning)
	}
	if p.GateCampUse < 0.9 {
		t.Fatalf("unexpected gatecamp ratio: %f", p.GateCampUse)
	}

	// The same kill in a capital is a drive-by, not a camp.
	inCapital := mkEvent(1, 16, 30000142, 1e6, fleet(3, 19722))
	inCapital.Victim.Position = &Position{X: 30000}

	p = aggregateProfile(cfg, static, fakeNameLookup, pilot, []Event{inCapital})
	if strings.Contains(p.Warning, "GATECAMP") {
		t.Fatalf("capital kill on a gate must not count as a camp: %q", p.Warning)
	}
	if p.GateCampUse != 0 {
		t.Fatalf("expected zero gatecamp ratio, got %f", p.GateCampUse)
	}
}

func TestAggregateProfileAssociatesExcludeOwnGroup(t *testing.T) {
	static, _ := newTestStatic(t)
	cfg := aggregateTestConfig()
	pilot := Identity{ID: 100, CorpID: 2001}

	attackers := []Attacker{
		{CharacterID: 100, CorpID: 2001, ShipTypeID: 587}, // subject
		{CharacterID: 150, CorpID: 2001, ShipTypeID: 587}, // corpmate
		{CharacterID: 300, CorpID: 3001, ShipTypeID: 587},
		{CharacterID: 400, CorpID: 3001, ShipTypeID: 587},
	}
	events := []Event{
		mkEvent(1, 16, 30000142, 1e6, attackers),
		mkEvent(2, 17, 30000142, 1e6, attackers[:3]),
	}

	p := aggregateProfile(cfg, static, fakeNameLookup, pilot, events)
	if p.Associates != "Pilot 300, Pilot 400" {
		t.Fatalf("unexpected associates: %q", p.Associates)
	}
}
