package main

import (
	"errors"
	"testing"
	"time"
)

func TestTimezoneLabelBoundaries(t *testing.T) {
	for hour := 0; hour < 24; hour++ {
		label := timezoneLabel(hour)
		switch {
		case hour < 6:
			if label != "USTZ" {
				t.Fatalf("hour %d: expected USTZ, got %s", hour, label)
			}
		case hour < 14:
			if label != "AUTZ" {
				t.Fatalf("hour %d: expected AUTZ, got %s", hour, label)
			}
		default:
			if label != "EUTZ" {
				t.Fatalf("hour %d: expected EUTZ, got %s", hour, label)
			}
		}
	}
}

func TestCounterTopThreeOrdering(t *testing.T) {
	c := newCounter()
	for _, id := range []int64{5, 7, 5, 3, 7, 5, 9} {
		c.add(id)
	}

	top := c.topThree()
	if len(top) != 3 {
		t.Fatalf("expected 3 keys, got %d", len(top))
	}
	if top[0] != 5 || top[1] != 7 || top[2] != 3 {
		t.Fatalf("unexpected top three: %v", top)
	}
}

func TestCounterTopThreeTieBreaksByInsertion(t *testing.T) {
	c := newCounter()
	// All equal counts: first inserted ranks first.
	c.add(40)
	c.add(10)
	c.add(30)
	c.add(20)

	top := c.topThree()
	if top[0] != 40 || top[1] != 10 || top[2] != 30 {
		t.Fatalf("tie-break should follow insertion order, got %v", top)
	}

	// Calling twice must not change the answer.
	again := c.topThree()
	for i := range top {
		if top[i] != again[i] {
			t.Fatalf("topThree is not stable: %v vs %v", top, again)
		}
	}
}

func TestCounterTopThreeShortInput(t *testing.T) {
	c := newCounter()
	c.add(1)
	if top := c.topThree(); len(top) != 1 || top[0] != 1 {
		t.Fatalf("unexpected result for single key: %v", top)
	}
}

func TestMergeEvent(t *testing.T) {
	summary := EventSummary{
		KillmailID: 1001,
		ZKB:        ZKBMeta{Hash: "abc", TotalValue: 5e6},
	}
	record := EventRecord{
		KillmailID:    1001,
		KillmailTime:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		SolarSystemID: 30000142,
		Victim:        Victim{CharacterID: 55, ShipTypeID: 587},
		Attackers:     []Attacker{{CharacterID: 100, ShipTypeID: 587}},
	}

	event, err := mergeEvent(summary, record)
	if err != nil {
		t.Fatalf("mergeEvent failed: %v", err)
	}
	if event.KillmailID != 1001 || event.Hash != "abc" || event.TotalValue != 5e6 {
		t.Fatalf("summary fields not carried: %+v", event)
	}
	if event.SolarSystemID != 30000142 || len(event.Attackers) != 1 {
		t.Fatalf("record fields not carried: %+v", event)
	}
}

func TestMergeEventRejectsMalformed(t *testing.T) {
	summary := EventSummary{KillmailID: 1001, ZKB: ZKBMeta{Hash: "abc"}}
	when := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	attackers := []Attacker{{CharacterID: 100}}

	cases := []struct {
		name   string
		record EventRecord
	}{
		{"mismatched key", EventRecord{KillmailID: 9999, KillmailTime: when, SolarSystemID: 1, Attackers: attackers}},
		{"missing time", EventRecord{KillmailID: 1001, SolarSystemID: 1, Attackers: attackers}},
		{"missing system", EventRecord{KillmailID: 1001, KillmailTime: when, Attackers: attackers}},
		{"no attackers", EventRecord{KillmailID: 1001, KillmailTime: when, SolarSystemID: 1}},
	}
	for _, tc := range cases {
		if _, err := mergeEvent(summary, tc.record); !errors.Is(err, errMalformedEvent) {
			t.Fatalf("%s: expected errMalformedEvent, got %v", tc.name, err)
		}
	}
}

func TestAddWarning(t *testing.T) {
	w := addWarning("", "CAPITAL")
	if w != "CAPITAL" {
		t.Fatalf("unexpected first warning: %q", w)
	}
	w = addWarning(w, "CYNO")
	if w != "CAPITAL + CYNO" {
		t.Fatalf("unexpected separator: %q", w)
	}
}

func TestDivideChunks(t *testing.T) {
	pilots := make([]Identity, 7)
	for i := range pilots {
		pilots[i] = Identity{ID: int64(i + 1)}
	}

	chunks := divideChunks(pilots, 3)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if len(chunks[0]) != 3 || len(chunks[1]) != 3 || len(chunks[2]) != 1 {
		t.Fatalf("unexpected chunk sizes: %d %d %d", len(chunks[0]), len(chunks[1]), len(chunks[2]))
	}
	if chunks[2][0].ID != 7 {
		t.Fatalf("chunking reordered pilots: %+v", chunks[2])
	}

	if chunks := divideChunks(nil, 3); chunks != nil {
		t.Fatalf("expected no chunks for empty input, got %v", chunks)
	}
	if chunks := divideChunks(pilots, 0); len(chunks) != 7 {
		t.Fatalf("size below 1 should degrade to 1, got %d chunks", len(chunks))
	}
}

func TestIdentityAffiliated(t *testing.T) {
	if (Identity{ID: 1}).Affiliated() {
		t.Fatal("identity without corp should not be affiliated")
	}
	if !(Identity{ID: 1, CorpID: 2001}).Affiliated() {
		t.Fatal("identity with corp should be affiliated")
	}
	// AllianceID 0 means no alliance, which is still a resolved state.
	if !(Identity{ID: 1, CorpID: 2001, AllianceID: 0}).Affiliated() {
		t.Fatal("corp without alliance should be affiliated")
	}
}
