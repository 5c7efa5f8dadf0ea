package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// padRow builds one CSV line of the given width, with only the columns
// the importer reads populated. The dumps carry many columns we ignore.
func padRow(width int, vals map[int]string) string {
	fields := make([]string, width)
	for i := range fields {
		fields[i] = "0"
	}
	for i, v := range vals {
		fields[i] = v
	}
	return strings.Join(fields, ",")
}

func writeStaticFixtures(t *testing.T, dir string) {
	t.Helper()

	files := map[string][]string{
		"invTypes.csv": {
			"typeID,groupID,typeName",
			"587,25,Rifter",
			"19722,485,Naglfar",
			"23919,659,Aeon",
			"671,30,Avatar",
			"22440,898,Sin",
			"11957,833,Falcon",
			"3993,72,Large EMP Smart Bomb I",
		},
		"invGroups.csv": {
			"groupID,categoryID,groupName",
			"25,6,Frigate",
			"485,6,Dreadnought",
			"659,6,Supercarrier",
			"30,6,Titan",
			"898,6,Black Ops",
			"833,6,Force Recon Ship",
			"72,8,Smart Bomb",
			"10,3,Stargate",
		},
		"mapRegions.csv": {
			"regionID,regionName",
			"10000002,The Forge",
			"10000043,Domain",
		},
		"mapSolarSystems.csv": {
			padRow(22, nil), // header row is skipped
			padRow(22, map[int]string{0: "10000002", 2: "30000142", 3: "Jita", 21: "0.9"}),
			padRow(22, map[int]string{0: "10000002", 2: "30000600", 3: "Border", 21: "0.5"}),
			padRow(22, map[int]string{0: "10000043", 2: "30003491", 3: "Amdonen", 21: "0.4"}),
			padRow(22, map[int]string{0: "10000002", 2: "31000001", 3: "J100001", 21: "-0.99"}),
			padRow(22, map[int]string{0: "10000043", 2: "30000500", 3: "XZ-500", 21: "-0.2"}),
		},
		"mapDenormalize.csv": {
			padRow(10, nil), // header row is skipped
			padRow(10, map[int]string{0: "50000001", 1: "16", 2: "10", 3: "30000142", 7: "0", 8: "0", 9: "0"}),
			padRow(10, map[int]string{0: "50000002", 1: "16", 2: "10", 3: "30000500", 7: "1000000000", 8: "0", 9: "0"}),
		},
	}
	for name, lines := range files {
		content := strings.Join(lines, "\n") + "\n"
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}
}

func newTestStatic(t *testing.T) (*StaticData, Config) {
	t.Helper()
	dir := t.TempDir()
	writeStaticFixtures(t, dir)

	cfg := Config{
		StaticDir:    dir,
		StaticDBPath: filepath.Join(dir, "static-test.db"),
	}
	applyDefaults(&cfg)

	static, err := OpenStaticData(cfg)
	if err != nil {
		t.Fatalf("OpenStaticData failed: %v", err)
	}
	t.Cleanup(func() { _ = static.Close() })
	return static, cfg
}

func TestStaticDataRegionLookups(t *testing.T) {
	static, _ := newTestStatic(t)

	if name := static.RegionName(30000142); name != "The Forge" {
		t.Fatalf("unexpected region name: %q", name)
	}
	if name := static.RegionName(99999999); name != "" {
		t.Fatalf("unknown system should yield empty region, got %q", name)
	}
	id, ok := static.RegionID(30003491)
	if !ok || id != 10000043 {
		t.Fatalf("unexpected region ID: %d ok=%v", id, ok)
	}
	if label := static.RegionLabel(10000043); label != "Domain" {
		t.Fatalf("unexpected region label: %q", label)
	}
}

func TestSecurityBandThresholds(t *testing.T) {
	static, _ := newTestStatic(t)

	cases := []struct {
		systemID int64
		want     string
	}{
		{30000142, "highsec"},
		{30000600, "highsec"}, // 0.5 is above the 0.499999 floor
		{30003491, "lowsec"},
		{31000001, "wormhole"},
		{30000500, "nullsec"},
	}
	for _, tc := range cases {
		band, ok := static.SecurityBand(tc.systemID)
		if !ok {
			t.Fatalf("system %d: expected a band", tc.systemID)
		}
		if band != tc.want {
			t.Fatalf("system %d: expected %s, got %s", tc.systemID, tc.want, band)
		}
	}
	if _, ok := static.SecurityBand(99999999); ok {
		t.Fatal("unknown system should not classify")
	}
}

func TestShipName(t *testing.T) {
	static, _ := newTestStatic(t)

	if name := static.ShipName(587); name != "Rifter" {
		t.Fatalf("unexpected ship name: %q", name)
	}
	if name := static.ShipName(0); name != "" {
		t.Fatalf("zero type ID should yield empty name, got %q", name)
	}
	if name := static.ShipName(424242); name != "" {
		t.Fatalf("unknown type ID should yield empty name, got %q", name)
	}
}

func TestShipCategoryPredicates(t *testing.T) {
	static, _ := newTestStatic(t)

	if !static.IsCapital(19722) {
		t.Fatal("dreadnought should be a capital")
	}
	if !static.IsCapital(671) {
		t.Fatal("titan hulls count as capitals too")
	}
	if static.IsCapital(587) {
		t.Fatal("frigate is not a capital")
	}
	if !static.IsSuper(23919) {
		t.Fatal("supercarrier should be a super")
	}
	if !static.IsTitan(671) {
		t.Fatal("titan should be a titan")
	}
	if !static.IsBlops(22440) {
		t.Fatal("black ops hull not recognized")
	}
	if !static.IsRecon(11957) {
		t.Fatal("recon hull not recognized")
	}
}

func TestUsedPredicatesCheckSubjectOnly(t *testing.T) {
	static, _ := newTestStatic(t)

	attackers := []Attacker{
		{CharacterID: 100, ShipTypeID: 587},   // subject in a frigate
		{CharacterID: 200, ShipTypeID: 19722}, // someone else in a capital
	}
	if static.UsedCapital(attackers, 100) {
		t.Fatal("another pilot's capital should not count for the subject")
	}
	if !static.UsedCapital(attackers, 200) {
		t.Fatal("subject in a capital not detected")
	}

	attackers = []Attacker{{CharacterID: 100, ShipTypeID: 11957}}
	if !static.UsedCyno(attackers, 100) {
		t.Fatal("recon hull should count as cyno capability")
	}

	// Smartbombs are detected by weapon, not hull.
	attackers = []Attacker{{CharacterID: 100, ShipTypeID: 587, WeaponTypeID: 3993}}
	if !static.UsedSmartbomb(attackers, 100) {
		t.Fatal("smartbomb weapon not detected")
	}
	if static.UsedSmartbomb([]Attacker{{CharacterID: 100, ShipTypeID: 3993}}, 100) {
		t.Fatal("smartbomb as hull should not count")
	}
}

func TestKilledOnGate(t *testing.T) {
	static, _ := newTestStatic(t)

	base := Event{
		KillmailID:    1,
		KillmailTime:  time.Now().UTC(),
		SolarSystemID: 30000142,
	}

	near := base
	near.Victim.Position = &Position{X: 30000} // 30 km from the gate
	if !static.KilledOnGate(near) {
		t.Fatal("victim 30 km from a gate should count")
	}

	far := base
	far.Victim.Position = &Position{X: 50000} // 50 km out
	if static.KilledOnGate(far) {
		t.Fatal("victim 50 km from a gate should not count")
	}

	noPos := base
	if static.KilledOnGate(noPos) {
		t.Fatal("missing victim position should not count")
	}

	elsewhere := near
	elsewhere.SolarSystemID = 30003491 // no gates in fixture
	if static.KilledOnGate(elsewhere) {
		t.Fatal("system without gates should not count")
	}
}

func TestPositionDistance(t *testing.T) {
	a := Position{X: 3000, Y: 0, Z: 0}
	b := Position{X: 0, Y: 4000, Z: 0}
	if d := positionDistance(a, b); d != 5 {
		t.Fatalf("expected 5 km, got %f", d)
	}
}
