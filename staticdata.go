package main

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"os"
	"path/filepath"
)

// Security band labels. Thresholds are fixed game-domain policy: systems
// above 0.5 are high security, the -0.99 sentinel marks wormhole space.
const (
	bandHighsec  = "highsec"
	bandLowsec   = "lowsec"
	bandWormhole = "wormhole"
	bandNullsec  = "nullsec"
)

const (
	highsecFloor     = 0.499999
	lowsecFloor      = 0.01
	wormholeSentinel = -0.99
)

// gateCampDistance is the radius (in km) around a stargate within which
// a victim is considered to have died on the gate.
const gateCampDistance = 40.0

var staticFiles = []string{
	"invTypes.csv",
	"invGroups.csv",
	"mapSolarSystems.csv",
	"mapRegions.csv",
	"mapDenormalize.csv",
}

type systemEntry struct {
	RegionID int64
	Security float64
}

// StaticData is the read-only reference service: numeric type and
// location codes resolved to names, security classification, stargate
// positions and the dangerous-ship category sets. Built once from the
// public CSV dumps, refreshed out-of-band.
type StaticData struct {
	db *sql.DB

	regions map[int64]string
	systems map[int64]systemEntry
	gates   map[int64][]Position

	capitals   map[int64]bool
	supers     map[int64]bool
	titans     map[int64]bool
	blops      map[int64]bool
	recons     map[int64]bool
	smartbombs map[int64]bool
}

// OpenStaticData opens the static database, building it from the CSV
// dumps first if it does not exist. Missing CSV files are downloaded
// from the configured dump mirror.
func OpenStaticData(cfg Config) (*StaticData, error) {
	_, statErr := os.Stat(cfg.StaticDBPath)
	exists := statErr == nil

	db, err := sql.Open("sqlite3", cfg.StaticDBPath)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := buildStaticDB(db, cfg); err != nil {
			db.Close()
			return nil, err
		}
	}

	s := &StaticData{db: db}
	if err := s.loadTables(cfg); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *StaticData) Close() error {
	return s.db.Close()
}

// RefreshStaticData discards the current static database and CSV dumps
// and rebuilds from freshly-downloaded files.
func RefreshStaticData(cfg Config) (*StaticData, error) {
	for _, file := range staticFiles {
		_ = os.Remove(filepath.Join(cfg.StaticDir, file))
	}
	if err := os.Remove(cfg.StaticDBPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("static refresh: %w", err)
	}
	return OpenStaticData(cfg)
}

func buildStaticDB(db *sql.DB, cfg Config) error {
	if err := os.MkdirAll(cfg.StaticDir, 0755); err != nil {
		return err
	}
	for _, file := range staticFiles {
		path := filepath.Join(cfg.StaticDir, file)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := downloadStaticFile(cfg, file, path); err != nil {
			return err
		}
	}

	schema := `
	CREATE TABLE IF NOT EXISTS invTypes (
		typeID   INTEGER PRIMARY KEY,
		groupID  INTEGER,
		typeName TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_invTypes_group ON invTypes(groupID);

	CREATE TABLE IF NOT EXISTS invGroups (
		groupID    INTEGER PRIMARY KEY,
		categoryID INTEGER,
		groupName  TEXT
	);

	CREATE TABLE IF NOT EXISTS mapSolarSystems (
		solarSystemID   INTEGER PRIMARY KEY,
		regionID        INTEGER,
		solarSystemName TEXT,
		security        REAL
	);

	CREATE TABLE IF NOT EXISTS mapRegions (
		regionID   INTEGER PRIMARY KEY,
		regionName TEXT
	);

	CREATE TABLE IF NOT EXISTS mapDenormalize (
		itemID        INTEGER PRIMARY KEY,
		typeID        INTEGER,
		groupID       INTEGER,
		solarSystemID INTEGER,
		x REAL, y REAL, z REAL
	);
	CREATE INDEX IF NOT EXISTS idx_mapDenormalize_group ON mapDenormalize(groupID);
	`
	if _, err := db.Exec(schema); err != nil {
		return err
	}

	// Column positions in the dump CSVs.
	imports := []struct {
		file   string
		insert string
		cols   []int
	}{
		{"invTypes.csv", `INSERT OR REPLACE INTO invTypes (typeID, groupID, typeName) VALUES (?, ?, ?)`, []int{0, 1, 2}},
		{"invGroups.csv", `INSERT OR REPLACE INTO invGroups (groupID, categoryID, groupName) VALUES (?, ?, ?)`, []int{0, 1, 2}},
		{"mapSolarSystems.csv", `INSERT OR REPLACE INTO mapSolarSystems (regionID, solarSystemID, solarSystemName, security) VALUES (?, ?, ?, ?)`, []int{0, 2, 3, 21}},
		{"mapRegions.csv", `INSERT OR REPLACE INTO mapRegions (regionID, regionName) VALUES (?, ?)`, []int{0, 1}},
		{"mapDenormalize.csv", `INSERT OR REPLACE INTO mapDenormalize (itemID, typeID, groupID, solarSystemID, x, y, z) VALUES (?, ?, ?, ?, ?, ?, ?)`, []int{0, 1, 2, 3, 7, 8, 9}},
	}
	for _, imp := range imports {
		if err := importCSV(db, filepath.Join(cfg.StaticDir, imp.file), imp.insert, imp.cols); err != nil {
			return fmt.Errorf("importing %s: %w", imp.file, err)
		}
	}
	return nil
}

func importCSV(db *sql.DB, path, insert string, cols []int) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	// First row is the header.
	if _, err := reader.Read(); err != nil {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(insert)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		args := make([]any, len(cols))
		skip := false
		for i, col := range cols {
			if col >= len(row) {
				skip = true
				break
			}
			// The dumps encode missing values as "None".
			if row[col] == "None" {
				args[i] = nil
			} else {
				args[i] = row[col]
			}
		}
		if skip {
			continue
		}
		if _, err := stmt.Exec(args...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func downloadStaticFile(cfg Config, file, dest string) error {
	url := fmt.Sprintf("%s/%s", cfg.StaticDumpURL, file)
	log.Printf("static data download url=%s", url)

	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := externalHTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("downloading %s: %w", file, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return fmt.Errorf("downloading %s: status %d", file, resp.StatusCode)
	}

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("writing %s: %w", dest, err)
	}
	return nil
}

func (s *StaticData) loadTables(cfg Config) error {
	s.regions = make(map[int64]string)
	rows, err := s.db.Query(`SELECT regionID, regionName FROM mapRegions`)
	if err != nil {
		return err
	}
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			rows.Close()
			return err
		}
		s.regions[id] = name
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	s.systems = make(map[int64]systemEntry)
	rows, err = s.db.Query(`SELECT solarSystemID, regionID, security FROM mapSolarSystems`)
	if err != nil {
		return err
	}
	for rows.Next() {
		var id int64
		var entry systemEntry
		if err := rows.Scan(&id, &entry.RegionID, &entry.Security); err != nil {
			rows.Close()
			return err
		}
		s.systems[id] = entry
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	s.gates = make(map[int64][]Position)
	gateRows, err := s.db.Query(
		`SELECT solarSystemID, x, y, z FROM mapDenormalize
		 WHERE groupID IN (` + placeholderList(cfg.Ships.Stargate) + `) AND solarSystemID IS NOT NULL`)
	if err != nil {
		return err
	}
	for gateRows.Next() {
		var systemID int64
		var pos Position
		if err := gateRows.Scan(&systemID, &pos.X, &pos.Y, &pos.Z); err != nil {
			gateRows.Close()
			return err
		}
		s.gates[systemID] = append(s.gates[systemID], pos)
	}
	gateRows.Close()
	if err := gateRows.Err(); err != nil {
		return err
	}

	var loadErr error
	load := func(groups []int64) map[int64]bool {
		if loadErr != nil {
			return nil
		}
		set, err := s.typeIDsByGroups(groups)
		if err != nil {
			loadErr = err
		}
		return set
	}
	s.capitals = load(cfg.Ships.Capital)
	s.supers = load(cfg.Ships.Super)
	s.titans = load(cfg.Ships.Titan)
	s.blops = load(cfg.Ships.Blops)
	s.recons = load(cfg.Ships.Recon)
	s.smartbombs = load(cfg.Ships.Smartbomb)
	return loadErr
}

func (s *StaticData) typeIDsByGroups(groups []int64) (map[int64]bool, error) {
	out := make(map[int64]bool)
	if len(groups) == 0 {
		return out, nil
	}
	rows, err := s.db.Query(`SELECT typeID FROM invTypes WHERE groupID IN (` + placeholderList(groups) + `)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

// placeholderList inlines numeric IDs into an IN clause. The IDs come
// from config, not user input.
func placeholderList(ids []int64) string {
	out := ""
	for i, id := range ids {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%d", id)
	}
	return out
}

// RegionName resolves a solar system to its region's display name, or
// "" for an unknown system.
func (s *StaticData) RegionName(systemID int64) string {
	sys, ok := s.systems[systemID]
	if !ok {
		return ""
	}
	return s.regions[sys.RegionID]
}

// RegionID resolves a solar system to its region ID.
func (s *StaticData) RegionID(systemID int64) (int64, bool) {
	sys, ok := s.systems[systemID]
	return sys.RegionID, ok
}

// RegionLabel resolves a region ID to its display name, or "".
func (s *StaticData) RegionLabel(regionID int64) string {
	return s.regions[regionID]
}

// SecurityBand classifies a solar system's security status. ok is false
// for a system missing from the static data.
func (s *StaticData) SecurityBand(systemID int64) (string, bool) {
	sys, ok := s.systems[systemID]
	if !ok {
		return "", false
	}
	switch {
	case sys.Security > highsecFloor:
		return bandHighsec, true
	case sys.Security > lowsecFloor:
		return bandLowsec, true
	case sys.Security == wormholeSentinel:
		return bandWormhole, true
	default:
		return bandNullsec, true
	}
}

// ShipName resolves a ship type ID to its display name, or "" when the
// ID is zero or unknown.
func (s *StaticData) ShipName(typeID int64) string {
	if typeID == 0 {
		return ""
	}
	var name string
	err := s.db.QueryRow(`SELECT typeName FROM invTypes WHERE typeID = ?`, typeID).Scan(&name)
	if err != nil {
		return ""
	}
	return name
}

func (s *StaticData) IsCapital(typeID int64) bool { return s.capitals[typeID] }
func (s *StaticData) IsSuper(typeID int64) bool   { return s.supers[typeID] }
func (s *StaticData) IsTitan(typeID int64) bool   { return s.titans[typeID] }
func (s *StaticData) IsBlops(typeID int64) bool   { return s.blops[typeID] }
func (s *StaticData) IsRecon(typeID int64) bool   { return s.recons[typeID] }

// UsedCapital reports whether the subject pilot appeared among the
// attackers in a capital-class hull.
func (s *StaticData) UsedCapital(attackers []Attacker, pilotID int64) bool {
	for _, a := range attackers {
		if a.CharacterID == pilotID && s.capitals[a.ShipTypeID] {
			return true
		}
	}
	return false
}

func (s *StaticData) UsedSuper(attackers []Attacker, pilotID int64) bool {
	for _, a := range attackers {
		if a.CharacterID == pilotID && s.supers[a.ShipTypeID] {
			return true
		}
	}
	return false
}

func (s *StaticData) UsedTitan(attackers []Attacker, pilotID int64) bool {
	for _, a := range attackers {
		if a.CharacterID == pilotID && s.titans[a.ShipTypeID] {
			return true
		}
	}
	return false
}

func (s *StaticData) UsedBlops(attackers []Attacker, pilotID int64) bool {
	for _, a := range attackers {
		if a.CharacterID == pilotID && s.blops[a.ShipTypeID] {
			return true
		}
	}
	return false
}

// UsedCyno treats flying a recon hull as cyno capability.
func (s *StaticData) UsedCyno(attackers []Attacker, pilotID int64) bool {
	for _, a := range attackers {
		if a.CharacterID == pilotID && s.recons[a.ShipTypeID] {
			return true
		}
	}
	return false
}

// UsedSmartbomb checks the weapon type, not the hull.
func (s *StaticData) UsedSmartbomb(attackers []Attacker, pilotID int64) bool {
	for _, a := range attackers {
		if a.CharacterID == pilotID && s.smartbombs[a.WeaponTypeID] {
			return true
		}
	}
	return false
}

// KilledOnGate reports whether the event's victim died within
// gateCampDistance of any stargate in the system.
func (s *StaticData) KilledOnGate(ev Event) bool {
	gates, ok := s.gates[ev.SolarSystemID]
	if !ok || ev.Victim.Position == nil {
		return false
	}
	for _, gate := range gates {
		if positionDistance(*ev.Victim.Position, gate) < gateCampDistance {
			return true
		}
	}
	return false
}

// positionDistance returns the distance between two map positions in km.
func positionDistance(a, b Position) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	dz := a.Z - b.Z
	return math.Sqrt(dx*dx+dy*dy+dz*dz) / 1000
}
