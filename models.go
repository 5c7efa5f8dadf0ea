package main

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Role selects which side of a pilot's combat history the ranking
// service is asked for.
type Role string

const (
	RoleKills  Role = "kills"
	RoleLosses Role = "losses"
)

// Identity is a resolved pilot: a stable numeric ID plus affiliation.
// AllianceID of 0 means the pilot's corporation is not in an alliance,
// not "unknown"; an unresolved affiliation is signalled by CorpID == 0.
type Identity struct {
	ID           int64
	Name         string
	CorpID       int64
	AllianceID   int64
	CorpName     string
	AllianceName string
}

// Affiliated reports whether the identity's group fields have been
// resolved. Every real pilot belongs to a corporation.
func (id Identity) Affiliated() bool {
	return id.CorpID != 0
}

// EventSummary is one lightweight entry from the ranking service's
// kill list: the event key plus the integrity hash needed to fetch the
// authoritative record.
type EventSummary struct {
	KillmailID int64   `json:"killmail_id"`
	ZKB        ZKBMeta `json:"zkb"`
}

type ZKBMeta struct {
	Hash       string  `json:"hash"`
	TotalValue float64 `json:"totalValue"`
	LocationID int64   `json:"locationID"`
}

// EventRecord is the authoritative half of an event from the record
// service. Immutable once fetched; cached forever by killmail ID.
type EventRecord struct {
	KillmailID    int64      `json:"killmail_id"`
	KillmailTime  time.Time  `json:"killmail_time"`
	SolarSystemID int64      `json:"solar_system_id"`
	Victim        Victim     `json:"victim"`
	Attackers     []Attacker `json:"attackers"`
}

type Victim struct {
	CharacterID int64     `json:"character_id"`
	CorpID      int64     `json:"corporation_id"`
	AllianceID  int64     `json:"alliance_id"`
	ShipTypeID  int64     `json:"ship_type_id"`
	DamageTaken int64     `json:"damage_taken"`
	Position    *Position `json:"position"`
}

type Attacker struct {
	CharacterID  int64 `json:"character_id"`
	CorpID       int64 `json:"corporation_id"`
	AllianceID   int64 `json:"alliance_id"`
	ShipTypeID   int64 `json:"ship_type_id"`
	WeaponTypeID int64 `json:"weapon_type_id"`
	DamageDone   int64 `json:"damage_done"`
	FinalBlow    bool  `json:"final_blow"`
}

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Event is the fully-merged combat record: summary metadata from the
// ranking service joined with the authoritative record by killmail ID.
type Event struct {
	KillmailID    int64
	Hash          string
	TotalValue    float64
	KillmailTime  time.Time
	SolarSystemID int64
	Victim        Victim
	Attackers     []Attacker
}

var errMalformedEvent = errors.New("malformed event")

// mergeEvent joins the two halves of an event. Authoritative fields win
// on collision, which for the shared key means the halves must agree.
// Records missing required sub-fields are rejected here, once, so the
// aggregator can assume well-formed input.
func mergeEvent(summary EventSummary, record EventRecord) (Event, error) {
	if record.KillmailID != summary.KillmailID {
		return Event{}, fmt.Errorf("%w: killmail %d: record key %d does not match summary",
			errMalformedEvent, summary.KillmailID, record.KillmailID)
	}
	if record.KillmailTime.IsZero() {
		return Event{}, fmt.Errorf("%w: killmail %d: missing killmail_time", errMalformedEvent, summary.KillmailID)
	}
	if record.SolarSystemID == 0 {
		return Event{}, fmt.Errorf("%w: killmail %d: missing solar_system_id", errMalformedEvent, summary.KillmailID)
	}
	if len(record.Attackers) == 0 {
		return Event{}, fmt.Errorf("%w: killmail %d: no attackers", errMalformedEvent, summary.KillmailID)
	}
	return Event{
		KillmailID:    record.KillmailID,
		Hash:          summary.ZKB.Hash,
		TotalValue:    summary.ZKB.TotalValue,
		KillmailTime:  record.KillmailTime,
		SolarSystemID: record.SolarSystemID,
		Victim:        record.Victim,
		Attackers:     record.Attackers,
	}, nil
}

// ResultStatus marks whether a pilot's profile is backed by a complete
// query. A rate-limited or unresolvable pilot must stay distinguishable
// from one with genuinely no history.
type ResultStatus string

const (
	StatusOK          ResultStatus = "ok"
	StatusRateLimited ResultStatus = "rate limited"
	StatusNotFound    ResultStatus = "not found"
	StatusError       ResultStatus = "retrieval failed"
)

// PilotResult pairs an identity with its profile for one batch run.
type PilotResult struct {
	Identity Identity
	Profile  Profile
	Status   ResultStatus
}

// Profile is the fixed-shape statistical reduction of one pilot's event
// history. All ratio fields are computed against processed count plus
// epsilon and lie in [0, 1]; top-N fields are pre-collapsed, comma-joined
// name lists. An empty Warning means no warning.
type Profile struct {
	ProcessedKillmails int

	Timezone  string // dominant timezone summary, e.g. "USTZ: 85% (12)"
	SpaceType string // dominant security band, e.g. "lowsec"

	AverageKillValue float64
	AveragePilots    int

	Pro10   int // events with a large fleet (>9 attackers)
	ProGang int // events with a small gang
	Avg10   int // average fleet size across large-fleet events
	AvgGang int // average gang size across small-gang events

	CapitalUse   float64
	BlopsUse     float64
	CynoUse      float64
	SmartbombUse float64
	GateCampUse  float64
	Supers       int
	Titans       int

	TopShips     string
	Top10Ships   string
	TopGangShips string
	TopRegions   string
	Associates   string

	Warning string
}

// tzBucket accumulates activity for one fixed UTC-hour window. Kills is
// seeded with epsilon so ratio math never divides by true zero.
type tzBucket struct {
	Label     string
	Kills     float64
	Attackers int
}

const epsilon = 0.01

// Timezone bucket boundaries are domain convention: game-hour windows
// dominated by each player region. Preserve the exact labels and cutoffs.
const (
	tzBoundaryEarly = 6  // [0,6) -> USTZ
	tzBoundaryLate  = 14 // [6,14) -> AUTZ, [14,24) -> EUTZ
)

func timezoneLabel(hourUTC int) string {
	if hourUTC < tzBoundaryEarly {
		return "USTZ"
	}
	if hourUTC < tzBoundaryLate {
		return "AUTZ"
	}
	return "EUTZ"
}

// counter is a frequency map that remembers insertion order so that
// top-N collapsing is deterministic: equal counts rank first-seen-first.
type counter struct {
	order  []int64
	counts map[int64]int
}

func newCounter() *counter {
	return &counter{counts: make(map[int64]int)}
}

func (c *counter) add(key int64) {
	if _, seen := c.counts[key]; !seen {
		c.order = append(c.order, key)
	}
	c.counts[key]++
}

// topThree returns up to three keys by descending count, ties broken by
// first insertion.
func (c *counter) topThree() []int64 {
	keys := make([]int64, len(c.order))
	copy(keys, c.order)
	sort.SliceStable(keys, func(i, j int) bool {
		return c.counts[keys[i]] > c.counts[keys[j]]
	})
	if len(keys) > 3 {
		keys = keys[:3]
	}
	return keys
}

func (c *counter) count(key int64) int {
	return c.counts[key]
}

// addWarning appends a trigger to a warning string with the fixed
// separator consumers expect.
func addWarning(existing, tag string) string {
	if existing == "" {
		return tag
	}
	return existing + " + " + tag
}

// divideChunks splits pilots into fixed-size chunks, the unit of
// concurrency for a batch run. The final chunk may be short.
func divideChunks(pilots []Identity, size int) [][]Identity {
	if size < 1 {
		size = 1
	}
	var chunks [][]Identity
	for start := 0; start < len(pilots); start += size {
		end := start + size
		if end > len(pilots) {
			end = len(pilots)
		}
		chunks = append(chunks, pilots[start:end])
	}
	return chunks
}
