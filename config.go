package main

import (
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ListEntry is one row of the ignore or highlight list: a pilot, corp or
// alliance identified by ID and display name.
type ListEntry struct {
	ID   int64  `yaml:"id"`
	Name string `yaml:"name"`
	Kind string `yaml:"kind"` // "pilot", "corp", or "alliance"
}

// ShipCategories maps dangerous-ship categories to static-data group IDs.
// Category membership is data, not code: the defaults match the current
// game data but can be changed in config without a rebuild.
type ShipCategories struct {
	Capital   []int64 `yaml:"capital_group_ids"`
	Super     []int64 `yaml:"super_group_ids"`
	Titan     []int64 `yaml:"titan_group_ids"`
	Blops     []int64 `yaml:"blops_group_ids"`
	Recon     []int64 `yaml:"recon_group_ids"`
	Smartbomb []int64 `yaml:"smartbomb_group_ids"`
	Stargate  []int64 `yaml:"stargate_group_ids"`
}

type Config struct {
	ZkillURL      string `yaml:"zkill_url"`
	ESIURL        string `yaml:"esi_url"`
	StaticDumpURL string `yaml:"static_dump_url"`

	DBPath       string `yaml:"db_path"`
	StaticDBPath string `yaml:"static_db_path"`
	StaticDir    string `yaml:"static_dir"`

	NamesFile    string `yaml:"names_file"`
	Role         string `yaml:"role"` // "kills" or "losses"
	MaxKillmails int    `yaml:"max_killmails"`
	ChunkSize    int    `yaml:"chunk_size"`
	MaxNames     int    `yaml:"max_names"`

	ZkillRetry      int     `yaml:"zkill_retry"`
	ZkillMultiplier float64 `yaml:"zkill_multiplier"` // seconds; retry delay drawn from [0, multiplier)
	UpstreamRetry   int     `yaml:"upstream_retry"`   // -1 retries forever, preserving legacy behavior
	UpstreamDelayMS int     `yaml:"upstream_delay_ms"`

	CynoWarnRatio      float64 `yaml:"cyno_warn_ratio"`
	BlopsWarnRatio     float64 `yaml:"blops_warn_ratio"`
	SmartbombWarnRatio float64 `yaml:"smartbomb_warn_ratio"`
	GateCampWarnRatio  float64 `yaml:"gatecamp_warn_ratio"`
	CapitalWarnRatio   float64 `yaml:"capital_warn_ratio"`

	ReportOutputDir string `yaml:"report_output_dir"`
	TeamName        string `yaml:"team_name"`

	SlackBotToken   string `yaml:"slack_bot_token"`
	ReportChannelID string `yaml:"report_channel_id"`

	WatchCron         string `yaml:"watch_cron"`
	StaticRefreshCron string `yaml:"static_refresh_cron"`

	Ignored     []ListEntry    `yaml:"ignored"`
	Highlighted []ListEntry    `yaml:"highlighted"`
	Ships       ShipCategories `yaml:"ship_categories"`
}

func LoadConfig() Config {
	var cfg Config

	// Load from config.yaml if it exists
	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatalf("Error parsing %s: %v", configPath, err)
		}
		log.Printf("Loaded config from %s", configPath)
	}

	// Env vars override YAML values
	envOverride(&cfg.ZkillURL, "ZKILL_URL")
	envOverride(&cfg.ESIURL, "ESI_URL")
	envOverride(&cfg.StaticDumpURL, "STATIC_DUMP_URL")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.StaticDBPath, "STATIC_DB_PATH")
	envOverride(&cfg.StaticDir, "STATIC_DIR")
	envOverride(&cfg.NamesFile, "NAMES_FILE")
	envOverride(&cfg.Role, "ROLE")
	envOverrideInt(&cfg.MaxKillmails, "MAX_KILLMAILS")
	envOverrideInt(&cfg.ChunkSize, "CHUNK_SIZE")
	envOverrideInt(&cfg.MaxNames, "MAX_NAMES")
	envOverrideInt(&cfg.ZkillRetry, "ZKILL_RETRY")
	envOverrideFloat(&cfg.ZkillMultiplier, "ZKILL_MULTIPLIER")
	envOverrideInt(&cfg.UpstreamRetry, "UPSTREAM_RETRY")
	envOverrideInt(&cfg.UpstreamDelayMS, "UPSTREAM_DELAY_MS")
	envOverrideFloat(&cfg.CynoWarnRatio, "CYNO_WARN_RATIO")
	envOverrideFloat(&cfg.BlopsWarnRatio, "BLOPS_WARN_RATIO")
	envOverrideFloat(&cfg.SmartbombWarnRatio, "SMARTBOMB_WARN_RATIO")
	envOverrideFloat(&cfg.GateCampWarnRatio, "GATECAMP_WARN_RATIO")
	envOverrideFloat(&cfg.CapitalWarnRatio, "CAPITAL_WARN_RATIO")
	envOverride(&cfg.ReportOutputDir, "REPORT_OUTPUT_DIR")
	envOverride(&cfg.TeamName, "TEAM_NAME")
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.ReportChannelID, "REPORT_CHANNEL_ID")
	envOverride(&cfg.WatchCron, "WATCH_CRON")
	envOverride(&cfg.StaticRefreshCron, "STATIC_REFRESH_CRON")

	applyDefaults(&cfg)

	// Validate
	if cfg.Role != string(RoleKills) && cfg.Role != string(RoleLosses) {
		log.Fatalf("invalid role '%s': must be 'kills' or 'losses'", cfg.Role)
	}
	switch cfg.MaxKillmails {
	case 50, 100, 200:
	default:
		log.Fatalf("invalid max_killmails '%d': must be 50, 100 or 200", cfg.MaxKillmails)
	}
	if cfg.ChunkSize < 1 || cfg.ChunkSize > 90 {
		log.Fatalf("invalid chunk_size '%d': must be between 1 and 90", cfg.ChunkSize)
	}
	if cfg.ZkillRetry < 1 {
		log.Fatalf("invalid zkill_retry '%d': must be >= 1", cfg.ZkillRetry)
	}
	if cfg.ZkillMultiplier <= 0 {
		log.Fatalf("invalid zkill_multiplier '%f': must be > 0", cfg.ZkillMultiplier)
	}
	if cfg.UpstreamRetry < -1 {
		log.Fatalf("invalid upstream_retry '%d': must be >= -1 (-1 retries forever)", cfg.UpstreamRetry)
	}
	for _, ratio := range []struct {
		name string
		val  float64
	}{
		{"cyno_warn_ratio", cfg.CynoWarnRatio},
		{"blops_warn_ratio", cfg.BlopsWarnRatio},
		{"smartbomb_warn_ratio", cfg.SmartbombWarnRatio},
		{"gatecamp_warn_ratio", cfg.GateCampWarnRatio},
		{"capital_warn_ratio", cfg.CapitalWarnRatio},
	} {
		if ratio.val < 0 || ratio.val > 1 {
			log.Fatalf("invalid %s '%f': must be between 0 and 1", ratio.name, ratio.val)
		}
	}
	for _, entry := range append(append([]ListEntry{}, cfg.Ignored...), cfg.Highlighted...) {
		switch entry.Kind {
		case "pilot", "corp", "alliance":
		default:
			log.Fatalf("invalid list entry kind '%s' for '%s'", entry.Kind, entry.Name)
		}
	}

	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.ZkillURL == "" {
		cfg.ZkillURL = "https://zkillboard.com/api"
	}
	if cfg.ESIURL == "" {
		cfg.ESIURL = "https://esi.evetech.net"
	}
	if cfg.StaticDumpURL == "" {
		cfg.StaticDumpURL = "https://www.fuzzwork.co.uk/dump/latest"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./pilotintel.db"
	}
	if cfg.StaticDBPath == "" {
		cfg.StaticDBPath = "./staticdata.db"
	}
	if cfg.StaticDir == "" {
		cfg.StaticDir = "./staticdata"
	}
	if cfg.Role == "" {
		cfg.Role = string(RoleKills)
	}
	if cfg.MaxKillmails == 0 {
		cfg.MaxKillmails = 100
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = 50
	}
	if cfg.MaxNames == 0 {
		cfg.MaxNames = 500
	}
	if cfg.ZkillRetry == 0 {
		cfg.ZkillRetry = 50
	}
	if cfg.ZkillMultiplier == 0 {
		cfg.ZkillMultiplier = 1.5
	}
	if cfg.UpstreamRetry == 0 {
		cfg.UpstreamRetry = 40
	}
	if cfg.UpstreamDelayMS == 0 {
		cfg.UpstreamDelayMS = 250
	}
	if cfg.CynoWarnRatio == 0 {
		cfg.CynoWarnRatio = 0.01
	}
	if cfg.BlopsWarnRatio == 0 {
		cfg.BlopsWarnRatio = 0.01
	}
	if cfg.SmartbombWarnRatio == 0 {
		cfg.SmartbombWarnRatio = 0.1
	}
	if cfg.GateCampWarnRatio == 0 {
		cfg.GateCampWarnRatio = 0.25
	}
	if cfg.CapitalWarnRatio == 0 {
		cfg.CapitalWarnRatio = 0.25
	}
	if cfg.ReportOutputDir == "" {
		cfg.ReportOutputDir = "./reports"
	}
	if cfg.TeamName == "" {
		cfg.TeamName = "intel"
	}
	if len(cfg.Ships.Capital) == 0 {
		cfg.Ships.Capital = []int64{485, 547, 1538, 883, 1013, 30}
	}
	if len(cfg.Ships.Super) == 0 {
		cfg.Ships.Super = []int64{659}
	}
	if len(cfg.Ships.Titan) == 0 {
		cfg.Ships.Titan = []int64{30}
	}
	if len(cfg.Ships.Blops) == 0 {
		cfg.Ships.Blops = []int64{898}
	}
	if len(cfg.Ships.Recon) == 0 {
		cfg.Ships.Recon = []int64{833}
	}
	if len(cfg.Ships.Smartbomb) == 0 {
		cfg.Ships.Smartbomb = []int64{72}
	}
	if len(cfg.Ships.Stargate) == 0 {
		cfg.Ships.Stargate = []int64{10}
	}
}

// UpstreamDelay returns the fixed retry delay for authority and record
// service calls.
func (c Config) UpstreamDelay() time.Duration {
	return time.Duration(c.UpstreamDelayMS) * time.Millisecond
}

// IgnoredIDs returns the set of corp/alliance IDs on the ignore list,
// keyed to their display names for diagnostics.
func (c Config) IgnoredIDs() map[int64]string {
	out := make(map[int64]string)
	for _, entry := range c.Ignored {
		if entry.Kind == "corp" || entry.Kind == "alliance" {
			out[entry.ID] = entry.Name
		}
	}
	return out
}

// IgnoredNames returns the set of pilot names on the ignore list.
func (c Config) IgnoredNames() map[string]bool {
	out := make(map[string]bool)
	for _, entry := range c.Ignored {
		if entry.Kind == "pilot" {
			out[entry.Name] = true
		}
	}
	return out
}

// IsHighlighted reports whether a result touches the highlight list.
func (c Config) IsHighlighted(id Identity) bool {
	for _, entry := range c.Highlighted {
		switch entry.Kind {
		case "pilot":
			if entry.ID == id.ID || entry.Name == id.Name {
				return true
			}
		case "corp":
			if entry.ID == id.CorpID {
				return true
			}
		case "alliance":
			if entry.ID != 0 && entry.ID == id.AllianceID {
				return true
			}
		}
	}
	return false
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}

func envOverrideFloat(field *float64, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}
