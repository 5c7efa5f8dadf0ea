package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// BuildReportContent renders a sweep's results into the plain-text
// report consumers see: one block per pilot with string-formatted
// percentages, comma-joined top-3 lists and a nullable warning line.
// Incomplete queries are marked explicitly so they can never be mistaken
// for pilots with no history. Highlighted pilots carry a leading marker.
func BuildReportContent(cfg Config, sweep SweepResult, generatedAt time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Pilot intel report %s\n", generatedAt.UTC().Format("2006-01-02 15:04 UTC"))
	fmt.Fprintf(&b, "Pilots profiled: %d  Filtered before run: %d\n\n", len(sweep.Results), sweep.Filtered)

	for _, result := range sweep.Results {
		id := result.Identity

		marker := ""
		if cfg.IsHighlighted(id) {
			marker = "* "
		}
		affiliation := id.CorpName
		if id.AllianceName != "" {
			affiliation = fmt.Sprintf("%s / %s", id.CorpName, id.AllianceName)
		}
		if affiliation != "" {
			fmt.Fprintf(&b, "%s%s [%s]\n", marker, id.Name, affiliation)
		} else {
			fmt.Fprintf(&b, "%s%s\n", marker, id.Name)
		}

		if result.Status != StatusOK {
			fmt.Fprintf(&b, "  QUERY INCOMPLETE (%s)\n\n", result.Status)
			continue
		}

		p := result.Profile
		if p.ProcessedKillmails == 0 {
			b.WriteString("  no recorded history\n\n")
			continue
		}

		fmt.Fprintf(&b, "  killmails: %d  timezone: %s  space: %s\n",
			p.ProcessedKillmails, p.Timezone, p.SpaceType)
		fmt.Fprintf(&b, "  fleets >9: %d (avg %d)  gangs: %d (avg %d)  avg value: %s\n",
			p.Pro10, p.Avg10, p.ProGang, p.AvgGang, formatISK(p.AverageKillValue))
		fmt.Fprintf(&b, "  capital: %s  blops: %s  cyno: %s  smartbomb: %s  gatecamp: %s\n",
			formatPercent(p.CapitalUse), formatPercent(p.BlopsUse), formatPercent(p.CynoUse),
			formatPercent(p.SmartbombUse), formatPercent(p.GateCampUse))
		if p.TopShips != "" {
			fmt.Fprintf(&b, "  ships: %s\n", p.TopShips)
		}
		if p.Top10Ships != "" {
			fmt.Fprintf(&b, "  fleet ships: %s\n", p.Top10Ships)
		}
		if p.TopGangShips != "" {
			fmt.Fprintf(&b, "  gang ships: %s\n", p.TopGangShips)
		}
		if p.TopRegions != "" {
			fmt.Fprintf(&b, "  regions: %s\n", p.TopRegions)
		}
		if p.Associates != "" {
			fmt.Fprintf(&b, "  flies with: %s\n", p.Associates)
		}
		if p.Warning != "" {
			fmt.Fprintf(&b, "  WARNING: %s\n", p.Warning)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// formatPercent renders a [0,1] ratio as a whole percentage string.
func formatPercent(ratio float64) string {
	return fmt.Sprintf("%.0f%%", ratio*100)
}

// formatISK renders a kill value in the compact millions/billions style
// pilots are used to reading.
func formatISK(value float64) string {
	switch {
	case value >= 1e9:
		return fmt.Sprintf("%.1fb", value/1e9)
	case value >= 1e6:
		return fmt.Sprintf("%.1fm", value/1e6)
	case value >= 1e3:
		return fmt.Sprintf("%.1fk", value/1e3)
	default:
		return fmt.Sprintf("%.0f", value)
	}
}

func WriteReportFile(content, outputDir string, reportDate time.Time, teamName string) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", err
	}
	filename := fmt.Sprintf("%s_%s.txt", teamName, reportDate.Format("20060102_150405"))
	path := filepath.Join(outputDir, filename)
	return path, os.WriteFile(path, []byte(content), 0644)
}
