package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"strings"
	"time"
)

// ErrRateLimited means the ranking service refused a summary page for
// the whole retry budget. The pilot's profile must surface as "query
// incomplete", never as an empty history.
var ErrRateLimited = errors.New("ranking service rate limited")

// fetchKillPage requests one page of event summaries for a pilot. An
// empty JSON array is the upstream's explicit "no history" sentinel and
// a success. Failed attempts are retried up to cfg.ZkillRetry with a
// randomized delay drawn uniformly from [0, cfg.ZkillMultiplier) seconds
// so concurrently retried pilots do not resynchronize into bursts.
func fetchKillPage(cfg Config, pilotID int64, role Role, page int) ([]EventSummary, error) {
	reqURL := fmt.Sprintf("%s/%s/characterID/%d/page/%d/", cfg.ZkillURL, role, pilotID, page)

	for attempt := 0; attempt < cfg.ZkillRetry; attempt++ {
		summaries, empty, err := fetchKillPageOnce(reqURL)
		if err == nil {
			if empty {
				log.Printf("zkill empty history pilot=%d role=%s", pilotID, role)
				return nil, nil
			}
			return summaries, nil
		}
		log.Printf("zkill fetch failed pilot=%d attempt=%d err=%v", pilotID, attempt+1, err)
		time.Sleep(zkillBackoff(cfg))
	}
	return nil, fmt.Errorf("pilot %d page %d: %w", pilotID, page, ErrRateLimited)
}

func fetchKillPageOnce(reqURL string) (summaries []EventSummary, empty bool, err error) {
	req, err := http.NewRequest("GET", reqURL, nil)
	if err != nil {
		return nil, false, err
	}
	// The transport negotiates gzip itself and decompresses transparently.
	req.Header.Set("User-Agent", userAgent)

	resp, err := externalHTTPClient.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != 200 {
		return nil, false, fmt.Errorf("ranking service returned %d", resp.StatusCode)
	}
	if strings.TrimSpace(string(body)) == "[]" {
		return nil, true, nil
	}
	if err := json.Unmarshal(body, &summaries); err != nil {
		return nil, false, fmt.Errorf("parsing response: %w", err)
	}
	return summaries, false, nil
}

func zkillBackoff(cfg Config) time.Duration {
	return time.Duration(rand.Float64() * cfg.ZkillMultiplier * float64(time.Second))
}
