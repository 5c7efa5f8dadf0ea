package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"
)

// ErrNotFound means a strict name lookup matched nothing. A valid
// outcome, not an upstream failure; never cached.
var ErrNotFound = errors.New("identity not found")

// errUpstreamUnavailable marks transport-level failures (no network, DNS,
// connection refused). These escalate to a batch-level abort instead of
// being retried forever.
var errUpstreamUnavailable = errors.New("upstream unavailable")

// affiliationBatchCeiling caps how many IDs go into one authority call.
// The upstream enforces 1000; current batches are far smaller, but the
// paging is cheap to keep.
const affiliationBatchCeiling = 1000

type affiliationRow struct {
	CharacterID int64 `json:"character_id"`
	CorpID      int64 `json:"corporation_id"`
	AllianceID  int64 `json:"alliance_id"`
}

type entityNameRow struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

type searchResponse struct {
	Character []int64 `json:"character"`
}

// resolveNameRemote performs one strict-match character search against
// the authority. Zero matches yields ErrNotFound.
func resolveNameRemote(cfg Config, name string) (int64, error) {
	query := url.Values{}
	query.Set("categories", "character")
	query.Set("strict", "true")
	query.Set("search", fmt.Sprintf("%q", name))
	reqURL := fmt.Sprintf("%s/latest/search/?datasource=tranquility&%s", cfg.ESIURL, query.Encode())

	var result searchResponse
	if err := getAuthority(cfg, reqURL, &result); err != nil {
		return 0, fmt.Errorf("resolving %q: %w", name, err)
	}
	if len(result.Character) == 0 {
		return 0, ErrNotFound
	}
	return result.Character[0], nil
}

// fetchAffiliations resolves pilot IDs to their corp and alliance IDs in
// batched authority calls, paged at the upstream's batch ceiling.
func fetchAffiliations(cfg Config, ids []int64) ([]affiliationRow, error) {
	var out []affiliationRow
	for start := 0; start < len(ids); start += affiliationBatchCeiling {
		end := start + affiliationBatchCeiling
		if end > len(ids) {
			end = len(ids)
		}
		var page []affiliationRow
		if err := postAuthority(cfg, "characters/affiliation/", ids[start:end], &page); err != nil {
			return nil, fmt.Errorf("fetching affiliations: %w", err)
		}
		out = append(out, page...)
	}
	return out, nil
}

// fetchEntityNames resolves corp/alliance IDs to display names, batched
// like fetchAffiliations.
func fetchEntityNames(cfg Config, ids []int64) ([]entityNameRow, error) {
	var out []entityNameRow
	for start := 0; start < len(ids); start += affiliationBatchCeiling {
		end := start + affiliationBatchCeiling
		if end > len(ids) {
			end = len(ids)
		}
		var page []entityNameRow
		if err := postAuthority(cfg, "universe/names/", ids[start:end], &page); err != nil {
			return nil, fmt.Errorf("fetching entity names: %w", err)
		}
		out = append(out, page...)
	}
	return out, nil
}

// fetchKillmail retrieves one authoritative record from the record
// service. Malformed bodies and error envelopes are retried with a fixed
// delay: a record referenced by a valid summary is guaranteed to exist
// eventually. UpstreamRetry bounds the attempts; -1 preserves the
// legacy retry-forever behavior.
func fetchKillmail(cfg Config, killmailID int64, hash string) (EventRecord, error) {
	reqURL := fmt.Sprintf("%s/v1/killmails/%d/%s/?datasource=tranquility", cfg.ESIURL, killmailID, hash)

	attempts := 0
	for {
		record, err := fetchKillmailOnce(reqURL)
		if err == nil {
			return record, nil
		}
		if errors.Is(err, errUpstreamUnavailable) {
			return EventRecord{}, err
		}
		attempts++
		if cfg.UpstreamRetry >= 0 && attempts >= cfg.UpstreamRetry {
			return EventRecord{}, fmt.Errorf("%w: killmail %d: giving up after %d attempts: %v",
				errMalformedEvent, killmailID, attempts, err)
		}
		log.Printf("record fetch retry killmail=%d attempt=%d err=%v", killmailID, attempts, err)
		time.Sleep(cfg.UpstreamDelay())
	}
}

func fetchKillmailOnce(reqURL string) (EventRecord, error) {
	req, err := http.NewRequest("GET", reqURL, nil)
	if err != nil {
		return EventRecord{}, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := externalHTTPClient.Do(req)
	if err != nil {
		return EventRecord{}, fmt.Errorf("%w: %v", errUpstreamUnavailable, err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return EventRecord{}, fmt.Errorf("reading record response: %w", err)
	}
	if resp.StatusCode != 200 {
		return EventRecord{}, fmt.Errorf("record service returned %d: %s", resp.StatusCode, string(body))
	}
	var record EventRecord
	if err := json.Unmarshal(body, &record); err != nil {
		return EventRecord{}, fmt.Errorf("parsing record response: %w", err)
	}
	return record, nil
}

// postAuthority issues one batched authority POST, retrying error
// responses with a fixed delay up to the configured bound. Transport
// failures are not retried: no network means the whole batch should
// abort rather than spin.
func postAuthority(cfg Config, path string, ids []int64, out any) error {
	payload, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	reqURL := fmt.Sprintf("%s/latest/%s?datasource=tranquility", cfg.ESIURL, path)

	attempts := 0
	for {
		req, err := http.NewRequest("POST", reqURL, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Content-Type", "application/json")

		resp, err := externalHTTPClient.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", errUpstreamUnavailable, path, err)
		}
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if readErr == nil && resp.StatusCode == 200 {
			if err := json.Unmarshal(body, out); err == nil {
				return nil
			}
			readErr = fmt.Errorf("parsing authority response")
		}
		attempts++
		if cfg.UpstreamRetry >= 0 && attempts >= cfg.UpstreamRetry {
			return fmt.Errorf("authority %s: giving up after %d attempts (last status %d)",
				path, attempts, resp.StatusCode)
		}
		log.Printf("authority retry path=%s attempt=%d status=%d err=%v", path, attempts, resp.StatusCode, readErr)
		time.Sleep(cfg.UpstreamDelay())
	}
}

// getAuthority mirrors postAuthority for GET endpoints.
func getAuthority(cfg Config, reqURL string, out any) error {
	attempts := 0
	for {
		req, err := http.NewRequest("GET", reqURL, nil)
		if err != nil {
			return err
		}
		req.Header.Set("User-Agent", userAgent)

		resp, err := externalHTTPClient.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", errUpstreamUnavailable, err)
		}
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if readErr == nil && resp.StatusCode == 200 {
			if err := json.Unmarshal(body, out); err == nil {
				return nil
			}
			readErr = fmt.Errorf("parsing authority response")
		}
		attempts++
		if cfg.UpstreamRetry >= 0 && attempts >= cfg.UpstreamRetry {
			return fmt.Errorf("authority: giving up after %d attempts (last status %d)", attempts, resp.StatusCode)
		}
		log.Printf("authority retry url=%s attempt=%d status=%d err=%v", reqURL, attempts, resp.StatusCode, readErr)
		time.Sleep(cfg.UpstreamDelay())
	}
}
