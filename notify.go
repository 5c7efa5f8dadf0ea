package main

import (
	"fmt"
	"log"

	"github.com/slack-go/slack"
)

// PostReportToSlack sends the rendered report to the configured channel.
// A no-op when Slack is not configured; intel reports are still written
// to disk either way.
func PostReportToSlack(cfg Config, content string) error {
	if cfg.SlackBotToken == "" || cfg.ReportChannelID == "" {
		return nil
	}
	api := slack.New(cfg.SlackBotToken)
	_, _, err := api.PostMessage(
		cfg.ReportChannelID,
		slack.MsgOptionText(fmt.Sprintf("```%s```", content), false),
	)
	if err != nil {
		return fmt.Errorf("posting report to slack: %w", err)
	}
	log.Printf("report posted channel=%s", cfg.ReportChannelID)
	return nil
}
