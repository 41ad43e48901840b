package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/hive-corporation/ransomwatch/internal/core/ports"
)

const (
	DefaultSlackAPIURL = "https://slack.com/api/chat.postMessage"

	// maxListedAdvisories keeps a large first-run discovery within Slack's block limits
	maxListedAdvisories = 10
)

type SlackNotifier struct {
	botToken    string
	channel     string
	mentionTeam string
	apiURL      string
	httpClient  *http.Client
}

// SlackOption configures a SlackNotifier.
type SlackOption func(*SlackNotifier)

// WithAPIURL points the notifier at a different chat.postMessage endpoint.
func WithAPIURL(url string) SlackOption {
	return func(s *SlackNotifier) { s.apiURL = url }
}

func WithHTTPClient(client *http.Client) SlackOption {
	return func(s *SlackNotifier) { s.httpClient = client }
}

func NewSlackNotifier(botToken, channel, mentionTeam string, opts ...SlackOption) *SlackNotifier {
	s := &SlackNotifier{
		botToken:    botToken,
		channel:     channel,
		mentionTeam: mentionTeam,
		apiURL:      DefaultSlackAPIURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NotifyNewAdvisories announces advisories that were not in the index before this run
func (s *SlackNotifier) NotifyNewAdvisories(advisories []ports.AdvisoryNotification) error {
	if len(advisories) == 0 {
		return nil
	}

	payload := SlackMessage{
		Channel: s.channel,
		Blocks:  s.buildNewAdvisoryBlocks(advisories),
		Text:    fmt.Sprintf("🚨 %d new #StopRansomware advisories published", len(advisories)),
	}

	return s.sendMessage(payload)
}

// NotifyIngestionSummary reports the outcome of an update run
func (s *SlackNotifier) NotifyIngestionSummary(summary ports.IngestionNotification) error {
	payload := SlackMessage{
		Channel: s.channel,
		Blocks:  s.buildSummaryBlocks(summary),
		Text:    fmt.Sprintf("ransomwatch update: %d advisories, %d IOCs stored", summary.Advisories, summary.IOCsStored),
	}

	return s.sendMessage(payload)
}

func (s *SlackNotifier) buildNewAdvisoryBlocks(advisories []ports.AdvisoryNotification) []SlackBlock {
	blocks := []SlackBlock{
		{
			Type: "header",
			Text: &SlackText{
				Type: "plain_text",
				Text: "🚨 New #StopRansomware Advisories",
			},
		},
	}

	for i, adv := range advisories {
		if i >= maxListedAdvisories {
			blocks = append(blocks, SlackBlock{
				Type: "section",
				Text: &SlackText{
					Type: "mrkdwn",
					Text: fmt.Sprintf("_...and %d more advisories_", len(advisories)-maxListedAdvisories),
				},
			})
			break
		}

		blocks = append(blocks, SlackBlock{
			Type: "section",
			Text: &SlackText{
				Type: "mrkdwn",
				Text: fmt.Sprintf("*<%s|%s>*\n%s", adv.URL, strings.ToUpper(adv.AdvisoryID), adv.Title),
			},
		})
	}

	if s.mentionTeam != "" {
		blocks = append(blocks, SlackBlock{Type: "divider"}, SlackBlock{
			Type: "section",
			Text: &SlackText{
				Type: "mrkdwn",
				Text: fmt.Sprintf("🔔 %s", s.mentionTeam),
			},
		})
	}

	return blocks
}

func (s *SlackNotifier) buildSummaryBlocks(summary ports.IngestionNotification) []SlackBlock {
	sources := make([]string, 0, len(summary.BySource))
	for source := range summary.BySource {
		sources = append(sources, source)
	}
	sort.Strings(sources)

	fields := []SlackText{
		{Type: "mrkdwn", Text: fmt.Sprintf("*Advisories*\n%d", summary.Advisories)},
		{Type: "mrkdwn", Text: fmt.Sprintf("*IOCs Stored*\n%d", summary.IOCsStored)},
	}
	for _, source := range sources {
		fields = append(fields, SlackText{
			Type: "mrkdwn",
			Text: fmt.Sprintf("*%s*\n%d", source, summary.BySource[source]),
		})
	}

	blocks := []SlackBlock{
		{
			Type: "header",
			Text: &SlackText{
				Type: "plain_text",
				Text: "📥 Advisory Ingestion Complete",
			},
		},
		{
			Type:   "section",
			Fields: fields,
		},
	}

	if len(summary.Failures) > 0 {
		blocks = append(blocks, SlackBlock{
			Type: "context",
			Elements: []SlackText{
				{
					Type: "mrkdwn",
					Text: fmt.Sprintf("⚠️ %d artifacts could not be processed", len(summary.Failures)),
				},
			},
		})
	}

	return blocks
}

// Send message to Slack
func (s *SlackNotifier) sendMessage(msg SlackMessage) error {
	jsonData, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal Slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, s.apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.botToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack API returned status %d", resp.StatusCode)
	}

	// Slack reports most failures with a 200 and ok=false
	var result struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil && !result.OK && result.Error != "" {
		return fmt.Errorf("slack API error: %s", result.Error)
	}

	return nil
}

// Slack API structures

type SlackMessage struct {
	Channel string       `json:"channel"`
	Blocks  []SlackBlock `json:"blocks"`
	Text    string       `json:"text"` // Fallback text
}

type SlackBlock struct {
	Type     string      `json:"type"`
	Text     *SlackText  `json:"text,omitempty"`
	Fields   []SlackText `json:"fields,omitempty"`
	Elements []SlackText `json:"elements,omitempty"`
}

type SlackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}
