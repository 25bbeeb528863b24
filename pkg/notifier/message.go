package notifier

import (
	"fmt"
	"unicode/utf8"

	goslack "github.com/slack-go/slack"
)

const maxBlockTextLength = 2900

var severityEmoji = map[string]string{
	"critical": ":red_circle:",
	"high":     ":large_orange_circle:",
	"medium":   ":large_yellow_circle:",
	"low":      ":large_blue_circle:",
}

var resolutionEmoji = map[string]string{
	"resolved":        ":white_check_mark:",
	"ignored":         ":no_entry_sign:",
	"auto_remediated": ":white_check_mark:",
	"failed":          ":x:",
}

func incidentURL(dashboardURL, incidentID string) string {
	if dashboardURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/incidents/%s", dashboardURL, incidentID)
}

// AlertInput carries the fields needed to render a new-incident alert.
type AlertInput struct {
	IncidentID        string
	ServiceName       string
	Environment       string
	Severity          string
	Confidence        float64
	RootCause         string
	RecommendedAction string
	DetectedAt        string
	Fingerprint       string
}

// BuildAlertMessage renders the Block Kit blocks for a freshly detected
// incident, including the auto_fix/start_chat/ignore interactive buttons.
func BuildAlertMessage(input AlertInput, dashboardURL string) []goslack.Block {
	emoji := severityEmoji[input.Severity]
	if emoji == "" {
		emoji = ":question:"
	}

	header := fmt.Sprintf("%s *%s incident in %s/%s*", emoji, input.Severity, input.ServiceName, input.Environment)
	var blocks []goslack.Block
	blocks = append(blocks, goslack.NewSectionBlock(
		goslack.NewTextBlockObject(goslack.MarkdownType, header, false, false),
		nil, nil,
	))

	fields := []*goslack.TextBlockObject{
		goslack.NewTextBlockObject(goslack.MarkdownType, fmt.Sprintf("*Confidence:*\n%.0f%%", input.Confidence*100), false, false),
		goslack.NewTextBlockObject(goslack.MarkdownType, fmt.Sprintf("*Detected:*\n%s", input.DetectedAt), false, false),
	}
	blocks = append(blocks, goslack.NewSectionBlock(nil, fields, nil))

	if input.RootCause != "" {
		text := fmt.Sprintf("*Root cause:*\n%s", truncateForSlack(input.RootCause))
		blocks = append(blocks, goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false),
			nil, nil,
		))
	}
	if input.RecommendedAction != "" {
		text := fmt.Sprintf("*Recommended action:*\n%s", truncateForSlack(input.RecommendedAction))
		blocks = append(blocks, goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false),
			nil, nil,
		))
	}

	autoFix := goslack.NewButtonBlockElement("auto_fix", "auto_fix:"+input.IncidentID,
		goslack.NewTextBlockObject(goslack.PlainTextType, "Auto-fix", false, false))
	autoFix.Style = goslack.StylePrimary
	startChat := goslack.NewButtonBlockElement("start_chat", "start_chat:"+input.IncidentID,
		goslack.NewTextBlockObject(goslack.PlainTextType, "Investigate", false, false))
	ignore := goslack.NewButtonBlockElement("ignore", "ignore:"+input.IncidentID,
		goslack.NewTextBlockObject(goslack.PlainTextType, "Ignore", false, false))
	ignore.Style = goslack.StyleDanger

	blocks = append(blocks, goslack.NewActionBlock("incident_actions", autoFix, startChat, ignore))

	if url := incidentURL(dashboardURL, input.IncidentID); url != "" {
		ctxText := fmt.Sprintf("<%s|View in dashboard> · fingerprint `%s`", url, input.Fingerprint)
		blocks = append(blocks, goslack.NewContextBlock("",
			goslack.NewTextBlockObject(goslack.MarkdownType, ctxText, false, false)))
	}

	return blocks
}

// ResolutionInput carries the fields needed to render a resolution update,
// posted as a threaded reply to the original alert.
type ResolutionInput struct {
	IncidentID string
	Status     string // resolved, ignored, auto_remediated, failed
	Summary    string
}

// BuildResolutionMessage renders the Block Kit blocks for a terminal
// incident status update.
func BuildResolutionMessage(input ResolutionInput) []goslack.Block {
	emoji := resolutionEmoji[input.Status]
	if emoji == "" {
		emoji = ":question:"
	}
	text := fmt.Sprintf("%s *%s*", emoji, input.Status)
	if input.Summary != "" {
		text += "\n" + truncateForSlack(input.Summary)
	}
	return []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false),
			nil, nil,
		),
	}
}

// BuildConfirmMessage renders the confirm_auto_fix/cancel_auto_fix button
// row posted after the auto_fix refine step. The value carried by both
// buttons encodes the action to confirm, not just the incident, since the
// confirmation is for a specific remediation, not merely "proceed".
func BuildConfirmMessage(incidentID, actionName, reasoning string) []goslack.Block {
	text := fmt.Sprintf("Ready to run *%s* on this incident.", actionName)
	if reasoning != "" {
		text += "\n" + truncateForSlack(reasoning)
	}
	section := goslack.NewSectionBlock(
		goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false),
		nil, nil,
	)

	value := fmt.Sprintf("confirm:%s:%s", incidentID, actionName)
	confirm := goslack.NewButtonBlockElement("confirm_auto_fix", value,
		goslack.NewTextBlockObject(goslack.PlainTextType, "Confirm", false, false))
	confirm.Style = goslack.StylePrimary
	cancel := goslack.NewButtonBlockElement("cancel_auto_fix", value,
		goslack.NewTextBlockObject(goslack.PlainTextType, "Cancel", false, false))
	cancel.Style = goslack.StyleDanger

	return []goslack.Block{section, goslack.NewActionBlock("confirm_auto_fix_actions", confirm, cancel)}
}

// BuildTextMessage renders a single plain section block, used for
// conversation replies that don't need the richer incident layout.
func BuildTextMessage(text string) []goslack.Block {
	return []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, truncateForSlack(text), false, false),
			nil, nil,
		),
	}
}

func truncateForSlack(text string) string {
	if utf8.RuneCountInString(text) <= maxBlockTextLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxBlockTextLength]) + "\n\n_... (truncated)_"
}
