package detector

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"

	"github.com/codeready-toolchain/incidentbot/pkg/config"
)

var (
	uuidPattern     = regexp.MustCompile(`(?i)[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
	durationPattern = regexp.MustCompile(`(?i)\b\d+(\.\d+)?(ms|ns|us|s|m|h)\b`)
	numberPattern   = regexp.MustCompile(`\b\d+\b`)
	quotedPattern   = regexp.MustCompile(`"[^"]*"|'[^']*'`)
)

// normalizeTemplate replaces numbers, UUIDs, durations and quoted strings
// with typed placeholders so that structurally identical log lines with
// different values collapse to the same template.
func normalizeTemplate(message string) string {
	t := uuidPattern.ReplaceAllString(message, "<uuid>")
	t = durationPattern.ReplaceAllString(t, "<duration>")
	t = quotedPattern.ReplaceAllString(t, "<string>")
	t = numberPattern.ReplaceAllString(t, "<num>")
	return t
}

// fingerprint computes a stable hash over (normalized_message_template,
// level, service_id), truncated to 16 hex characters. Fingerprint
// collisions identify "the same kind of failure" and drive deduplication
// in the incident store.
func fingerprint(message string, level config.LogLevel, serviceID string) string {
	template := normalizeTemplate(message)
	sum := sha256.Sum256([]byte(template + "|" + string(level) + "|" + serviceID))
	return hex.EncodeToString(sum[:])[:16]
}
