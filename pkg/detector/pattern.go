package detector

import (
	"regexp"
	"time"

	"github.com/codeready-toolchain/incidentbot/pkg/config"
	"github.com/codeready-toolchain/incidentbot/pkg/logstream"
)

// patternRule is one compiled literal/regex signal mapped to a severity
// band, evaluated in descending severity order so the first match wins.
type patternRule struct {
	name     string
	severity config.Severity
	regex    *regexp.Regexp
}

var patternRules = []patternRule{
	{
		name:     "fatal_panic_oom",
		severity: config.SeverityCritical,
		regex:    regexp.MustCompile(`(?i)\b(fatal|panic|oom|out of memory|killed by oom)\b`),
	},
	{
		name:     "connection_refused",
		severity: config.SeverityHigh,
		regex:    regexp.MustCompile(`(?i)\b(econnrefused|connection refused|tls handshake failed)\b`),
	},
	{
		name:     "http_5xx",
		severity: config.SeverityHigh,
		regex:    regexp.MustCompile(`(?i)(http 5\d\d|internal server error|exception|traceback|stack ?trace)`),
	},
}

var timeoutRule = regexp.MustCompile(`(?i)\b(timeout|deadline exceeded)\b`)

// ruleActions maps a fired pattern rule name to the remediation action the
// pattern lane proposes for it, absent a contradicting LLM judgment. OOM
// and panic signals point at scale_memory first since a memory ceiling is
// the far more common cause of a Railway OOM kill than a code regression;
// restart is still offered for the other lanes as the cheapest recovery.
var ruleActions = map[string]config.RecommendedAction{
	"fatal_panic_oom":    config.ActionScaleMemory,
	"connection_refused": config.ActionRestart,
	"http_5xx":           config.ActionRestart,
	"timeout_deadline":   config.ActionScaleReplicas,
}

// recommendedActionForRule returns the pattern lane's proposed action for
// rule, or config.ActionNone if rule matches nothing known (including the
// zero value for a non-match).
func recommendedActionForRule(rule string) config.RecommendedAction {
	if a, ok := ruleActions[rule]; ok {
		return a
	}
	return config.ActionNone
}

const (
	timeoutWindow    = 60 * time.Second
	timeoutThreshold = 3
)

// patternMatch is the pattern lane's verdict for one incoming event,
// evaluated against its service's current window.
type patternMatch struct {
	matched  bool
	severity config.Severity
	rule     string
}

// classifyPattern runs the pattern lane against the latest event in the
// context of its window. "warn alone does not escalate": a plain warn-level
// line with no matching signal never produces a match.
func classifyPattern(window []logstream.LogEvent, evt logstream.LogEvent) patternMatch {
	for _, rule := range patternRules {
		if rule.regex.MatchString(evt.Message) {
			return patternMatch{matched: true, severity: rule.severity, rule: rule.name}
		}
	}

	if timeoutRule.MatchString(evt.Message) {
		hits := countMatches(window, timeoutRule, evt.Timestamp.Add(-timeoutWindow))
		if hits >= timeoutThreshold {
			return patternMatch{matched: true, severity: config.SeverityMedium, rule: "timeout_deadline"}
		}
	}

	return patternMatch{}
}

// countMatches counts window entries at or after since whose message
// matches re, including evt itself since evt is expected to already be
// appended to window by the caller.
func countMatches(window []logstream.LogEvent, re *regexp.Regexp, since time.Time) int {
	count := 0
	for _, e := range window {
		if e.Timestamp.Before(since) {
			continue
		}
		if re.MatchString(e.Message) {
			count++
		}
	}
	return count
}
