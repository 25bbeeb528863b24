package conversation

import (
	"regexp"
	"strconv"
	"strings"
)

// IntentKind is one of the fixed set of commands the conversation manager
// recognizes without calling out to an LLM.
type IntentKind string

const (
	IntentStatus        IntentKind = "status"
	IntentLogs          IntentKind = "logs"
	IntentDeployments   IntentKind = "deployments"
	IntentRestart       IntentKind = "restart"
	IntentRedeploy      IntentKind = "redeploy"
	IntentStop          IntentKind = "stop"
	IntentScaleMemory   IntentKind = "scale_memory"
	IntentScaleReplicas IntentKind = "scale_replicas"
	IntentRollback      IntentKind = "rollback"
	IntentHelp          IntentKind = "help"
	IntentResolve       IntentKind = "resolve"
	IntentUnknown       IntentKind = "unknown"
)

// readOnlyIntents answer by calling the platform client directly; they
// never synthesize a remediation request.
var readOnlyIntents = map[IntentKind]bool{
	IntentStatus:      true,
	IntentLogs:        true,
	IntentDeployments: true,
}

// mutatingIntents synthesize an auto_fix_requested emission with
// initiator=user.
var mutatingIntents = map[IntentKind]bool{
	IntentRestart:       true,
	IntentRedeploy:      true,
	IntentStop:          true,
	IntentScaleMemory:   true,
	IntentScaleReplicas: true,
	IntentRollback:      true,
}

// Intent is the parsed result of one line of user text.
type Intent struct {
	Kind       IntentKind
	Parameters map[string]interface{}
}

var (
	scaleMemoryPattern   = regexp.MustCompile(`(?i)^scale\s+memory\s+(\d+)\s*(mb)?$`)
	scaleReplicasPattern = regexp.MustCompile(`(?i)^scale\s+replicas?\s+(\d+)$`)
)

// ParseIntent classifies a line of chat text into the fixed grammar:
// status, logs, deployments, restart, redeploy, stop,
// scale memory <mb>, scale replicas <n>, rollback, help, resolve.
// Anything else is IntentUnknown and falls through to the LLM-backed
// free-text reply.
func ParseIntent(text string) Intent {
	trimmed := strings.ToLower(strings.TrimSpace(text))

	switch trimmed {
	case "status":
		return Intent{Kind: IntentStatus}
	case "logs":
		return Intent{Kind: IntentLogs}
	case "deployments":
		return Intent{Kind: IntentDeployments}
	case "restart":
		return Intent{Kind: IntentRestart}
	case "redeploy":
		return Intent{Kind: IntentRedeploy}
	case "stop":
		return Intent{Kind: IntentStop}
	case "rollback":
		return Intent{Kind: IntentRollback}
	case "help":
		return Intent{Kind: IntentHelp}
	case "resolve":
		return Intent{Kind: IntentResolve}
	}

	if m := scaleMemoryPattern.FindStringSubmatch(trimmed); m != nil {
		mb, _ := strconv.Atoi(m[1])
		return Intent{Kind: IntentScaleMemory, Parameters: map[string]interface{}{"memory_mb": mb}}
	}
	if m := scaleReplicasPattern.FindStringSubmatch(trimmed); m != nil {
		n, _ := strconv.Atoi(m[1])
		return Intent{Kind: IntentScaleReplicas, Parameters: map[string]interface{}{"num_replicas": n}}
	}

	return Intent{Kind: IntentUnknown}
}

// IsReadOnly reports whether the intent is answered directly from the
// platform client without involving the remediation coordinator.
func (i Intent) IsReadOnly() bool { return readOnlyIntents[i.Kind] }

// IsMutating reports whether the intent should synthesize an
// auto_fix_requested emission.
func (i Intent) IsMutating() bool { return mutatingIntents[i.Kind] }
