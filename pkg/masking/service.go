package masking

import "log/slog"

// Service applies credential and PII redaction to log lines before they
// are persisted, summarized by an LLM, or posted to chat. Created once at
// startup; safe for concurrent use since all state is read-only after
// construction.
type Service struct {
	patterns []*CompiledPattern
}

// NewService compiles the built-in patterns plus any service-specific
// custom patterns (for credential shapes peculiar to one monitored
// service) into a single ordered pattern set.
func NewService(custom []PatternSpec) *Service {
	specs := make([]PatternSpec, 0, len(builtinPatternSpecs)+len(custom))
	specs = append(specs, builtinPatternSpecs...)
	specs = append(specs, custom...)

	s := &Service{patterns: compilePatterns(specs)}

	slog.Info("masking service initialized",
		"builtin_patterns", len(builtinPatternSpecs),
		"custom_patterns", len(custom),
		"compiled_patterns", len(s.patterns))

	return s
}

// Mask applies every compiled pattern to text in order and returns the
// redacted result. Empty input returns empty input without allocating.
func (s *Service) Mask(text string) string {
	if text == "" {
		return text
	}
	masked := text
	for _, p := range s.patterns {
		masked = p.Regex.ReplaceAllString(masked, p.Replacement)
	}
	return masked
}

// MaskAll applies Mask to every string in lines, returning a new slice.
func (s *Service) MaskAll(lines []string) []string {
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = s.Mask(line)
	}
	return out
}
