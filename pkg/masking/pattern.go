// Package masking redacts credentials and other sensitive substrings from
// raw log lines before they are persisted, sent to an LLM, or posted to
// chat.
package masking

import (
	"log/slog"
	"regexp"
)

// CompiledPattern holds a pre-compiled regex pattern with its replacement.
type CompiledPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
	Description string
}

// builtinPatternSpecs are the patterns compiled into every Service
// regardless of configuration. These cover the credential shapes that must
// never reach chat or an LLM prompt unmasked.
var builtinPatternSpecs = []PatternSpec{
	{
		Name:        "aws_access_key",
		Pattern:     `AKIA[0-9A-Z]{16}`,
		Replacement: "***AWS_ACCESS_KEY***",
		Description: "AWS access key ID",
	},
	{
		Name:        "aws_secret_key",
		Pattern:     `(?i)aws_secret_access_key["']?\s*[:=]\s*["']?[A-Za-z0-9/+=]{40}`,
		Replacement: "aws_secret_access_key=***AWS_SECRET***",
		Description: "AWS secret access key",
	},
	{
		Name:        "bearer_token",
		Pattern:     `(?i)bearer\s+[A-Za-z0-9\-._~+/]+=*`,
		Replacement: "Bearer ***TOKEN***",
		Description: "HTTP Authorization bearer token",
	},
	{
		Name:        "api_key_field",
		Pattern:     `(?i)(api[_-]?key|apikey)["']?\s*[:=]\s*["']?[A-Za-z0-9\-_]{16,}`,
		Replacement: "api_key=***API_KEY***",
		Description: "generic api_key= assignment",
	},
	{
		Name:        "password_field",
		Pattern:     `(?i)(password|passwd|pwd)["']?\s*[:=]\s*["']?[^\s"']{4,}`,
		Replacement: "password=***PASSWORD***",
		Description: "password= assignment",
	},
	{
		Name:        "private_key_block",
		Pattern:     `-----BEGIN [A-Z ]*PRIVATE KEY-----[\s\S]*?-----END [A-Z ]*PRIVATE KEY-----`,
		Replacement: "***PRIVATE_KEY_REDACTED***",
		Description: "PEM private key block",
	},
	{
		Name:        "jwt",
		Pattern:     `eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+`,
		Replacement: "***JWT***",
		Description: "JSON Web Token",
	},
	{
		Name:        "email",
		Pattern:     `[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`,
		Replacement: "***EMAIL***",
		Description: "email address",
	},
}

// PatternSpec is an uncompiled masking rule. Custom, per-service patterns
// use the same shape as the built-ins.
type PatternSpec struct {
	Name        string
	Pattern     string
	Replacement string
	Description string
}

// compilePatterns compiles a list of pattern specs, logging and skipping
// any that fail to compile rather than refusing to start the service over
// one bad regex.
func compilePatterns(specs []PatternSpec) []*CompiledPattern {
	compiled := make([]*CompiledPattern, 0, len(specs))
	for _, spec := range specs {
		re, err := regexp.Compile(spec.Pattern)
		if err != nil {
			slog.Error("failed to compile masking pattern, skipping",
				"pattern", spec.Name, "error", err)
			continue
		}
		compiled = append(compiled, &CompiledPattern{
			Name:        spec.Name,
			Regex:       re,
			Replacement: spec.Replacement,
			Description: spec.Description,
		})
	}
	return compiled
}
