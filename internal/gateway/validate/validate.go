// Package validate implements the Gateway's code-safety pipeline: size and
// dependency-count bounds, a blocking pattern set, language-specific
// warning-only patterns, and a dependency-name format check. Grounded on
// original_source/crates/repl-api/src/security.rs, translated from Rust's
// once_cell + regex tables into a Go rule set compiled once at package
// init (spec §4.4).
package validate

import (
	"regexp"
	"strings"
)

// MaxCodeBytes and MaxDependencies are the spec §3 defaults; the Gateway's
// config may override them per-deployment.
const (
	MaxCodeBytes    = 1 << 20 // 1 MiB
	MaxDependencies = 20
)

var dependencyNamePattern = regexp.MustCompile(`^[A-Za-z0-9_\-./:@]+$`)

// rule is one entry in the blocking/warning pattern table.
type rule struct {
	name    string
	pattern *regexp.Regexp
	block   bool
}

// blockingRules apply to every language (spec §4.4 step 4).
var blockingRules = []rule{
	{name: "fork_bomb", pattern: regexp.MustCompile(`:\s*\(\s*\)\s*\{.*:\s*\|\s*:&.*\};\s*:`), block: true},
	{name: "reverse_shell", pattern: regexp.MustCompile(`bash\s+-i\s+>&\s*/dev/tcp/`), block: true},
	{name: "network_scanner", pattern: regexp.MustCompile(`nmap|masscan|zmap`), block: true},
	{name: "crypto_miner", pattern: regexp.MustCompile(`xmrig|ethminer|cgminer`), block: true},
	{name: "destructive_root_rm", pattern: regexp.MustCompile(`rm\s+-rf\s+/(?:\b|\s|$)`), block: true},
	{name: "trivial_infinite_loop", pattern: regexp.MustCompile(`while\s*(true|\(1\))`), block: true},
	{name: "sql_injection", pattern: regexp.MustCompile(`(?i)(union\s+select|drop\s+table|delete\s+from\s+\w+\s+where\s+1\s*=\s*1)`), block: true},
}

// languageBlockingRules apply per language and block: python, node and ruby
// have blocking rules here, while go and rust only have the warning-only
// rules in languageWarningRules below.
var languageBlockingRules = map[string][]rule{
	"python": {
		{name: "python_os_system", pattern: regexp.MustCompile(`os\.system|subprocess|\beval\(|\bexec\(`), block: true},
	},
	"node": {
		{name: "node_child_process", pattern: regexp.MustCompile(`child_process|\beval\(|new\s+Function`), block: true},
	},
	"ruby": {
		{name: "ruby_system_eval", pattern: regexp.MustCompile("\\bsystem\\(|\\beval\\(|`[^`]*`"), block: true},
	},
}

var languageWarningRules = map[string][]rule{
	"go":   {{name: "go_os_exec", pattern: regexp.MustCompile(`os/exec|syscall`), block: false}},
	"rust": {{name: "rust_unsafe", pattern: regexp.MustCompile(`unsafe\s*\{`), block: false}},
}

// suspiciousDependencyKeywords supplements spec.md's explicit dependency
// checks with the original's is_suspicious_dependency keyword list — not
// excluded by any Non-goal, and already implemented upstream.
var suspiciousDependencyKeywords = []string{
	"miner", "mining", "crypto", "xmr", "monero",
	"botnet", "exploit", "payload", "backdoor",
	"keylog", "stealer", "ransomware",
}

// Violation is one failed or warned rule.
type Violation struct {
	Rule    string
	Message string
	Block   bool
}

// Result is the outcome of Validate.
type Result struct {
	Safe       bool
	Violations []Violation
}

// FirstBlocking returns the name of the first blocking violation, or "" if
// none.
func (r Result) FirstBlocking() string {
	for _, v := range r.Violations {
		if v.Block {
			return v.Rule
		}
	}
	return ""
}

// Validate runs the full pipeline described in spec §4.4 steps 1-5 and
// returns every violation found; the caller decides how to react (block
// on the first Block violation, log the rest as warnings). maxCodeBytes
// and maxDependencies of 0 fall back to the package defaults, so callers
// without a configured Gateway limit still get sane bounds.
func Validate(code, language string, dependencies []string, maxCodeBytes, maxDependencies int) Result {
	if maxCodeBytes <= 0 {
		maxCodeBytes = MaxCodeBytes
	}
	if maxDependencies <= 0 {
		maxDependencies = MaxDependencies
	}

	var violations []Violation

	if len(code) > maxCodeBytes {
		violations = append(violations, Violation{
			Rule:    "max_code_size",
			Message: "code exceeds the maximum allowed size",
			Block:   true,
		})
	}

	if len(dependencies) > maxDependencies {
		violations = append(violations, Violation{
			Rule:    "max_dependencies",
			Message: "too many dependencies requested",
			Block:   true,
		})
	}

	for _, dep := range dependencies {
		if !dependencyNamePattern.MatchString(dep) {
			violations = append(violations, Violation{
				Rule:    "invalid_dependency_name",
				Message: "dependency name contains disallowed characters: " + dep,
				Block:   true,
			})
		}
		if isSuspiciousDependency(dep) {
			violations = append(violations, Violation{
				Rule:    "suspicious_dependency",
				Message: "dependency name looks suspicious: " + dep,
				Block:   true,
			})
		}
	}

	for _, ru := range blockingRules {
		if ru.pattern.MatchString(code) {
			violations = append(violations, Violation{Rule: ru.name, Message: ru.name + " pattern detected", Block: ru.block})
		}
	}

	for _, ru := range languageBlockingRules[language] {
		if ru.pattern.MatchString(code) {
			violations = append(violations, Violation{Rule: ru.name, Message: ru.name + " pattern detected", Block: ru.block})
		}
	}

	for _, ru := range languageWarningRules[language] {
		if ru.pattern.MatchString(code) {
			violations = append(violations, Violation{Rule: ru.name, Message: ru.name + " pattern detected (warning only)", Block: ru.block})
		}
	}

	safe := true
	for _, v := range violations {
		if v.Block {
			safe = false
			break
		}
	}

	return Result{Safe: safe, Violations: violations}
}

func isSuspiciousDependency(dep string) bool {
	lower := strings.ToLower(dep)
	for _, kw := range suspiciousDependencyKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
