// Package langmap maps a REPL language name to its container image,
// interpreter invocation, and dependency-install prelude, grounded on
// original_source/crates/repl-api/src/lib.rs's Language enum (spec §4.4).
package langmap

import (
	"strings"
)

// Entry describes one supported language.
type Entry struct {
	Image        string
	buildPrelude func(deps []string) string
	buildExec    func(code string) []string
}

var table = map[string]Entry{
	"python": {
		Image: "python:3.11-slim",
		buildPrelude: func(deps []string) string {
			return "pip install --quiet " + strings.Join(deps, " ") + " &&"
		},
		buildExec: func(code string) []string {
			return []string{"python", "-c", code}
		},
	},
	"node": {
		Image: "node:20-alpine",
		buildPrelude: func(deps []string) string {
			return "npm install --global --silent " + strings.Join(deps, " ") + " &&"
		},
		buildExec: func(code string) []string {
			return []string{"node", "-e", code}
		},
	},
	"ruby": {
		Image: "ruby:3.2-alpine",
		buildPrelude: func(deps []string) string {
			return "gem install --silent " + strings.Join(deps, " ") + " &&"
		},
		buildExec: func(code string) []string {
			return []string{"ruby", "-e", code}
		},
	},
	"go": {
		Image: "golang:1.22-alpine",
		buildPrelude: func(deps []string) string {
			return "go install " + strings.Join(deps, " ") + " &&"
		},
		buildExec: func(code string) []string {
			return []string{"sh", "-c", `printf %s "$CODE" > /t.go && go run /t.go`}
		},
	},
	"rust": {
		Image: "rust:1.79-slim",
		buildPrelude: func(deps []string) string {
			return "cargo install --quiet " + strings.Join(deps, " ") + " &&"
		},
		buildExec: func(code string) []string {
			return []string{"sh", "-c", `printf %s "$CODE" > /t.rs && rustc /t.rs -o /t.bin && /t.bin`}
		},
	},
}

// Languages lists the supported language names in the spec's fixed order.
func Languages() []string {
	return []string{"python", "node", "ruby", "go", "rust"}
}

// Supported reports whether name is a member of the supported set.
func Supported(name string) bool {
	_, ok := table[name]
	return ok
}

// Image returns the container image for a language.
func Image(name string) string {
	return table[name].Image
}

// BuildCommand returns the full argv the Orchestrator should run,
// wrapping with a dependency-install prelude when dependencies is
// non-empty (spec §4.4: "When dependencies exist, the effective command
// is `sh -c "<prelude> <interpreter-invocation>"`").
//
// go and rust execute via an embedded shell script already; their code is
// passed through the CODE environment variable rather than interpolated
// into the command line, so user code never has to survive shell quoting.
func BuildCommand(language, code string, dependencies []string) []string {
	entry, ok := table[language]
	if !ok {
		return nil
	}

	exec := entry.buildExec(code)
	if len(dependencies) == 0 {
		return exec
	}

	prelude := entry.buildPrelude(dependencies)
	var inner string
	if exec[0] == "sh" && len(exec) == 3 {
		inner = exec[2]
	} else {
		inner = strings.Join(exec, " ")
	}
	return []string{"sh", "-c", prelude + " " + inner}
}

// NeedsCodeEnv reports whether this language's command expects user code to
// arrive via the CODE environment variable instead of being inlined (true
// for go and rust, which write the source to a file before compiling).
func NeedsCodeEnv(language string) bool {
	return language == "go" || language == "rust"
}
