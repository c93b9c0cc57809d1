package langmap

import (
	"strings"
	"testing"
)

func TestLanguagesFixedOrder(t *testing.T) {
	t.Parallel()

	want := []string{"python", "node", "ruby", "go", "rust"}
	got := Languages()
	if len(got) != len(want) {
		t.Fatalf("Languages() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Languages()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSupportedAndImage(t *testing.T) {
	t.Parallel()

	for _, lang := range Languages() {
		if !Supported(lang) {
			t.Errorf("Supported(%q) = false, want true", lang)
		}
		if Image(lang) == "" {
			t.Errorf("Image(%q) = \"\", want a non-empty image", lang)
		}
	}

	if Supported("cobol") {
		t.Error("Supported(\"cobol\") = true, want false")
	}
}

func TestBuildCommandWithoutDependencies(t *testing.T) {
	t.Parallel()

	cmd := BuildCommand("python", `print("hi")`, nil)
	want := []string{"python", "-c", `print("hi")`}
	if len(cmd) != len(want) {
		t.Fatalf("BuildCommand() = %v, want %v", cmd, want)
	}
	for i := range want {
		if cmd[i] != want[i] {
			t.Fatalf("BuildCommand()[%d] = %q, want %q", i, cmd[i], want[i])
		}
	}
}

func TestBuildCommandWithDependenciesWrapsInShell(t *testing.T) {
	t.Parallel()

	cmd := BuildCommand("python", `print("hi")`, []string{"requests"})
	if len(cmd) != 3 || cmd[0] != "sh" || cmd[1] != "-c" {
		t.Fatalf("BuildCommand() = %v, want a 3-element sh -c invocation", cmd)
	}
	if !strings.Contains(cmd[2], "pip install") {
		t.Fatalf("BuildCommand()[2] = %q, want it to contain the install prelude", cmd[2])
	}
	if !strings.Contains(cmd[2], `print("hi")`) {
		t.Fatalf("BuildCommand()[2] = %q, want it to contain the original invocation", cmd[2])
	}
}

func TestBuildCommandGoAndRustAlreadyShellWrapped(t *testing.T) {
	t.Parallel()

	for _, lang := range []string{"go", "rust"} {
		cmd := BuildCommand(lang, "package main", []string{"example.com/dep"})
		if len(cmd) != 3 || cmd[0] != "sh" || cmd[1] != "-c" {
			t.Fatalf("BuildCommand(%q) = %v, want a single sh -c invocation, not a nested one", lang, cmd)
		}
		if strings.Count(cmd[2], "sh -c") != 0 {
			t.Fatalf("BuildCommand(%q)[2] = %q, want no nested sh -c", lang, cmd[2])
		}
	}
}

func TestNeedsCodeEnv(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"python": false,
		"node":   false,
		"ruby":   false,
		"go":     true,
		"rust":   true,
	}
	for lang, want := range cases {
		if got := NeedsCodeEnv(lang); got != want {
			t.Errorf("NeedsCodeEnv(%q) = %v, want %v", lang, got, want)
		}
	}
}
