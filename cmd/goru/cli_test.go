package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/goru/internal/config"
)

func executeCommand(root *cobra.Command, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestCLIHelp(t *testing.T) {
	output, err := executeCommand(newRootCmd(), "--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, phrase := range []string{"goru", "Starlark", "serve", "run", "repl", "cache", "--config", "--log-level"} {
		if !strings.Contains(output, phrase) {
			t.Errorf("help output should contain %q", phrase)
		}
	}
}

func TestCLISubcommandHelp(t *testing.T) {
	tests := []struct {
		args    []string
		phrases []string
	}{
		{[]string{"serve", "--help"}, []string{"--in-fd", "--out-fd", "--max-line-size", "exec_file", "EXIT", "--script", "--wasm"}},
		{[]string{"run", "--help"}, []string{"--code", "--expr", "--kv", "--allow-host", "--mount"}},
		{[]string{"repl", "--help"}, []string{"--history", "Command history", ":wire"}},
		{[]string{"cache", "--help"}, []string{"dir", "clear"}},
	}

	for _, tc := range tests {
		t.Run(tc.args[0], func(t *testing.T) {
			output, err := executeCommand(newRootCmd(), tc.args...)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			for _, phrase := range tc.phrases {
				if !strings.Contains(output, phrase) {
					t.Errorf("%s help output should contain %q", tc.args[0], phrase)
				}
			}
		})
	}
}

func TestCLIMountParsing(t *testing.T) {
	tests := []struct {
		spec    string
		wantErr bool
	}{
		{"/data:./input:ro", false},
		{"/data:./input:rw", false},
		{"/data:./input:rwc", false},
		{"/data:./input", true},     // missing mode
		{"/data:./input:bad", true}, // invalid mode
		{"invalid", true},           // no colons
	}

	for _, tc := range tests {
		_, err := parseMount(tc.spec)
		if tc.wantErr && err == nil {
			t.Errorf("parseMount(%q) should error", tc.spec)
		}
		if !tc.wantErr && err != nil {
			t.Errorf("parseMount(%q) unexpected error: %v", tc.spec, err)
		}
	}
}

func TestCLIWasmParsing(t *testing.T) {
	tests := []struct {
		spec string
		want config.Wasm
	}{
		{"kernels.wasm", config.Wasm{Path: "kernels.wasm"}},
		{"kernels.wasm:k_", config.Wasm{Path: "kernels.wasm", Prefix: "k_"}},
		{"/opt/mods/a.wasm:a_", config.Wasm{Path: "/opt/mods/a.wasm", Prefix: "a_"}},
		{`C:\mods\a.wasm`, config.Wasm{Path: `C:\mods\a.wasm`}},
	}
	for _, tc := range tests {
		if got := parseWasm(tc.spec); got != tc.want {
			t.Errorf("parseWasm(%q) = %+v, want %+v", tc.spec, got, tc.want)
		}
	}
}

func TestCLIMemoryLimit(t *testing.T) {
	if got := parseMemoryLimit("64MB"); got != memoryLimit64MB {
		t.Errorf("parseMemoryLimit(64MB) = %d", got)
	}
	if got := parseMemoryLimit("lots"); got != 0 {
		t.Errorf("parseMemoryLimit(lots) = %d, want 0", got)
	}
}

func TestCLIRun(t *testing.T) {
	output, err := executeCommand(newRootCmd(), "run", "-c", "x = [1, 2.5, 'a']", "-e", "x")
	if err != nil {
		t.Fatalf("unexpected error: %v (%s)", err, output)
	}
	want := `{"class":"list","value":[{"class":"int","value":1},{"class":"float","value":2.5},{"class":"string","value":"a"}]}`
	if strings.TrimSpace(output) != want {
		t.Errorf("output = %q, want %q", output, want)
	}
}

func TestCLIRunFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prog.star")
	if err := os.WriteFile(path, []byte("def f(n):\n    return {'n': n}\nr = f(3)\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	output, err := executeCommand(newRootCmd(), "run", path, "--expr", "r")
	if err != nil {
		t.Fatalf("unexpected error: %v (%s)", err, output)
	}
	if want := `{"class":"object","value":{"n":{"class":"int","value":3}}}`; strings.TrimSpace(output) != want {
		t.Errorf("output = %q, want %q", output, want)
	}
}

func TestCLIRunStdin(t *testing.T) {
	root := newRootCmd()
	root.SetIn(strings.NewReader("y = 3\n"))
	output, err := executeCommand(root, "run", "-e", "y * 2")
	if err != nil {
		t.Fatalf("unexpected error: %v (%s)", err, output)
	}
	if want := `{"class":"int","value":6}`; strings.TrimSpace(output) != want {
		t.Errorf("output = %q, want %q", output, want)
	}
}

func TestCLIRunWithConfig(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "init.star")
	if err := os.WriteFile(script, []byte("base = 20\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfgPath := filepath.Join(dir, "goru.toml")
	content := "kv = true\nscripts = [" + tomlLiteral(script) + "]\n"
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	output, err := executeCommand(newRootCmd(), "run", "--config", cfgPath,
		"-c", "kv_set('n', base + 1)", "-e", "kv_get('n')")
	if err != nil {
		t.Fatalf("unexpected error: %v (%s)", err, output)
	}
	if want := `{"class":"int","value":21}`; strings.TrimSpace(output) != want {
		t.Errorf("output = %q, want %q", output, want)
	}
}

func TestCLIRunErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"runtime error", []string{"run", "-c", "x = undefined_name"}},
		{"bad mount", []string{"run", "-c", "x = 1", "--mount", "/data"}},
		{"bad log level", []string{"run", "-c", "x = 1", "--log-level", "loud"}},
		{"missing config", []string{"run", "-c", "x = 1", "--config", "/nonexistent/goru.toml"}},
		{"missing wasm", []string{"run", "-c", "x = 1", "--no-cache", "--wasm", "/nonexistent/mod.wasm"}},
		{"missing file", []string{"run", "/nonexistent/prog.star"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := executeCommand(newRootCmd(), tc.args...); err == nil {
				t.Errorf("expected error for %v", tc.args)
			}
		})
	}
}

func TestCLICache(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "entry"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	output, err := executeCommand(newRootCmd(), "cache", "dir", "--dir", dir)
	if err != nil || strings.TrimSpace(output) != dir {
		t.Errorf("cache dir = %q, %v", output, err)
	}

	output, err = executeCommand(newRootCmd(), "cache", "clear", "--dir", dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(output, "Cache cleared") {
		t.Errorf("unexpected output %q", output)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("cache dir should be removed, stat err = %v", err)
	}
}

func tomlLiteral(s string) string {
	return `'` + s + `'`
}
