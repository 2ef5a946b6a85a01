package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func executeCommand(root *cobra.Command, args ...string) (output string, err error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)

	err = root.Execute()
	return buf.String(), err
}

func TestVersionFlag(t *testing.T) {
	output, err := executeCommand(NewRootCmd(), "--version")
	if err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if !strings.Contains(output, "ctf-server version 0.1.0") {
		t.Errorf("Expected version information, got: %s", output)
	}
}

func TestHelpFlag(t *testing.T) {
	output, err := executeCommand(NewRootCmd(), "--help")
	if err != nil {
		t.Errorf("Unexpected error: %v", err)
	}

	requiredContent := []string{
		"ctf-server",
		"--config",
		"--port",
		"--web-root",
		"--db",
		"--debug",
		"--access-log",
		"migrate",
		"seed",
	}
	for _, content := range requiredContent {
		if !strings.Contains(output, content) {
			t.Errorf("Help output missing: %s", content)
		}
	}
}

func TestInvalidPort(t *testing.T) {
	_, err := executeCommand(NewRootCmd(), "--port", "70000")
	if err == nil || !strings.Contains(err.Error(), "invalid port") {
		t.Errorf("Expected an invalid port error, got %v", err)
	}
}

func TestMigrateAndSeed(t *testing.T) {
	dir := t.TempDir()
	dsn := filepath.Join(dir, "ctf.db")

	output, err := executeCommand(NewRootCmd(), "--no-color", "--db", dsn, "migrate")
	if err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	if !strings.Contains(output, "database schema is up to date") {
		t.Errorf("Unexpected migrate output: %s", output)
	}

	seedFile := filepath.Join(dir, "challenges.yaml")
	seed := `challenges:
  - id: 1
    category: web
    title: Warmup
    description: Find the flag in the page source
    points: 100
    difficulty: 1
  - id: 2
    category: crypto
    title: Caesar
    points: 250
    difficulty: 2
`
	if err := os.WriteFile(seedFile, []byte(seed), 0644); err != nil {
		t.Fatalf("Failed to write seed file: %v", err)
	}

	output, err = executeCommand(NewRootCmd(), "--no-color", "--db", dsn, "seed", seedFile)
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if !strings.Contains(output, "seeded 2 challenges") {
		t.Errorf("Unexpected seed output: %s", output)
	}
}

func TestSeedRequiresFile(t *testing.T) {
	_, err := executeCommand(NewRootCmd(), "seed")
	if err == nil {
		t.Error("Expected an error without a seed file")
	}
}

func TestSeedMissingFile(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "ctf.db")
	_, err := executeCommand(NewRootCmd(), "--db", dsn, "seed", filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Error("Expected an error for a missing seed file")
	}
}
