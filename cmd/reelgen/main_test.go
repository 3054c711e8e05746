package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tbourn/go-reel-backend/internal/domain"
	"github.com/tbourn/go-reel-backend/internal/poller"
)

func TestLoadEnvFiles_EnvironmentWins(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, ".env")
	if err := os.WriteFile(f, []byte("REELGEN_TEST_A=from-file\nREELGEN_TEST_B=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("REELGEN_TEST_A", "from-env")
	t.Setenv("REELGEN_TEST_B", "")
	_ = os.Unsetenv("REELGEN_TEST_B")

	loadEnvFiles([]string{"", filepath.Join(dir, "missing.env"), f})

	if got := os.Getenv("REELGEN_TEST_A"); got != "from-env" {
		t.Fatalf("A = %q; environment must win", got)
	}
	if got := os.Getenv("REELGEN_TEST_B"); got != "from-file" {
		t.Fatalf("B = %q; want value from file", got)
	}
}

func TestPrintUpdate(t *testing.T) {
	p := domain.GenerationProcess{Progress: 50, Status: "Creating avatar", Stage: domain.StageSynthesizing}
	var buf bytes.Buffer
	printUpdate(&buf, poller.Update{
		Snapshot: poller.Snapshot{Process: p, Outcome: p.Outcome()},
		Steps:    poller.Steps(p, domain.StageSynthesizing),
	})
	out := buf.String()
	for _, want := range []string{" 50%", "[x] Uploading media", "[x] Writing script", "[>] Creating avatar", "[ ] Finishing up"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q missing %q", out, want)
		}
	}
}

func TestRootCommand_Subcommands(t *testing.T) {
	want := map[string]bool{"serve": false, "worker": false, "migrate": false, "watch": false, "credits": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Fatalf("subcommand %q not registered", name)
		}
	}
}
