package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nao1215/saxsflow/internal/config"
	"github.com/nao1215/saxsflow/internal/kernel"
)

// TestNewInitCmd tests the init command creation.
func TestNewInitCmd(t *testing.T) {
	t.Parallel()

	cmd := NewInitCmd()

	if cmd.Use != "init" {
		t.Errorf("expected use 'init', got %q", cmd.Use)
	}

	flags := map[string]struct {
		shorthand string
		def       string
	}{
		"output":   {"o", configFileName},
		"force":    {"f", "false"},
		"pipeline": {"p", "false"},
	}
	for name, want := range flags {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			t.Errorf("expected %s flag", name)
			continue
		}
		if flag.Shorthand != want.shorthand {
			t.Errorf("flag %s: expected shorthand %q, got %q", name, want.shorthand, flag.Shorthand)
		}
		if flag.DefValue != want.def {
			t.Errorf("flag %s: expected default %q, got %q", name, want.def, flag.DefValue)
		}
	}
}

// TestRunInitCmd tests the init command execution.
func TestRunInitCmd(t *testing.T) {
	t.Parallel()

	t.Run("creates a loadable config file", func(t *testing.T) {
		t.Parallel()

		outputPath := filepath.Join(t.TempDir(), "nested", ".saxsflow")

		var buf bytes.Buffer
		cmd := NewInitCmd()
		cmd.SetOut(&buf)
		cmd.SetArgs([]string{"-o", outputPath})

		if err := cmd.Execute(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "Created configuration file") {
			t.Errorf("unexpected output %q", buf.String())
		}

		cf, err := config.LoadConfigFile(outputPath)
		if err != nil {
			t.Fatalf("template does not load: %v", err)
		}
		if cf.Defaults.CutPoint != 200 || cf.Defaults.BackgroundModel != "hyperbola" {
			t.Errorf("unexpected defaults %+v", cf.Defaults)
		}
	})

	t.Run("creates a compilable pipeline document", func(t *testing.T) {
		t.Parallel()

		outputPath := filepath.Join(t.TempDir(), "pipeline.yaml")

		cmd := NewInitCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetArgs([]string{"--pipeline", "-o", outputPath})

		if err := cmd.Execute(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		doc, err := kernel.LoadDocument(outputPath)
		if err != nil {
			t.Fatalf("document does not load: %v", err)
		}
		p, err := kernel.NewCompiler().Build(doc)
		if err != nil {
			t.Fatalf("document does not compile: %v", err)
		}
		if p.StageCount() != 4 {
			t.Errorf("StageCount() = %d, want 4", p.StageCount())
		}
	})

	t.Run("fails if file exists without force", func(t *testing.T) {
		t.Parallel()

		outputPath := filepath.Join(t.TempDir(), ".saxsflow")
		if err := os.WriteFile(outputPath, []byte("existing"), 0600); err != nil {
			t.Fatalf("failed to create test file: %v", err)
		}

		cmd := NewInitCmd()
		cmd.SetArgs([]string{"-o", outputPath})

		err := cmd.Execute()
		if err == nil {
			t.Fatal("expected error when file exists")
		}
		if !strings.Contains(err.Error(), "already exists") {
			t.Errorf("expected 'already exists' error, got %v", err)
		}
	})

	t.Run("overwrites file with force flag", func(t *testing.T) {
		t.Parallel()

		outputPath := filepath.Join(t.TempDir(), ".saxsflow")
		if err := os.WriteFile(outputPath, []byte("existing"), 0600); err != nil {
			t.Fatalf("failed to create test file: %v", err)
		}

		cmd := NewInitCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetArgs([]string{"-o", outputPath, "-f"})

		if err := cmd.Execute(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		content, err := os.ReadFile(outputPath)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(content), "defaults:") {
			t.Error("expected file to be overwritten with the template")
		}
	})
}
