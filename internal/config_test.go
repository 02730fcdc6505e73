package internal

import (
	"path/filepath"
	"strings"
	"testing"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()
	cfg := NewDefaultConfig()
	cfg.Source.Path = filepath.Join(dir, "logseq")
	cfg.Output.Path = filepath.Join(dir, "obsidian")
	return cfg
}

func TestDefaultConfig_Valid(t *testing.T) {
	if err := validConfig(t).Validate(); err != nil {
		t.Fatalf("default config should pass: %v", err)
	}
}

func TestConvertConfig_CategoryPairRequired(t *testing.T) {
	cfg := ConvertConfig{Workers: 1, CategoryTag: "wiki"}
	if err := cfg.Validate(); err == nil {
		t.Error("tag without folder should fail")
	}
	cfg = ConvertConfig{Workers: 1, CategoryFolder: "Wiki"}
	if err := cfg.Validate(); err == nil {
		t.Error("folder without tag should fail")
	}
	cfg = ConvertConfig{Workers: 1, CategoryTag: "wiki", CategoryFolder: "Wiki"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("both set should pass: %v", err)
	}
	if !cfg.Categorize() {
		t.Error("Categorize = false with both set")
	}
}

func TestConvertConfig_TagMustBeSingleToken(t *testing.T) {
	cfg := ConvertConfig{Workers: 1, CategoryTag: "two words", CategoryFolder: "Wiki"}
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "single tag") {
		t.Errorf("err = %v, want single tag error", err)
	}
	cfg.CategoryTag = "#wiki"
	if err := cfg.Validate(); err != nil {
		t.Errorf("leading # should be accepted: %v", err)
	}
}

func TestConvertConfig_WorkersBounds(t *testing.T) {
	for _, n := range []int{0, 65} {
		cfg := ConvertConfig{Workers: n}
		if err := cfg.Validate(); err == nil {
			t.Errorf("workers=%d should fail", n)
		}
	}
}

func TestConfig_OutputInsideSource(t *testing.T) {
	cfg := validConfig(t)
	cfg.Output.Path = filepath.Join(cfg.Source.Path, "out")
	if err := cfg.Validate(); err == nil {
		t.Error("output inside source should fail")
	}
	cfg.Output.Path = cfg.Source.Path
	if err := cfg.Validate(); err == nil {
		t.Error("output equal to source should fail")
	}
	cfg.Output.Path = cfg.Source.Path + "-out"
	if err := cfg.Validate(); err != nil {
		t.Errorf("sibling output should pass: %v", err)
	}
}

func TestConfig_AbsoluteAttachmentsDir(t *testing.T) {
	cfg := validConfig(t)
	cfg.Output.AttachmentsDir = "/abs"
	if err := cfg.Validate(); err == nil {
		t.Error("absolute attachments dir should fail")
	}
}

func TestHTTPConfig_PortZeroDisables(t *testing.T) {
	cfg := HTTPConfig{Port: 0}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("port 0 should pass: %v", err)
	}
	if cfg.Enabled() {
		t.Error("port 0 should disable the server")
	}
	cfg.Port = 70000
	if err := cfg.Validate(); err == nil {
		t.Error("port 70000 should fail")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled || cfg.AuthEnabled() {
		t.Errorf("mode = %q, enabled = %v", cfg.Mode, cfg.AuthEnabled())
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: AuthModeToken}
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("err = %v, want empty token error", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}
