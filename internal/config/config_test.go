package config

import (
	"os"
	"testing"
)

func TestPort_Default(t *testing.T) {
	os.Unsetenv(EnvPort)

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != DefaultPort {
		t.Errorf("default Port = %d, want %d", cfg.Port(), DefaultPort)
	}
}

func TestPort_FromEnv(t *testing.T) {
	os.Setenv(EnvPort, "9999")
	defer os.Unsetenv(EnvPort)

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != 9999 {
		t.Errorf("Port = %d, want 9999", cfg.Port())
	}
}

func TestPort_Invalid(t *testing.T) {
	os.Setenv(EnvPort, "not-a-port")
	defer os.Unsetenv(EnvPort)

	if _, err := New(); err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestPort_OutOfRange(t *testing.T) {
	os.Setenv(EnvPort, "70000")
	defer os.Unsetenv(EnvPort)

	if _, err := New(); err == nil {
		t.Fatal("expected error for out-of-range port")
	}
}

func TestRestrictions_DisabledByDefault(t *testing.T) {
	os.Unsetenv(EnvRestrictionsEnabled)

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RestrictionsEnabled() {
		t.Error("restrictions should be disabled by default")
	}
}

func TestRestrictions_FromEnv(t *testing.T) {
	os.Setenv(EnvRestrictionsEnabled, "true")
	os.Setenv(EnvMaxSourceDuration, "120.5")
	defer os.Unsetenv(EnvRestrictionsEnabled)
	defer os.Unsetenv(EnvMaxSourceDuration)

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.RestrictionsEnabled() {
		t.Error("restrictions should be enabled")
	}
	if cfg.MaxSourceDuration() != 120.5 {
		t.Errorf("MaxSourceDuration = %v, want 120.5", cfg.MaxSourceDuration())
	}
}

func TestMaxSourceDuration_Invalid(t *testing.T) {
	os.Setenv(EnvMaxSourceDuration, "-5")
	defer os.Unsetenv(EnvMaxSourceDuration)

	if _, err := New(); err == nil {
		t.Fatal("expected error for negative max duration")
	}
}

func TestOutputDir_DefaultUnderDataDir(t *testing.T) {
	os.Setenv(EnvDataDir, "/tmp/clipforge-test")
	os.Unsetenv(EnvOutputDir)
	defer os.Unsetenv(EnvDataDir)

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.OutputDir() != "/tmp/clipforge-test/output" {
		t.Errorf("OutputDir = %q, want %q", cfg.OutputDir(), "/tmp/clipforge-test/output")
	}
	if cfg.DBPath() != "/tmp/clipforge-test/"+DBFilename {
		t.Errorf("DBPath = %q, want under data dir", cfg.DBPath())
	}
}

func TestQualityTiers(t *testing.T) {
	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.NearLosslessCRF() >= cfg.EncodeCRF() {
		t.Errorf("near-lossless CRF %d should be lower (better) than normal CRF %d",
			cfg.NearLosslessCRF(), cfg.EncodeCRF())
	}
}
