package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/consoden/dobcore/internal/config"
)

func clearDobEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"SAFIR_RUNTIME", "SAFIR_INSTANCE", "LLL_LOGLEVEL",
		"DOB_ADMISSION_CAP", "DOB_CRC_ENABLED",
		"DOB_ANNOUNCE_PERIOD", "DOB_PUBLISH_PERIOD", "DOB_POLL_PERIOD",
		"DOB_NODE_NAME", "DOB_BIND_ADDR",
	}
	for _, k := range keys {
		old, existed := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if existed {
				os.Setenv(k, old)
			}
		})
	}
}

func TestLoad_DefaultsWhenUnset(t *testing.T) {
	clearDobEnv(t)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.AdmissionCap != 64 {
		t.Fatalf("expected default admission cap 64, got %d", cfg.AdmissionCap)
	}
	if !cfg.CRCEnabled {
		t.Fatal("expected CRC enabled by default")
	}
	if cfg.AnnouncePeriod != time.Second {
		t.Fatalf("expected default announce period of 1s, got %s", cfg.AnnouncePeriod)
	}
}

func TestLoad_RejectsNonPositiveAdmissionCap(t *testing.T) {
	clearDobEnv(t)
	os.Setenv("DOB_ADMISSION_CAP", "0")

	if _, err := config.Load(); err == nil {
		t.Fatal("expected an error for a non-positive admission cap")
	}
}

func TestLoad_RejectsOutOfRangeLogLevel(t *testing.T) {
	clearDobEnv(t)
	os.Setenv("LLL_LOGLEVEL", "10")

	if _, err := config.Load(); err == nil {
		t.Fatal("expected an error for an out-of-range log level")
	}
}

func TestLoad_RejectsNonPositivePeriod(t *testing.T) {
	clearDobEnv(t)
	os.Setenv("DOB_PUBLISH_PERIOD", "0s")

	if _, err := config.Load(); err == nil {
		t.Fatal("expected an error for a non-positive period")
	}
}

func TestLoad_ReadsOverriddenValues(t *testing.T) {
	clearDobEnv(t)
	os.Setenv("DOB_ADMISSION_CAP", "8")
	os.Setenv("DOB_NODE_NAME", "node-a")
	os.Setenv("DOB_CRC_ENABLED", "false")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.AdmissionCap != 8 {
		t.Fatalf("expected admission cap 8, got %d", cfg.AdmissionCap)
	}
	if cfg.NodeName != "node-a" {
		t.Fatalf("expected node name %q, got %q", "node-a", cfg.NodeName)
	}
	if cfg.CRCEnabled {
		t.Fatal("expected CRC disabled")
	}
}
