// internal/config/model_test.go
//
// Unit-tests for defaults, DSN splicing, and the dsntemplate rule.
//
// Run: go test ./internal/config -v

package config

import (
	"testing"
	"time"
)

func TestApplyDefaults(t *testing.T) {
	var c Config
	c.applyDefaults()

	if c.Queue.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", c.Queue.Attempts)
	}
	if c.Queue.BackoffBase != 30*time.Second {
		t.Errorf("backoff_base = %v, want 30s", c.Queue.BackoffBase)
	}
	if c.Queue.Retention != 72*time.Hour {
		t.Errorf("retention = %v, want 72h", c.Queue.Retention)
	}
	if c.Reaper.MaxProcessingAge != 2*time.Hour {
		t.Errorf("max_processing_age = %v, want 2h", c.Reaper.MaxProcessingAge)
	}
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	c := Config{Queue: Queue{Attempts: 5, Workers: 8}}
	c.applyDefaults()

	if c.Queue.Attempts != 5 || c.Queue.Workers != 8 {
		t.Fatalf("explicit values were clobbered: %+v", c.Queue)
	}
}

func TestBuildDSN(t *testing.T) {
	d := Database{DSN: "app:%s@tcp(db:3306)/refinery?parseTime=true"}
	got := d.BuildDSN("s3cret")
	want := "app:s3cret@tcp(db:3306)/refinery?parseTime=true"
	if got != want {
		t.Fatalf("BuildDSN = %q, want %q", got, want)
	}
}

func TestDSNTemplateRule(t *testing.T) {
	base := Config{
		HTTP:     HTTP{ListenAddr: ":8080"},
		Database: Database{Password: "x"},
		Paths:    Paths{KnowledgeDir: "/srv/knowledge"},
	}
	base.applyDefaults()

	good := base
	good.Database.DSN = "app:%s@tcp(db:3306)/refinery"
	if err := validateStruct(&good); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	bad := base
	bad.Database.DSN = "app:password@tcp(db:3306)/refinery" // no %s verb
	if err := validateStruct(&bad); err == nil {
		t.Fatal("DSN without password verb must fail validation")
	}
}
