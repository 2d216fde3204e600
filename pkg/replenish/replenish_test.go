// Copyright 2025 Certen Protocol

package replenish

import (
	"testing"
	"time"
)

func TestNew_AppliesSpecDefaultsWhenUnset(t *testing.T) {
	m := New(nil, nil, Config{}, nil)

	if m.cfg.CheckInterval != DefaultCheckInterval {
		t.Errorf("expected default check interval %s, got %s", DefaultCheckInterval, m.cfg.CheckInterval)
	}
	if m.cfg.MinPoolSize != DefaultMinPoolSize {
		t.Errorf("expected default min pool size %d, got %d", DefaultMinPoolSize, m.cfg.MinPoolSize)
	}
	if m.cfg.SplitTarget != DefaultSplitTarget {
		t.Errorf("expected default split target %d, got %d", DefaultSplitTarget, m.cfg.SplitTarget)
	}
	if m.cfg.Cooldown != DefaultCooldown {
		t.Errorf("expected default cooldown %s, got %s", DefaultCooldown, m.cfg.Cooldown)
	}
}

func TestNew_PreservesExplicitConfig(t *testing.T) {
	cfg := Config{
		CheckInterval: time.Minute,
		MinPoolSize:   10,
		SplitTarget:   20,
		Cooldown:      time.Hour,
	}
	m := New(nil, nil, cfg, nil)

	if m.cfg.CheckInterval != time.Minute || m.cfg.MinPoolSize != 10 || m.cfg.SplitTarget != 20 || m.cfg.Cooldown != time.Hour {
		t.Fatalf("expected explicit config to be preserved, got %+v", m.cfg)
	}
}
