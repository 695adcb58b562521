package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/consoden/dobcore/pkg/dob/metrics"
)

func TestCollectors_MustRegisterSucceeds(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.New("dobtest")
	c.MustRegister(reg)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("unexpected error gathering metrics: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("expected at least one registered metric family")
	}
}

func TestCollectors_DoubleRegisterPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.New("dobtest")
	c.MustRegister(reg)

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected registering the same collectors twice to panic")
		}
	}()
	c.MustRegister(reg)
}
