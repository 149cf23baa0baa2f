package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestResult(t *testing.T) {
	if got := Result(nil); got != "success" {
		t.Errorf("Result(nil) = %q", got)
	}
	if got := Result(errors.New("boom")); got != "error" {
		t.Errorf("Result(err) = %q", got)
	}
}

func TestDefaultRegistryExposesStoreMetrics(t *testing.T) {
	SchemaVersion.Set(3)
	ArchiveMembersTotal.WithLabelValues("ignored").Inc()

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	found := map[string]bool{}
	for _, mf := range families {
		found[mf.GetName()] = true
		if mf.GetName() == "inventory_schema_version" {
			if got := mf.GetMetric()[0].GetGauge().GetValue(); got != 3 {
				t.Errorf("inventory_schema_version = %v, want 3", got)
			}
		}
	}
	for _, name := range []string{"inventory_schema_version", "inventory_archive_members_total"} {
		if !found[name] {
			t.Errorf("%s not registered", name)
		}
	}
}
