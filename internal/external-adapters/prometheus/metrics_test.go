package prometheus

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ochairo/instrumentation-verifier/internal/domain/entities"
	"github.com/ochairo/instrumentation-verifier/internal/domain/interfaces/services"
)

var _ services.MetricsRecorder = (*Recorder)(nil)

func TestRecorder_Units(t *testing.T) {
	r := NewRecorder()

	r.UnitStarted()
	r.UnitStarted()
	r.UnitFinished(entities.StatusPassed, 2*time.Second)

	if got := testutil.ToFloat64(r.unitsInFlight); got != 1 {
		t.Errorf("in flight = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.unitsTotal.WithLabelValues("passed")); got != 1 {
		t.Errorf("passed = %v, want 1", got)
	}

	r.UnitFinished(entities.StatusErrored, time.Second)
	if got := testutil.ToFloat64(r.unitsInFlight); got != 0 {
		t.Errorf("in flight = %v, want 0", got)
	}
	if got := testutil.CollectAndCount(r.unitDuration); got != 2 {
		t.Errorf("duration series = %d, want 2", got)
	}
}

func TestRecorder_Repository(t *testing.T) {
	r := NewRecorder()

	r.RepositoryRequest("central", "ok")
	r.RepositoryRequest("central", "ok")
	r.RepositoryRequest("mirror", "not_found")
	r.RepositoryRetry("central")
	r.MetadataCache(true)
	r.MetadataCache(false)
	r.MetadataCache(true)

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"central ok", testutil.ToFloat64(r.repositoryRequests.WithLabelValues("central", "ok")), 2},
		{"mirror not found", testutil.ToFloat64(r.repositoryRequests.WithLabelValues("mirror", "not_found")), 1},
		{"central retries", testutil.ToFloat64(r.repositoryRetries.WithLabelValues("central")), 1},
		{"cache hits", testutil.ToFloat64(r.metadataCache.WithLabelValues("hit")), 2},
		{"cache misses", testutil.ToFloat64(r.metadataCache.WithLabelValues("miss")), 1},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestRecorder_WriteTextfile(t *testing.T) {
	r := NewRecorder()
	r.RepositoryRetry("central")

	path := filepath.Join(t.TempDir(), "verifier.prom")
	if err := r.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `verifier_repository_retries_total{repository="central"} 1`) {
		t.Errorf("textfile = %s", data)
	}
}
