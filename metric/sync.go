// Package metric provides Prometheus collectors for the sync engine.
package metric

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Sync holds the sync engine's collectors. Create with NewSync; a nil
// registerer yields working but unregistered metrics, which keeps tests free
// of global registry collisions.
type Sync struct {
	Pushes           prometheus.Counter
	PushErrors       prometheus.Counter
	Tombstones       prometheus.Counter
	RemoteApplied    prometheus.Counter
	RemoteRemoved    prometheus.Counter
	EchoesSuppressed prometheus.Counter
	Entries          prometheus.Gauge
}

// NewSync creates and registers the sync collectors.
func NewSync(reg prometheus.Registerer) *Sync {
	factory := promauto.With(reg)
	return &Sync{
		Pushes: factory.NewCounter(prometheus.CounterOpts{
			Name: "wafermap_sync_pushes_total",
			Help: "Outbound whole-entry writes accepted by the remote store.",
		}),
		PushErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "wafermap_sync_push_errors_total",
			Help: "Outbound writes rejected or timed out; local state is retained.",
		}),
		Tombstones: factory.NewCounter(prometheus.CounterOpts{
			Name: "wafermap_sync_tombstones_total",
			Help: "Outbound entry deletions.",
		}),
		RemoteApplied: factory.NewCounter(prometheus.CounterOpts{
			Name: "wafermap_sync_remote_applied_total",
			Help: "Incoming remote changes applied to the local entry store.",
		}),
		RemoteRemoved: factory.NewCounter(prometheus.CounterOpts{
			Name: "wafermap_sync_remote_removed_total",
			Help: "Incoming remote tombstones mirrored locally.",
		}),
		EchoesSuppressed: factory.NewCounter(prometheus.CounterOpts{
			Name: "wafermap_sync_echoes_suppressed_total",
			Help: "Self-originated change notifications dropped by origin filtering.",
		}),
		Entries: factory.NewGauge(prometheus.GaugeOpts{
			Name: "wafermap_entries",
			Help: "Live entries in the local store.",
		}),
	}
}
