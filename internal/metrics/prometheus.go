package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
)

const metricFamily = "signaling_server_events_total"

// PrometheusHandler exposes Metrics in Prometheus' text exposition format.
//
// All internal counters surface as a single counter family with an `event`
// label. This keeps the in-process registry simple while still allowing
// scraping by Prometheus.
func PrometheusHandler(m *Metrics) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m == nil {
			http.Error(w, "metrics not configured", http.StatusInternalServerError)
			return
		}

		snap := m.Snapshot()
		keys := make([]string, 0, len(snap))
		for k := range snap {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = fmt.Fprintf(w, "# HELP %s Internal event counters.\n", metricFamily)
		_, _ = fmt.Fprintf(w, "# TYPE %s counter\n", metricFamily)
		for _, k := range keys {
			escaped := strings.NewReplacer("\\", "\\\\", "\"", "\\\"").Replace(k)
			_, _ = fmt.Fprintf(w, "%s{event=%q} %d\n", metricFamily, escaped, snap[k])
		}
	})
}
