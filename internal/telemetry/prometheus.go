package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chaos"

var counterHelp = map[string]string{
	MetricTriggerScheduled:       "Trigger attempts that were broadcast",
	MetricTriggerGated:           "Trigger attempts rejected locally",
	MetricTriggerBroadcastFailed: "Trigger broadcasts that failed to send",
	MetricEffectApplied:          "Effects applied after a countdown",
	MetricEffectAborted:          "Effects aborted at apply time",
	MetricRemoteCallFailed:       "Directed calls that could not be sent",
	MetricHazardRegistered:       "Hazards registered by the coordinator",
	MetricHazardTransferred:      "Hazard ownership transfers",
	MetricHazardReturned:         "Hazards forced back into a holder's slot",
	MetricHazardExploded:         "Hazards resolved by explosion",
	MetricHazardOrphaned:         "Hazards dropped because they could not be located",
	MetricHazardFaults:           "Per-hazard tick faults recovered by the engine",
	MetricCommandOverflow:        "Hazard commands rejected because the buffer was full",
	MetricThreatSummoned:         "Threat chases started by the coordinator",
	MetricThreatRetargeted:       "Threat chases that switched victim",
	MetricCallsHandled:           "Directed calls handled by the local node",
	MetricFramesIgnored:          "Inbound frames the local node could not use",
	MetricFramesRelayed:          "Frames relayed by the room",
	MetricMembersEvicted:         "Members disconnected because their outbox was full",
	MetricFramesLimited:          "Inbound frames rejected by the rate limiter",
	MetricFramesRejected:         "Inbound frames that failed to decode or route",
}

var gaugeHelp = map[string]string{
	MetricHazardActive:     "Hazards currently registered",
	MetricCommandOccupancy: "Hazard commands waiting for the next step",
	MetricRoomMembers:      "Members connected to the room",
}

// Recorder is a Metrics implementation backed by Prometheus collectors.
type Recorder struct {
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	other    *prometheus.GaugeVec
}

// NewRecorder registers the known collectors with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		counters: make(map[string]prometheus.Counter, len(counterHelp)),
		gauges:   make(map[string]prometheus.Gauge, len(gaugeHelp)),
		other: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "other_value",
			Help:      "Values reported under keys without a dedicated collector",
		}, []string{"key"}),
	}
	collectors := []prometheus.Collector{r.other}
	for key, help := range counterHelp {
		c := prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: key, Help: help})
		r.counters[key] = c
		collectors = append(collectors, c)
	}
	for key, help := range gaugeHelp {
		g := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: key, Help: help})
		r.gauges[key] = g
		collectors = append(collectors, g)
	}
	if reg != nil {
		reg.MustRegister(collectors...)
	}
	return r
}

// Handler exposes the registry in the Prometheus text format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

func (r *Recorder) Add(key string, delta uint64) {
	if r == nil {
		return
	}
	if c, ok := r.counters[key]; ok {
		c.Add(float64(delta))
		return
	}
	if g, ok := r.gauges[key]; ok {
		g.Add(float64(delta))
		return
	}
	r.other.WithLabelValues(key).Add(float64(delta))
}

// Store sets gauges. Counters cannot be set, so they are reported under the
// fallback vector instead.
func (r *Recorder) Store(key string, value uint64) {
	if r == nil {
		return
	}
	if g, ok := r.gauges[key]; ok {
		g.Set(float64(value))
		return
	}
	r.other.WithLabelValues(key).Set(float64(value))
}
