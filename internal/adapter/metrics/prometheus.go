package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rl1809/stockroom/internal/port"
)

var _ port.Metrics = (*Recorder)(nil)

const namespace = "stockroom"

// Recorder exports engine outcomes and facility load on its own registry.
type Recorder struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	load       *prometheus.GaugeVec
	capacity   *prometheus.GaugeVec
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Engine operations by name and outcome.",
		}, []string{"operation", "outcome"}),
		load: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "facility_load_units",
			Help:      "Units currently held by a facility.",
		}, []string{"facility_id"}),
		capacity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "facility_capacity_units",
			Help:      "Declared maximum capacity of a facility.",
		}, []string{"facility_id"}),
	}
	r.registry.MustRegister(
		r.operations,
		r.load,
		r.capacity,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Recorder) ObserveOperation(operation, outcome string) {
	r.operations.WithLabelValues(operation, outcome).Inc()
}

func (r *Recorder) ObserveLoad(facilityID int64, load, maxCapacity int) {
	id := strconv.FormatInt(facilityID, 10)
	r.load.WithLabelValues(id).Set(float64(load))
	r.capacity.WithLabelValues(id).Set(float64(maxCapacity))
}

// ForgetFacility drops the gauges of a deleted facility.
func (r *Recorder) ForgetFacility(facilityID int64) {
	id := strconv.FormatInt(facilityID, 10)
	r.load.DeleteLabelValues(id)
	r.capacity.DeleteLabelValues(id)
}

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
