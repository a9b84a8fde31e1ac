package prometheus

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/robotalks/dfplayer.go/pkg/dfplayer/comm"
)

// Namespace of all metrics.
const Namespace = "dfplayer"

// Metrics implements comm.Observer with Prometheus collectors.
type Metrics struct {
	framesSent      *prometheus.CounterVec
	retransmits     *prometheus.CounterVec
	framesReceived  *prometheus.CounterVec
	framesDropped   *prometheus.CounterVec
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New creates Metrics and registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		framesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Name: "frames_sent_total", Help: "Frames written to the device"}, []string{"command"}),
		retransmits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Name: "retransmits_total", Help: "Frames written again after timeout or device error"}, []string{"command"}),
		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Name: "frames_received_total", Help: "Valid frames received from the device"}, []string{"command"}),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Name: "frames_dropped_total", Help: "Inbound bytes discarded while resynchronizing"}, []string{"reason"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Name: "requests_total", Help: "Completed requests"}, []string{"command", "result"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace, Name: "request_duration_seconds", Help: "Time from first transmission to completion",
			Buckets: []float64{.01, .025, .05, .1, .2, .4, .8, 1.6}}, []string{"command"}),
	}
	reg.MustRegister(
		m.framesSent,
		m.retransmits,
		m.framesReceived,
		m.framesDropped,
		m.requests,
		m.requestDuration,
	)
	return m
}

func commandLabel(cmd byte) string {
	return fmt.Sprintf("0x%02x", cmd)
}

// FrameSent implements comm.Observer.
func (m *Metrics) FrameSent(cmd byte, retransmit bool) {
	label := commandLabel(cmd)
	m.framesSent.WithLabelValues(label).Inc()
	if retransmit {
		m.retransmits.WithLabelValues(label).Inc()
	}
}

// FrameReceived implements comm.Observer.
func (m *Metrics) FrameReceived(cmd byte) {
	m.framesReceived.WithLabelValues(commandLabel(cmd)).Inc()
}

// FrameDropped implements comm.Observer.
func (m *Metrics) FrameDropped(err error) {
	m.framesDropped.WithLabelValues(dropReason(err)).Inc()
}

// RequestDone implements comm.Observer.
func (m *Metrics) RequestDone(cmd byte, err error, elapsed time.Duration) {
	label := commandLabel(cmd)
	m.requests.WithLabelValues(label, resultLabel(err)).Inc()
	m.requestDuration.WithLabelValues(label).Observe(elapsed.Seconds())
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, comm.ErrChecksumMismatch):
		return "checksum"
	case errors.Is(err, comm.ErrInvalidFrame):
		return "invalid"
	}
	return "other"
}

func resultLabel(err error) string {
	var devErr *comm.DeviceError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, comm.ErrTimeout):
		return "timeout"
	case errors.As(err, &devErr):
		return "device_error"
	case errors.Is(err, comm.ErrClosed):
		return "closed"
	}
	return "error"
}

// NewRegistry creates a registry with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves metrics in reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		Registry:          reg,
	})
}
