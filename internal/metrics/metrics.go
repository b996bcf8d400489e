// Package metrics exposes the groomer's processing events to Prometheus.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mikey/mail-groomer/internal/core"
)

// Metrics holds the Prometheus collectors of the groomer and implements
// core.MetricsRecorder
type Metrics struct {
	registry *prometheus.Registry

	MessagesProcessed   prometheus.Counter
	MessagesFailed      *prometheus.CounterVec
	MessageDuration     prometheus.Histogram
	AttachmentsTotal    *prometheus.CounterVec
	AttachmentsRemoved  prometheus.Counter
	AttachmentsByReason *prometheus.CounterVec
	ArchiveBombs        prometheus.Counter
	CacheLookups        *prometheus.CounterVec
}

// New creates the collectors on a fresh registry, together with the Go
// runtime and process collectors
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg)
}

// NewWithRegistry registers the collectors on reg
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		MessagesProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "mail_groomer_messages_processed_total",
			Help: "Total number of messages sanitized",
		}),
		MessagesFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mail_groomer_messages_failed_total",
			Help: "Total number of messages that could not be sanitized",
		}, []string{"reason"}),
		MessageDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mail_groomer_message_duration_seconds",
			Help:    "Time taken to sanitize a message",
			Buckets: prometheus.DefBuckets,
		}),
		AttachmentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mail_groomer_attachments_total",
			Help: "Attachments inspected, by main type and verdict",
		}, []string{"maintype", "verdict"}),
		AttachmentsRemoved: factory.NewCounter(prometheus.CounterOpts{
			Name: "mail_groomer_attachments_removed_total",
			Help: "Attachments withheld from the sanitized message",
		}),
		AttachmentsByReason: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mail_groomer_dangerous_findings_total",
			Help: "Diagnostics recorded on dangerous attachments",
		}, []string{"finding"}),
		ArchiveBombs: factory.NewCounter(prometheus.CounterOpts{
			Name: "mail_groomer_archive_bombs_total",
			Help: "Nested containers refused for exceeding the depth bound",
		}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mail_groomer_cache_lookups_total",
			Help: "Verdict cache lookups, by result",
		}, []string{"result"}),
	}
}

// findings counted per dangerous attachment
var trackedFindings = []string{
	"no_extension",
	"no_mimetype",
	"malicious_extension",
	"expected_mimetype",
	"expected_extensions",
	"macro",
	"not_parsable",
	"parsing_issues",
	"insecure_path",
	"archive_bomb",
	"nested_dangerous",
	"nested_not_parsable",
	"unknown_encoding",
	"undecodable",
}

// MessageProcessed records a sanitized message
func (m *Metrics) MessageProcessed(result *core.Result) {
	m.MessagesProcessed.Inc()
	m.MessageDuration.Observe(result.Duration.Seconds())
}

// MessageFailed records a message that could not be sanitized
func (m *Metrics) MessageFailed(reason string) {
	m.MessagesFailed.WithLabelValues(reason).Inc()
}

// AttachmentProcessed records the verdict of one attachment
func (m *Metrics) AttachmentProcessed(att *core.Attachment) {
	verdict := "clean"
	if att.Dangerous() {
		verdict = "dangerous"
		m.AttachmentsRemoved.Inc()
		for _, finding := range trackedFindings {
			if _, ok := att.Diagnostics[finding]; ok {
				m.AttachmentsByReason.WithLabelValues(finding).Inc()
			}
		}
	}

	mainType := att.MainType
	if mainType == "" {
		mainType = "unknown"
	}
	m.AttachmentsTotal.WithLabelValues(mainType, verdict).Inc()
}

// ArchiveBomb records a refused nested container
func (m *Metrics) ArchiveBomb() {
	m.ArchiveBombs.Inc()
}

// CacheLookup records a verdict cache lookup
func (m *Metrics) CacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Server exposes /metrics over HTTP
type Server struct {
	server *http.Server
	logger *zap.Logger
}

// NewServer creates a metrics server for addr
func NewServer(addr string, m *Metrics, logger *zap.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Run serves until ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	l, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.server.Addr, err)
	}
	return s.Serve(ctx, l)
}

// Serve serves on l until ctx is cancelled
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Metrics server starting", zap.String("address", l.Addr().String()))
		errCh <- s.server.Serve(l)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down metrics server: %w", err)
		}
		return nil
	}
}
