package websocket

import (
	"log/slog"

	"github.com/lorrc/clinical-event-relay/internal/core/domain"
	"github.com/lorrc/clinical-event-relay/internal/core/ports"
)

// Relay groups the independent namespaces served by one process.
type Relay struct {
	namespaces map[domain.Namespace]*Namespace
}

// NewRelay creates one namespace per known endpoint.
func NewRelay(opts Options, metrics ports.RelayMetrics, logger *slog.Logger) *Relay {
	r := &Relay{namespaces: make(map[domain.Namespace]*Namespace)}
	for _, name := range domain.AllNamespaces() {
		r.namespaces[name] = NewNamespace(name, opts, metrics, logger)
	}
	return r
}

// Namespace returns the namespace called name, or nil.
func (r *Relay) Namespace(name domain.Namespace) *Namespace {
	return r.namespaces[name]
}

// Namespaces returns every namespace in a stable order.
func (r *Relay) Namespaces() []*Namespace {
	out := make([]*Namespace, 0, len(r.namespaces))
	for _, name := range domain.AllNamespaces() {
		out = append(out, r.namespaces[name])
	}
	return out
}

func (r *Relay) Stats() []NamespaceStats {
	stats := make([]NamespaceStats, 0, len(r.namespaces))
	for _, ns := range r.Namespaces() {
		stats = append(stats, ns.Stats())
	}
	return stats
}

// Shutdown closes all connections in every namespace.
func (r *Relay) Shutdown() {
	for _, ns := range r.Namespaces() {
		ns.Shutdown()
	}
}
