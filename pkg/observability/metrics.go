package observability

import (
    "context"
    "errors"
    "net/http"
    "time"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promhttp"
    "go.uber.org/zap"
)

// Direction labels for bridge counters.
const (
    DirInbound  = "inbound"  // local endpoint -> mesh
    DirOutbound = "outbound" // mesh -> local endpoint
)

// Metrics holds the bridge and mesh collectors. A nil *Metrics is valid and
// records nothing, so components can take it unconditionally.
type Metrics struct {
    Bytes      *prometheus.CounterVec // by direction
    Fragments  prometheus.Counter
    ReadErrors prometheus.Counter
    SendErrors prometheus.Counter
    Lagged     *prometheus.CounterVec // by stream
    LinkUp     prometheus.Gauge

    Packets *prometheus.CounterVec // by direction (rx/tx) and type
    Dropped *prometheus.CounterVec // by reason
    Links   *prometheus.GaugeVec   // by link direction
}

// NewMetrics creates and registers collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
    m := &Metrics{
        Bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
            Namespace: "mavmesh", Subsystem: "bridge", Name: "bytes_total",
            Help: "Bytes forwarded by the bridge.",
        }, []string{"direction"}),
        Fragments: prometheus.NewCounter(prometheus.CounterOpts{
            Namespace: "mavmesh", Subsystem: "bridge", Name: "fragments_total",
            Help: "Fragments submitted to the mesh.",
        }),
        ReadErrors: prometheus.NewCounter(prometheus.CounterOpts{
            Namespace: "mavmesh", Subsystem: "bridge", Name: "read_errors_total",
            Help: "Local endpoint read errors.",
        }),
        SendErrors: prometheus.NewCounter(prometheus.CounterOpts{
            Namespace: "mavmesh", Subsystem: "bridge", Name: "send_errors_total",
            Help: "Fragments the mesh refused.",
        }),
        Lagged: prometheus.NewCounterVec(prometheus.CounterOpts{
            Namespace: "mavmesh", Subsystem: "bridge", Name: "lagged_events_total",
            Help: "Events dropped by lossy event streams.",
        }, []string{"stream"}),
        LinkUp: prometheus.NewGauge(prometheus.GaugeOpts{
            Namespace: "mavmesh", Subsystem: "bridge", Name: "link_up",
            Help: "1 while a link to the peer is tracked.",
        }),
        Packets: prometheus.NewCounterVec(prometheus.CounterOpts{
            Namespace: "mavmesh", Subsystem: "mesh", Name: "packets_total",
            Help: "Mesh packets by direction and type.",
        }, []string{"direction", "type"}),
        Dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
            Namespace: "mavmesh", Subsystem: "mesh", Name: "dropped_total",
            Help: "Mesh packets dropped by reason.",
        }, []string{"reason"}),
        Links: prometheus.NewGaugeVec(prometheus.GaugeOpts{
            Namespace: "mavmesh", Subsystem: "mesh", Name: "links",
            Help: "Active links by direction.",
        }, []string{"direction"}),
    }
    if reg != nil {
        reg.MustRegister(m.Bytes, m.Fragments, m.ReadErrors, m.SendErrors, m.Lagged, m.LinkUp, m.Packets, m.Dropped, m.Links)
    }
    return m
}

func (m *Metrics) AddBytes(dir string, n int) {
    if m == nil { return }
    m.Bytes.WithLabelValues(dir).Add(float64(n))
}

func (m *Metrics) IncFragments() {
    if m == nil { return }
    m.Fragments.Inc()
}

func (m *Metrics) IncReadErrors() {
    if m == nil { return }
    m.ReadErrors.Inc()
}

func (m *Metrics) IncSendErrors() {
    if m == nil { return }
    m.SendErrors.Inc()
}

func (m *Metrics) AddLagged(stream string, n uint64) {
    if m == nil { return }
    m.Lagged.WithLabelValues(stream).Add(float64(n))
}

func (m *Metrics) SetLinkUp(up bool) {
    if m == nil { return }
    if up {
        m.LinkUp.Set(1)
    } else {
        m.LinkUp.Set(0)
    }
}

func (m *Metrics) IncPacket(dir, typ string) {
    if m == nil { return }
    m.Packets.WithLabelValues(dir, typ).Inc()
}

func (m *Metrics) IncDropped(reason string) {
    if m == nil { return }
    m.Dropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) AddLinks(dir string, delta float64) {
    if m == nil { return }
    m.Links.WithLabelValues(dir).Add(delta)
}

// ServeMetrics serves the gatherer on addr+path until ctx is done.
func ServeMetrics(ctx context.Context, addr, path string, g prometheus.Gatherer) error {
    mux := http.NewServeMux()
    mux.Handle(path, promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
    srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
    go func() {
        <-ctx.Done()
        shutCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
        defer cancel()
        _ = srv.Shutdown(shutCtx)
    }()
    zap.L().Info("metrics listening", zap.String("addr", addr), zap.String("path", path))
    if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
        return err
    }
    return nil
}
