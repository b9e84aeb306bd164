// Package instrument exports the chat server's prometheus metrics.
package instrument

import (
	"errors"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Reasons a chat message is dropped.
const (
	DropMalformed = "malformed"
	DropDecrypt   = "decrypt"
	DropIntegrity = "integrity"
)

var (
	acceptedConns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "securechat_accepted_connections_total",
			Help: "Number of accepted TCP connections",
		},
	)
	handshakes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "securechat_handshakes_total",
			Help: "Number of finished handshakes by outcome",
		},
		[]string{"outcome"},
	)
	activeClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "securechat_active_clients",
			Help: "Number of authenticated clients in the registry",
		},
	)
	messagesReceived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "securechat_messages_received_total",
			Help: "Number of chat messages accepted for broadcast",
		},
	)
	messagesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "securechat_messages_dropped_total",
			Help: "Number of chat messages dropped by reason",
		},
		[]string{"reason"},
	)
	deliveries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "securechat_deliveries_total",
			Help: "Number of per-recipient broadcast lines written",
		},
	)
	deliveryFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "securechat_delivery_failures_total",
			Help: "Number of failed per-recipient broadcast attempts",
		},
	)

	initOnce sync.Once
)

// Init registers the metrics with the default registry. Subsequent calls
// are no-ops.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(acceptedConns)
		prometheus.MustRegister(handshakes)
		prometheus.MustRegister(activeClients)
		prometheus.MustRegister(messagesReceived)
		prometheus.MustRegister(messagesDropped)
		prometheus.MustRegister(deliveries)
		prometheus.MustRegister(deliveryFailures)
	})
}

// Listener serves /metrics on its own mux.
type Listener struct {
	srv *http.Server
	ln  net.Listener
}

// StartListener registers the metrics and serves them on addr. errLog
// receives net/http's internal errors.
func StartListener(addr string, errLog *log.Logger) (*Listener, error) {
	Init()

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	l := &Listener{
		srv: &http.Server{
			Handler:           mux,
			ErrorLog:          errLog,
			ReadHeaderTimeout: 5 * time.Second,
		},
		ln: ln,
	}
	go func() {
		if err := l.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) && errLog != nil {
			errLog.Printf("metrics listener: %v", err)
		}
	}()
	return l, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Close stops the listener.
func (l *Listener) Close() error { return l.srv.Close() }

func Accepted() { acceptedConns.Inc() }

func Handshake(outcome string) { handshakes.WithLabelValues(outcome).Inc() }

func ClientJoined() { activeClients.Inc() }

func ClientLeft() { activeClients.Dec() }

func MessageReceived() { messagesReceived.Inc() }

func MessageDropped(reason string) { messagesDropped.WithLabelValues(reason).Inc() }

func Delivered() { deliveries.Inc() }

func DeliveryFailed() { deliveryFailures.Inc() }
