package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/kstaniek/go-mcp2518fd/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus counters
var (
	ChipRxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chip_rx_frames_total",
		Help: "Total CAN frames drained from the controller's receive FIFOs.",
	})
	ChipTxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chip_tx_frames_total",
		Help: "Total CAN frames queued for transmission on the controller.",
	})
	ChipTEFEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chip_tef_events_total",
		Help: "Total transmit events read from the TEF.",
	})
	ChipTxFIFOFull = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chip_tx_fifo_full_total",
		Help: "Times a transmit attempt found the TX queue full.",
	})
	ChipInterrupts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chip_interrupts_total",
		Help: "Interrupt sources seen by the service loop.",
	}, []string{"source"})
	ChipTEC = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chip_tec",
		Help: "Transmit error counter.",
	})
	ChipREC = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chip_rec",
		Help: "Receive error counter.",
	})
	ChipErrorState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chip_error_state",
		Help: "Fault confinement state: 0 active, 1 warning, 2 passive, 3 bus-off.",
	})
	SPITransactions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spi_transactions_total",
		Help: "SPI transactions issued to the controller by instruction.",
	}, []string{"op"})
	SPIBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "spi_bytes_total",
		Help: "Data bytes moved over SPI, instruction words excluded.",
	})
	SocketCANRxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "socketcan_rx_frames_total",
		Help: "Total CAN frames read from the SocketCAN interface.",
	})
	SocketCANTxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "socketcan_tx_frames_total",
		Help: "Total CAN frames written to the SocketCAN interface.",
	})
	TCPRxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tcp_rx_frames_total",
		Help: "Total CAN frames received from TCP clients.",
	})
	TCPTxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tcp_tx_frames_total",
		Help: "Total CAN frames sent to TCP clients.",
	})
	HubDroppedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_dropped_frames_total",
		Help: "Total CAN frames dropped by hub due to slow clients.",
	})
	HubKickedClients = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_kicked_clients_total",
		Help: "Total clients disconnected due to backpressure kick policy.",
	})
	HubRejectedClients = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_rejected_clients_total",
		Help: "Total client connection attempts rejected (e.g., max-clients).",
	})
	HubActiveClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_active_clients",
		Help: "Current number of active connected clients.",
	})
	HubBroadcastFanout = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_broadcast_fanout",
		Help: "Number of clients targeted in the most recent broadcast.",
	})
	HubQueueDepthMax = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_queue_depth_max",
		Help: "Observed max queued frames among clients since last sample window.",
	})
	HubQueueDepthAvg = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_queue_depth_avg",
		Help: "Approximate average queued frames per client in last sample.",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})
	MalformedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "malformed_frames_total",
		Help: "Total rejected malformed frames (protocol violations, invalid length, truncated).",
	})
	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality)
const (
	ErrTCPRead        = "tcp_read"
	ErrTCPWrite       = "tcp_write"
	ErrHandshake      = "handshake"
	ErrSPIRead        = "spi_read"
	ErrSPIWrite       = "spi_write"
	ErrChipTx         = "chip_tx"
	ErrChipOverflow   = "chip_tx_overflow"
	ErrChipRxOverflow = "chip_rx_overflow"
	ErrInvalidFrame   = "invalid_frame"
	ErrSocketCANWrite = "socketcan_write"
	ErrSocketCANOver  = "socketcan_tx_overflow"
	ErrSocketCANRead  = "socketcan_read"
)

// Interrupt source labels.
const (
	IntRx         = "rx"
	IntTx         = "tx"
	IntTEF        = "tef"
	IntRxOverflow = "rx_overflow"
	IntCANError   = "can_error"
	IntSystem     = "system_error"
	IntWake       = "wake"
	IntMode       = "mode_change"
	IntTimeBase   = "time_base"
)

// StartHTTP serves Prometheus metrics at /metrics and readiness at /ready.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters for easy logging (avoid Prometheus scraping in-process)
var (
	localChipRx      uint64
	localChipTx      uint64
	localChipTEF     uint64
	localChipFull    uint64
	localChipTEC     uint64
	localChipREC     uint64
	localSPITx       uint64
	localSPIBytes    uint64
	localSocketCANTx uint64
	localSocketCANRx uint64
	localTCPRx       uint64
	localTCPTx       uint64
	localHubDrop     uint64
	localHubKick     uint64
	localHubReject   uint64
	localErrors      uint64
	localHubClients  uint64
	localFanout      uint64
	localMalformed   uint64
	localQDMax       uint64
	localQDAvg       uint64
)

// Snapshot is a cheap copy of local counters.
type Snapshot struct {
	ChipRx        uint64
	ChipTx        uint64
	ChipTEF       uint64
	ChipFull      uint64
	ChipTEC       uint64
	ChipREC       uint64
	SPITx         uint64
	SPIBytes      uint64
	SocketCANRx   uint64
	SocketCANTx   uint64
	TCPRx         uint64
	TCPTx         uint64
	HubDrops      uint64
	HubKicks      uint64
	HubRejects    uint64
	Errors        uint64 // sum across error labels
	HubClients    uint64
	Fanout        uint64
	Malformed     uint64
	QueueDepthMax uint64
	QueueDepthAvg uint64
}

func Snap() Snapshot {
	return Snapshot{
		ChipRx:        atomic.LoadUint64(&localChipRx),
		ChipTx:        atomic.LoadUint64(&localChipTx),
		ChipTEF:       atomic.LoadUint64(&localChipTEF),
		ChipFull:      atomic.LoadUint64(&localChipFull),
		ChipTEC:       atomic.LoadUint64(&localChipTEC),
		ChipREC:       atomic.LoadUint64(&localChipREC),
		SPITx:         atomic.LoadUint64(&localSPITx),
		SPIBytes:      atomic.LoadUint64(&localSPIBytes),
		SocketCANRx:   atomic.LoadUint64(&localSocketCANRx),
		SocketCANTx:   atomic.LoadUint64(&localSocketCANTx),
		TCPRx:         atomic.LoadUint64(&localTCPRx),
		TCPTx:         atomic.LoadUint64(&localTCPTx),
		HubDrops:      atomic.LoadUint64(&localHubDrop),
		HubKicks:      atomic.LoadUint64(&localHubKick),
		HubRejects:    atomic.LoadUint64(&localHubReject),
		Errors:        atomic.LoadUint64(&localErrors),
		HubClients:    atomic.LoadUint64(&localHubClients),
		Fanout:        atomic.LoadUint64(&localFanout),
		Malformed:     atomic.LoadUint64(&localMalformed),
		QueueDepthMax: atomic.LoadUint64(&localQDMax),
		QueueDepthAvg: atomic.LoadUint64(&localQDAvg),
	}
}

// AddChipRx counts frames drained from receive FIFOs.
func AddChipRx(n int) {
	ChipRxFrames.Add(float64(n))
	atomic.AddUint64(&localChipRx, uint64(n))
}

func IncChipTx() {
	ChipTxFrames.Inc()
	atomic.AddUint64(&localChipTx, 1)
}

func AddChipTEF(n int) {
	ChipTEFEvents.Add(float64(n))
	atomic.AddUint64(&localChipTEF, uint64(n))
}

func IncChipTxFull() {
	ChipTxFIFOFull.Inc()
	atomic.AddUint64(&localChipFull, 1)
}

func IncInterrupt(source string) { ChipInterrupts.WithLabelValues(source).Inc() }

// SetErrorCounters records TEC, REC and the confinement state.
func SetErrorCounters(tec, rec uint8, state int) {
	ChipTEC.Set(float64(tec))
	ChipREC.Set(float64(rec))
	ChipErrorState.Set(float64(state))
	atomic.StoreUint64(&localChipTEC, uint64(tec))
	atomic.StoreUint64(&localChipREC, uint64(rec))
}

// ObserveSPI counts one transaction moving n data bytes.
func ObserveSPI(op string, n int) {
	SPITransactions.WithLabelValues(op).Inc()
	SPIBytes.Add(float64(n))
	atomic.AddUint64(&localSPITx, 1)
	atomic.AddUint64(&localSPIBytes, uint64(n))
}

// IncSocketCANRx increments SocketCAN receive counters.
func IncSocketCANRx() {
	SocketCANRxFrames.Inc()
	atomic.AddUint64(&localSocketCANRx, 1)
}

// IncSocketCANTx increments SocketCAN transmit counters.
func IncSocketCANTx() {
	SocketCANTxFrames.Inc()
	atomic.AddUint64(&localSocketCANTx, 1)
}

func IncTCPRx() {
	TCPRxFrames.Inc()
	atomic.AddUint64(&localTCPRx, 1)
}

func AddTCPTx(n int) {
	TCPTxFrames.Add(float64(n))
	atomic.AddUint64(&localTCPTx, uint64(n))
}

func IncHubDrop() {
	HubDroppedFrames.Inc()
	atomic.AddUint64(&localHubDrop, 1)
}

func IncHubKick() {
	HubKickedClients.Inc()
	atomic.AddUint64(&localHubKick, 1)
}

func IncHubReject() {
	HubRejectedClients.Inc()
	atomic.AddUint64(&localHubReject, 1)
}

func SetHubClients(n int) {
	HubActiveClients.Set(float64(n))
	atomic.StoreUint64(&localHubClients, uint64(n))
}

func SetBroadcastFanout(n int) {
	HubBroadcastFanout.Set(float64(n))
	atomic.StoreUint64(&localFanout, uint64(n))
}

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

func IncMalformed() {
	MalformedFrames.Inc()
	atomic.AddUint64(&localMalformed, 1)
}

// SetQueueDepth records a snapshot of max and avg queue depth.
func SetQueueDepth(max, avg int) {
	HubQueueDepthMax.Set(float64(max))
	HubQueueDepthAvg.Set(float64(avg))
	atomic.StoreUint64(&localQDMax, uint64(max))
	atomic.StoreUint64(&localQDAvg, uint64(avg))
}

// InitBuildInfo sets the build info gauge (should be called once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	// Pre-register label series so they export as zero before the first event.
	for _, lbl := range []string{
		ErrTCPRead, ErrTCPWrite, ErrHandshake,
		ErrSPIRead, ErrSPIWrite, ErrChipTx, ErrChipOverflow, ErrChipRxOverflow, ErrInvalidFrame,
		ErrSocketCANWrite, ErrSocketCANOver, ErrSocketCANRead,
	} {
		Errors.WithLabelValues(lbl).Add(0)
	}
	for _, src := range []string{IntRx, IntTx, IntTEF, IntRxOverflow, IntCANError, IntSystem, IntWake, IntMode, IntTimeBase} {
		ChipInterrupts.WithLabelValues(src).Add(0)
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil { // not set yet: report ready so the endpoint doesn't flap
		return true
	}
	return fn()
}
