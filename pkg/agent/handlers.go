package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/sirupsen/logrus"

	"github.com/mscrnt/drivecheck/pkg/attrdb"
	"github.com/mscrnt/drivecheck/pkg/device"
	"github.com/mscrnt/drivecheck/pkg/transport"
)

// DeviceStatus is one entry of /devices. Error is set when the device could
// be listed but not read.
type DeviceStatus struct {
	device.Info
	Error string `json:"error,omitempty"`
}

// Attribute is an ATA SMART attribute row.
type Attribute struct {
	ID         uint8  `json:"id"`
	Name       string `json:"name"`
	Current    uint8  `json:"current"`
	Worst      uint8  `json:"worst"`
	Threshold  uint8  `json:"threshold"`
	Raw        uint64 `json:"raw"`
	Unit       string `json:"unit,omitempty"`
	Prefailure bool   `json:"prefailure"`
	Failing    bool   `json:"failing"`
}

// HealthValue is an NVMe health log field. Value is decimal because the
// counters are 128 bits wide.
type HealthValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Unit  string `json:"unit,omitempty"`
}

// SmartReport is the body of /devices/smart. Exactly one of Attributes and
// Health is set.
type SmartReport struct {
	Device     device.Info   `json:"device"`
	Attributes []Attribute   `json:"attributes,omitempty"`
	Health     []HealthValue `json:"health,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
}

// Handler routes the agent endpoints.
type Handler struct {
	list   func() ([]string, error)
	open   func(path string) (*device.Device, error)
	names  *attrdb.DB
	logger *logrus.Logger
	mux    *http.ServeMux
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the request and collector logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithLister replaces device.List.
func WithLister(fn func() ([]string, error)) Option {
	return func(h *Handler) {
		h.list = fn
	}
}

// WithOpener replaces device.Open.
func WithOpener(fn func(path string) (*device.Device, error)) Option {
	return func(h *Handler) {
		h.open = fn
	}
}

// WithAttributes names ATA attributes from db instead of the built-in table.
func WithAttributes(db *attrdb.DB) Option {
	return func(h *Handler) {
		h.names = db
	}
}

// hostInfo is replaced in tests.
var hostInfo = host.Info

// NewHandler builds the routes. Every request opens the devices it reads
// and closes them before responding.
func NewHandler(opts ...Option) *Handler {
	h := &Handler{
		list:   device.List,
		open:   func(path string) (*device.Device, error) { return device.Open(path) },
		names:  attrdb.Default(),
		logger: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(h)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(NewCollector(h))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("GET /devices", h.devicesHandler)
	mux.HandleFunc("GET /devices/smart", h.smartHandler)
	mux.HandleFunc("GET /host", hostHandler)
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{
		ErrorLog:      h.logger,
		ErrorHandling: promhttp.ContinueOnError,
	}))
	h.mux = mux

	return h
}

// ServeHTTP logs and dispatches the request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	loggingMiddleware(h.logger, h.mux).ServeHTTP(w, r)
}

// healthHandler returns server health status
func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "OK\n")
}

func hostHandler(w http.ResponseWriter, _ *http.Request) {
	info, err := hostInfo()
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to read host info: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, info)
}

func (h *Handler) devicesHandler(w http.ResponseWriter, _ *http.Request) {
	paths, err := h.list()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	out := make([]DeviceStatus, 0, len(paths))
	for _, path := range paths {
		status := DeviceStatus{Info: device.Info{Path: path}}
		if info, err := h.inspect(path); err != nil {
			h.logger.WithError(err).WithField("device", path).Warn("failed to inspect device")
			status.Error = err.Error()
		} else {
			status.Info = info
		}
		out = append(out, status)
	}
	writeJSON(w, out)
}

func (h *Handler) inspect(path string) (device.Info, error) {
	d, err := h.open(path)
	if err != nil {
		return device.Info{}, err
	}
	defer d.Close()
	return d.Info()
}

func (h *Handler) smartHandler(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		http.Error(w, "path parameter is required", http.StatusBadRequest)
		return
	}

	// Only listed disks may be opened.
	paths, err := h.list()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !slices.Contains(paths, path) {
		http.Error(w, fmt.Sprintf("%s: %v", path, device.ErrDeviceNotFound), http.StatusNotFound)
		return
	}

	report, err := h.smartReport(path)
	if err != nil {
		h.logger.WithError(err).WithField("device", path).Warn("failed to read SMART data")
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, report)
}

func (h *Handler) smartReport(path string) (*SmartReport, error) {
	d, err := h.open(path)
	if err != nil {
		return nil, err
	}
	defer d.Close()

	info, err := d.Info()
	if err != nil {
		return nil, err
	}
	table, err := d.SmartTable()
	if err != nil {
		return nil, fmt.Errorf("failed to read SMART table: %w", err)
	}

	report := &SmartReport{Device: info, Timestamp: time.Now()}
	if table.ATA != nil {
		for _, a := range table.ATA.Entries() {
			name := h.names.Lookup(a.ID)
			report.Attributes = append(report.Attributes, Attribute{
				ID:         a.ID,
				Name:       name.Name,
				Current:    a.Current,
				Worst:      a.Worst,
				Threshold:  a.Threshold,
				Raw:        a.RawValue(),
				Unit:       name.Unit,
				Prefailure: a.Prefailure(),
				Failing:    a.Failing(),
			})
		}
	}
	for _, e := range table.NVMe {
		report.Health = append(report.Health, HealthValue{Name: e.Name, Value: e.Value.String(), Unit: e.Unit})
	}
	return report, nil
}

// statusFor maps device and transport errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, device.ErrDeviceNotFound):
		return http.StatusNotFound
	case errors.Is(err, device.ErrUnsupportedDeviceType),
		errors.Is(err, device.ErrUnsupportedOperation),
		transport.IsKind(err, transport.NotSupported):
		return http.StatusNotImplemented
	case transport.IsKind(err, transport.PermissionDenied):
		return http.StatusForbidden
	case transport.IsKind(err, transport.DeviceBusy):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
