package agent

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/mscrnt/drivecheck/pkg/device"
)

const namespace = "drivecheck"

// Collector reads every listed device on each scrape.
type Collector struct {
	h *Handler

	up          *prometheus.Desc
	info        *prometheus.Desc
	temperature *prometheus.Desc
	current     *prometheus.Desc
	worst       *prometheus.Desc
	threshold   *prometheus.Desc
	raw         *prometheus.Desc
	health      *prometheus.Desc
}

// NewCollector uses the lister, opener and attribute names of h.
func NewCollector(h *Handler) *Collector {
	attr := []string{"device", "id", "name"}
	return &Collector{
		h: h,
		up: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "device", "up"),
			"Whether the device could be read (1) or not (0).",
			[]string{"device"}, nil),
		info: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "device", "info"),
			"Device identity.",
			[]string{"device", "variant", "model", "serial", "firmware"}, nil),
		temperature: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "device", "temperature_celsius"),
			"Current drive temperature.",
			[]string{"device"}, nil),
		current: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "smart", "attribute_value"),
			"Normalized ATA SMART attribute value.",
			attr, nil),
		worst: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "smart", "attribute_worst"),
			"Worst normalized ATA SMART attribute value.",
			attr, nil),
		threshold: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "smart", "attribute_threshold"),
			"ATA SMART attribute failure threshold.",
			attr, nil),
		raw: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "smart", "attribute_raw"),
			"Raw ATA SMART attribute value.",
			attr, nil),
		health: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "nvme", "health"),
			"NVMe SMART / Health log field.",
			[]string{"device", "field"}, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{c.up, c.info, c.temperature, c.current, c.worst, c.threshold, c.raw, c.health} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	paths, err := c.h.list()
	if err != nil {
		c.h.logger.WithError(err).Warn("failed to list devices")
		return
	}

	for _, path := range paths {
		up := 1.0
		if err := c.collectDevice(ch, path); err != nil {
			c.h.logger.WithFields(logrus.Fields{"device": path, "error": err}).Debug("scrape failed")
			up = 0
		}
		ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, up, path)
	}
}

func (c *Collector) collectDevice(ch chan<- prometheus.Metric, path string) error {
	d, err := c.h.open(path)
	if err != nil {
		return err
	}
	defer d.Close()

	info, err := d.Info()
	if err != nil {
		return err
	}
	ch <- prometheus.MustNewConstMetric(c.info, prometheus.GaugeValue, 1,
		path, info.Variant, info.Model, info.Serial, info.Firmware)
	if info.Temperature != nil {
		ch <- prometheus.MustNewConstMetric(c.temperature, prometheus.GaugeValue, float64(*info.Temperature), path)
	}

	table, err := d.SmartTable()
	if errors.Is(err, device.ErrUnsupportedOperation) {
		return nil
	}
	if err != nil {
		return err
	}

	if table.ATA != nil {
		for _, a := range table.ATA.Entries() {
			labels := []string{path, strconv.Itoa(int(a.ID)), c.h.names.Lookup(a.ID).Name}
			ch <- prometheus.MustNewConstMetric(c.current, prometheus.GaugeValue, float64(a.Current), labels...)
			ch <- prometheus.MustNewConstMetric(c.worst, prometheus.GaugeValue, float64(a.Worst), labels...)
			ch <- prometheus.MustNewConstMetric(c.threshold, prometheus.GaugeValue, float64(a.Threshold), labels...)
			ch <- prometheus.MustNewConstMetric(c.raw, prometheus.GaugeValue, float64(a.RawValue()), labels...)
		}
	}
	for _, e := range table.NVMe {
		ch <- prometheus.MustNewConstMetric(c.health, prometheus.GaugeValue, e.Value.Float64(), path, e.Name)
	}
	return nil
}

var _ prometheus.Collector = (*Collector)(nil)
