// Package report renders stored check runs as HTML and PDF documents.
package report

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"math/big"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/host"

	"github.com/mscrnt/drivecheck/pkg/db"
)

// ReportData contains all data needed for report generation
type ReportData struct {
	Run          *db.Run
	Check        string
	Device       DeviceInfo
	GeneratedAt  time.Time
	Host         HostInfo
	Attributes   []AttributeRow
	MetricGroups []MetricGroup
}

// DeviceInfo is the identity recorded by the check.
type DeviceInfo struct {
	Path     string
	Variant  string
	Model    string
	Serial   string
	Firmware string
}

// HostInfo describes the machine generating the report.
type HostInfo struct {
	Hostname string
	OS       string
	Platform string
	Kernel   string
	Uptime   string
}

// AttributeRow is one ATA SMART attribute rebuilt from its stored metrics.
type AttributeRow struct {
	ID        int
	Name      string
	Current   int
	Worst     int
	Threshold int
	Raw       string
	Failing   bool
}

// MetricGroup groups related metrics together
type MetricGroup struct {
	Name    string
	Metrics []MetricDisplay
}

// MetricDisplay represents a metric for display
type MetricDisplay struct {
	Name  string
	Value string
	Unit  string
	Raw   float64
}

// hostInfo is replaced in tests.
var hostInfo = host.Info

// Generator creates reports from stored runs
type Generator struct {
	database *db.DB
	now      func() time.Time
}

// NewGenerator creates a new report generator
func NewGenerator(database *db.DB) *Generator {
	return &Generator{
		database: database,
		now:      time.Now,
	}
}

// GenerateHTML generates an HTML report for a run
func (g *Generator) GenerateHTML(runID int64) (string, error) {
	var buf bytes.Buffer
	if err := g.WriteHTML(&buf, runID); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// WriteHTML renders the HTML report for a run to w.
func (g *Generator) WriteHTML(w io.Writer, runID int64) error {
	data, err := g.Load(runID)
	if err != nil {
		return err
	}

	if err := reportTemplate.Execute(w, data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}
	return nil
}

// Load collects everything the report shows for runID.
func (g *Generator) Load(runID int64) (*ReportData, error) {
	run, err := g.database.GetRun(runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	results, err := g.database.GetResults(runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get results: %w", err)
	}

	data := &ReportData{
		Run:         run,
		Check:       run.Check,
		Device:      deviceInfo(run),
		GeneratedAt: g.now(),
		Host:        systemInfo(),
	}
	data.Attributes, results = attributeRows(results)
	data.MetricGroups = groupMetrics(results)

	return data, nil
}

func deviceInfo(run *db.Run) DeviceInfo {
	str := func(key string) string {
		if v, ok := run.Details[key].(string); ok {
			return v
		}
		return ""
	}
	return DeviceInfo{
		Path:     run.Device,
		Variant:  str("variant"),
		Model:    str("model"),
		Serial:   str("serial"),
		Firmware: str("firmware"),
	}
}

func systemInfo() HostInfo {
	info, err := hostInfo()
	if err != nil || info == nil {
		return HostInfo{Hostname: "unknown"}
	}
	return HostInfo{
		Hostname: info.Hostname,
		OS:       info.OS,
		Platform: strings.TrimSpace(info.Platform + " " + info.PlatformVersion),
		Kernel:   info.KernelVersion,
		Uptime:   (time.Duration(info.Uptime) * time.Second).String(),
	}
}

var attributeMetric = regexp.MustCompile(`^(\d+)_(.+)\.(current|worst|threshold|raw)$`)

// attributeRows pivots "<id>_<name>.<field>" metrics into one row per
// attribute and returns the metrics that did not match.
func attributeRows(results []*db.Result) ([]AttributeRow, []*db.Result) {
	byID := make(map[int]*AttributeRow)
	var order []int
	var rest []*db.Result

	for _, r := range results {
		m := attributeMetric.FindStringSubmatch(r.Metric)
		if m == nil {
			rest = append(rest, r)
			continue
		}
		id, err := strconv.Atoi(m[1])
		if err != nil {
			rest = append(rest, r)
			continue
		}
		row, ok := byID[id]
		if !ok {
			row = &AttributeRow{ID: id, Name: strings.ReplaceAll(m[2], "_", " ")}
			byID[id] = row
			order = append(order, id)
		}
		switch m[3] {
		case "current":
			row.Current = int(r.Value)
		case "worst":
			row.Worst = int(r.Value)
		case "threshold":
			row.Threshold = int(r.Value)
		case "raw":
			row.Raw = humanize.Comma(int64(r.Value))
			if r.Unit != "" {
				row.Raw += " " + r.Unit
			}
		}
	}

	sort.Ints(order)
	rows := make([]AttributeRow, 0, len(order))
	for _, id := range order {
		row := byID[id]
		row.Failing = row.Threshold != 0 && row.Current <= row.Threshold
		rows = append(rows, *row)
	}
	return rows, rest
}

var summaryMetrics = map[string]bool{
	"temperature": true,
	"attributes":  true,
	"devices":     true,
}

// groupMetrics keeps recorded order within each group.
func groupMetrics(results []*db.Result) []MetricGroup {
	groups := []MetricGroup{{Name: "Summary"}, {Name: "Health Log"}, {Name: "Devices"}}

	for _, result := range results {
		i := 1
		switch {
		case summaryMetrics[result.Metric]:
			i = 0
		case strings.HasPrefix(result.Metric, "/dev/"):
			i = 2
		}

		groups[i].Metrics = append(groups[i].Metrics, MetricDisplay{
			Name:  formatMetricName(result.Metric),
			Value: formatValue(result.Value, result.Unit),
			Unit:  result.Unit,
			Raw:   result.Value,
		})
	}

	out := groups[:0]
	for _, g := range groups {
		if len(g.Metrics) > 0 {
			out = append(out, g)
		}
	}
	return out
}

func formatMetricName(name string) string {
	if strings.HasPrefix(name, "/dev/") {
		return name
	}
	words := strings.Split(name, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// formatValue renders data unit counters as bytes and everything else with
// thousands separators.
func formatValue(value float64, unit string) string {
	switch unit {
	case "512000 bytes":
		units, _ := big.NewFloat(value).Int(nil)
		size := new(big.Int).Mul(units, big.NewInt(512000))
		return fmt.Sprintf("%s (%s)", humanize.BigComma(units), humanize.BigBytes(size))
	case "%":
		return fmt.Sprintf("%.0f", value)
	}
	if value == float64(int64(value)) {
		return humanize.Comma(int64(value))
	}
	return humanize.CommafWithDigits(value, 2)
}

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"formatTime": func(t time.Time) string {
		return t.Format("2006-01-02 15:04:05")
	},
	"formatDuration": func(d time.Duration) string {
		return fmt.Sprintf("%.2f seconds", d.Seconds())
	},
	"statusClass": func(success bool) string {
		if success {
			return "success"
		}
		return "failure"
	},
	"statusText": func(success bool) string {
		if success {
			return "PASSED"
		}
		return "FAILED"
	},
}).Parse(htmlTemplate))
