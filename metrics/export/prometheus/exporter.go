package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	goDeliver "github.com/MrEthical07/goDeliver"
	"github.com/MrEthical07/goDeliver/metrics/export/internaldefs"
)

const contentType = "text/plain; version=0.0.4; charset=utf-8"

// PrometheusExporter renders a [goDeliver.Engine]'s counters and checkout
// latency histogram as Prometheus text.
type PrometheusExporter struct {
	source internaldefs.Source
}

func NewPrometheusExporter(engine *goDeliver.Engine) *PrometheusExporter {
	return &PrometheusExporter{source: engine}
}

// NewPrometheusExporterFromSource reads from any snapshot source.
func NewPrometheusExporterFromSource(source internaldefs.Source) *PrometheusExporter {
	return &PrometheusExporter{source: source}
}

// Handler serves Render on every request.
func (p *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write([]byte(p.Render()))
	})
}

// Render returns the exposition text, or "" while nothing has been recorded
// (metrics disabled on the engine).
func (p *PrometheusExporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}
	view := internaldefs.Read(p.source)
	if view.Empty() {
		return ""
	}

	var t text
	t.Grow(4096)
	for _, c := range view.Counters {
		t.family(c.Name, "counter", c.Help)
		t.sample(c.Name, "", c.Value)
	}
	for _, h := range view.Histograms {
		t.family(h.Name, "histogram", h.Help)
		for i, le := range internaldefs.HistogramBounds {
			t.sample(h.Name+"_bucket", `le="`+le+`"`, h.Cumulative[i])
		}
		t.sample(h.Name+"_count", "", h.Cumulative[len(h.Cumulative)-1])
		// engine histograms keep bucket counts only
		t.sample(h.Name+"_sum", "", 0)
	}
	t.family(internaldefs.AuditDroppedName, "counter", internaldefs.AuditDroppedHelp)
	t.sample(internaldefs.AuditDroppedName, "", view.AuditDropped)
	return t.String()
}

type text struct {
	strings.Builder
}

var helpEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`)

func (t *text) family(name, kind, help string) {
	t.WriteString("# HELP " + name + " ")
	_, _ = helpEscaper.WriteString(&t.Builder, help)
	t.WriteString("\n# TYPE " + name + " " + kind + "\n")
}

func (t *text) sample(name, labels string, value uint64) {
	t.WriteString(name)
	if labels != "" {
		t.WriteString("{" + labels + "}")
	}
	t.WriteByte(' ')
	t.WriteString(strconv.FormatUint(value, 10))
	t.WriteByte('\n')
}
