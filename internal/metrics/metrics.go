package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Collector provides a minimal Prometheus-compatible metrics exporter.
type Collector struct {
	startedAt time.Time

	submissions   atomic.Uint64
	failures      sync.Map // kind -> *atomic.Uint64
	persistFailed atomic.Uint64

	listed      atomic.Uint64
	statusError atomic.Uint64
}

func New() *Collector {
	return &Collector{startedAt: time.Now().UTC()}
}

func (c *Collector) IncSubmission() {
	if c == nil {
		return
	}
	c.submissions.Add(1)
}

func (c *Collector) IncSubmissionFailure(kind string) {
	if c == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	ptr, _ := c.failures.LoadOrStore(kind, &atomic.Uint64{})
	ptr.(*atomic.Uint64).Add(1)
}

func (c *Collector) IncPersistFailure() {
	if c == nil {
		return
	}
	c.persistFailed.Add(1)
}

func (c *Collector) AddListed(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.listed.Add(uint64(n))
}

func (c *Collector) IncStatusError() {
	if c == nil {
		return
	}
	c.statusError.Add(1)
}

type HandlerOptions struct {
	OperationCount func() int
}

func (c *Collector) Handler(opts HandlerOptions) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		fmt.Fprint(w, "# HELP urisubmit_up Whether the urisubmit server is running.\n")
		fmt.Fprint(w, "# TYPE urisubmit_up gauge\n")
		fmt.Fprint(w, "urisubmit_up 1\n")

		fmt.Fprint(w, "# HELP urisubmit_uptime_seconds Seconds since the collector was created.\n")
		fmt.Fprint(w, "# TYPE urisubmit_uptime_seconds gauge\n")
		fmt.Fprintf(w, "urisubmit_uptime_seconds %d\n", int64(time.Since(c.startedAt).Seconds()))

		fmt.Fprint(w, "# HELP urisubmit_submissions_total URIs accepted by the Web Risk API.\n")
		fmt.Fprint(w, "# TYPE urisubmit_submissions_total counter\n")
		fmt.Fprintf(w, "urisubmit_submissions_total %d\n", c.submissions.Load())

		kinds := snapshotKeys(&c.failures)
		if len(kinds) > 0 {
			fmt.Fprint(w, "# HELP urisubmit_submission_failures_total Rejected submissions by failure kind.\n")
			fmt.Fprint(w, "# TYPE urisubmit_submission_failures_total counter\n")
			for _, k := range kinds {
				ptr, _ := c.failures.Load(k)
				n := uint64(0)
				if ptr != nil {
					n = ptr.(*atomic.Uint64).Load()
				}
				fmt.Fprintf(w, "urisubmit_submission_failures_total{kind=\"%s\"} %d\n", escapeLabelValue(k), n)
			}
		}

		fmt.Fprint(w, "# HELP urisubmit_persist_failures_total Accepted submissions whose local record could not be written.\n")
		fmt.Fprint(w, "# TYPE urisubmit_persist_failures_total counter\n")
		fmt.Fprintf(w, "urisubmit_persist_failures_total %d\n", c.persistFailed.Load())

		fmt.Fprint(w, "# HELP urisubmit_operations_listed_total Rows produced by the operations view.\n")
		fmt.Fprint(w, "# TYPE urisubmit_operations_listed_total counter\n")
		fmt.Fprintf(w, "urisubmit_operations_listed_total %d\n", c.listed.Load())

		fmt.Fprint(w, "# HELP urisubmit_status_errors_total Operation status lookups that failed.\n")
		fmt.Fprint(w, "# TYPE urisubmit_status_errors_total counter\n")
		fmt.Fprintf(w, "urisubmit_status_errors_total %d\n", c.statusError.Load())

		if opts.OperationCount != nil {
			fmt.Fprint(w, "# HELP urisubmit_operations_stored Operations in the local store.\n")
			fmt.Fprint(w, "# TYPE urisubmit_operations_stored gauge\n")
			fmt.Fprintf(w, "urisubmit_operations_stored %d\n", opts.OperationCount())
		}
	})
}

func snapshotKeys(m *sync.Map) []string {
	var out []string
	m.Range(func(k, _ any) bool {
		if s, ok := k.(string); ok {
			out = append(out, s)
		}
		return true
	})
	sort.Strings(out)
	return out
}

func escapeLabelValue(v string) string {
	// Prometheus text format label escaping for " and \ and newlines.
	v = strings.ReplaceAll(v, "\\", "\\\\")
	v = strings.ReplaceAll(v, "\n", "\\n")
	v = strings.ReplaceAll(v, "\"", "\\\"")
	return v
}
