package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v3/process"
)

// workerCollector samples the live worker's resource usage on scrape.
type workerCollector struct {
	pid func() int

	cpu     *prometheus.Desc
	rss     *prometheus.Desc
	threads *prometheus.Desc
}

func newWorkerCollector(pid func() int) *workerCollector {
	return &workerCollector{
		pid: pid,
		cpu: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "worker", "cpu_percent"),
			"CPU usage of the worker process in percent of one core",
			nil, nil,
		),
		rss: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "worker", "rss_bytes"),
			"Resident memory of the worker process",
			nil, nil,
		),
		threads: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "worker", "threads"),
			"Number of threads in the worker process",
			nil, nil,
		),
	}
}

func (c *workerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.cpu
	ch <- c.rss
	ch <- c.threads
}

// Collect emits nothing when no worker is running or it vanished mid-scrape.
func (c *workerCollector) Collect(ch chan<- prometheus.Metric) {
	pid := c.pid()
	if pid <= 0 {
		return
	}
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return
	}
	if cpu, err := p.CPUPercent(); err == nil {
		ch <- prometheus.MustNewConstMetric(c.cpu, prometheus.GaugeValue, cpu)
	}
	if mem, err := p.MemoryInfo(); err == nil {
		ch <- prometheus.MustNewConstMetric(c.rss, prometheus.GaugeValue, float64(mem.RSS))
	}
	if n, err := p.NumThreads(); err == nil {
		ch <- prometheus.MustNewConstMetric(c.threads, prometheus.GaugeValue, float64(n))
	}
}
