// Copyright 2016 Aleksandr Demakin. All rights reserved.

package shf

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const metricsNamespace = "shf"

// Collector exports queue counters of a hash file as prometheus metrics.
type Collector struct {
	hf        *HashFile
	size      *prometheus.Desc
	pushes    *prometheus.Desc
	pulls     *prometheus.Desc
	conflicts *prometheus.Desc
	free      *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns a collector for the hash file.
func NewCollector(hf *HashFile) *Collector {
	labels := []string{"queue", "name"}
	constLabels := prometheus.Labels{"file": hf.Path()}
	return &Collector{
		hf: hf,
		size: prometheus.NewDesc(prometheus.BuildFQName(metricsNamespace, "queue", "items"),
			"Number of items in the queue.", labels, constLabels),
		pushes: prometheus.NewDesc(prometheus.BuildFQName(metricsNamespace, "queue", "pushes_total"),
			"Number of items pushed onto the queue.", labels, constLabels),
		pulls: prometheus.NewDesc(prometheus.BuildFQName(metricsNamespace, "queue", "pulls_total"),
			"Number of items pulled from the queue.", labels, constLabels),
		conflicts: prometheus.NewDesc(prometheus.BuildFQName(metricsNamespace, "queue", "head_conflicts_total"),
			"Number of retried pushes due to a moved head.", labels, constLabels),
		free: prometheus.NewDesc(prometheus.BuildFQName(metricsNamespace, "", "free_items"),
			"Number of items in the free pool.", nil, constLabels),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.size
	ch <- c.pushes
	ch <- c.pulls
	ch <- c.conflicts
	ch <- c.free
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stats, err := c.hf.Stats()
	if err != nil {
		logger().Debug("no queue metrics", zap.Error(err))
		return
	}
	for _, st := range stats {
		if !st.ID.Valid() {
			ch <- prometheus.MustNewConstMetric(c.free, prometheus.GaugeValue, float64(st.Size))
			continue
		}
		id := st.ID.String()
		ch <- prometheus.MustNewConstMetric(c.size, prometheus.GaugeValue, float64(st.Size), id, st.Name)
		ch <- prometheus.MustNewConstMetric(c.pushes, prometheus.CounterValue, float64(st.Pushes), id, st.Name)
		ch <- prometheus.MustNewConstMetric(c.pulls, prometheus.CounterValue, float64(st.Pulls), id, st.Name)
		ch <- prometheus.MustNewConstMetric(c.conflicts, prometheus.CounterValue, float64(st.Conflicts), id, st.Name)
	}
}
