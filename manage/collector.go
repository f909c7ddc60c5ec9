/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package manage

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "netpipe"

type collector struct {
	reg *Registry

	accepted  *prometheus.Desc
	active    *prometheus.Desc
	closed    *prometheus.Desc
	rejected  *prometheus.Desc
	failed    *prometheus.Desc
	bytesIn   *prometheus.Desc
	bytesOut  *prometheus.Desc
	state     *prometheus.Desc
	recovered *prometheus.Desc
	counters  *prometheus.Desc
}

// NewCollector reads server stats on every scrape, nothing is cached between scrapes.
func NewCollector(reg *Registry) prometheus.Collector {
	labels := []string{"server"}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
	}

	return &collector{
		reg:       reg,
		accepted:  desc("connections_accepted_total", "Connections accepted and handed to a pipeline."),
		active:    desc("connections_active", "Connections currently open."),
		closed:    desc("connections_closed_total", "Connections closed after serving."),
		rejected:  desc("connections_rejected_total", "Connections rejected by the max_conns limit."),
		failed:    desc("connections_failed_total", "Connections that ended with an error."),
		bytesIn:   desc("bytes_received_total", "Bytes read from connections."),
		bytesOut:  desc("bytes_sent_total", "Bytes written to connections."),
		state:     desc("server_state", "Lifecycle state: 0 stopped, 1 starting, 2 running, 3 stopping."),
		recovered: desc("stage_errors_recovered_total", "Stage errors after which the connection kept reading."),
		counters: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "stage_counter_total"),
			"Counters published by pipeline stages, frames decoded or oversized frames dropped.",
			[]string{"server", "counter"}, nil),
	}
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{c.accepted, c.active, c.closed, c.rejected, c.failed, c.bytesIn, c.bytesOut, c.state, c.recovered, c.counters} {
		ch <- d
	}
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	for _, s := range c.reg.List() {
		st := s.Stats()
		name := s.Name()

		ch <- prometheus.MustNewConstMetric(c.accepted, prometheus.CounterValue, float64(st.Accepted), name)
		ch <- prometheus.MustNewConstMetric(c.active, prometheus.GaugeValue, float64(st.Active), name)
		ch <- prometheus.MustNewConstMetric(c.closed, prometheus.CounterValue, float64(st.Closed), name)
		ch <- prometheus.MustNewConstMetric(c.rejected, prometheus.CounterValue, float64(st.Rejected), name)
		ch <- prometheus.MustNewConstMetric(c.failed, prometheus.CounterValue, float64(st.Failed), name)
		ch <- prometheus.MustNewConstMetric(c.bytesIn, prometheus.CounterValue, float64(st.BytesIn), name)
		ch <- prometheus.MustNewConstMetric(c.bytesOut, prometheus.CounterValue, float64(st.BytesOut), name)
		ch <- prometheus.MustNewConstMetric(c.state, prometheus.GaugeValue, float64(s.State()), name)
		ch <- prometheus.MustNewConstMetric(c.recovered, prometheus.CounterValue, float64(st.Recovered), name)
		for counter, v := range st.Counters {
			ch <- prometheus.MustNewConstMetric(c.counters, prometheus.CounterValue, float64(v), name, counter)
		}
	}
}
