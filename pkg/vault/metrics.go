// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"github.com/prometheus/client_golang/prometheus"
)

// RouterCollector is a Prometheus Collector that reads Router.GetHealth on
// every scrape instead of mirroring counters into a second set of gauges,
// so /metrics can never drift from the values GET /health reports.
type RouterCollector struct {
	router *Router

	uploadedBytes *prometheus.Desc
	quotaBytes    *prometheus.Desc
	groupFull     *prometheus.Desc
	remoteTotal   *prometheus.Desc
	remoteSuccess *prometheus.Desc
	remoteFailed  *prometheus.Desc
	remoteHealthy *prometheus.Desc
	remoteQuota   *prometheus.Desc
}

// NewRouterCollector wraps router for Prometheus registration.
func NewRouterCollector(router *Router) *RouterCollector {
	return &RouterCollector{
		router: router,
		uploadedBytes: prometheus.NewDesc("mangavault_group_uploaded_bytes", "Bytes uploaded to this storage group since last reset.", []string{"group"}, nil),
		quotaBytes:    prometheus.NewDesc("mangavault_group_quota_bytes", "Configured soft quota for this storage group, 0 if unbounded.", []string{"group"}, nil),
		groupFull:     prometheus.NewDesc("mangavault_group_full", "1 if this storage group has been marked full.", []string{"group"}, nil),
		remoteTotal:   prometheus.NewDesc("mangavault_remote_requests_total", "Total sync-tool invocations against this remote.", []string{"group", "remote"}, nil),
		remoteSuccess: prometheus.NewDesc("mangavault_remote_requests_successful", "Successful sync-tool invocations against this remote.", []string{"group", "remote"}, nil),
		remoteFailed:  prometheus.NewDesc("mangavault_remote_requests_failed", "Failed sync-tool invocations against this remote.", []string{"group", "remote"}, nil),
		remoteHealthy: prometheus.NewDesc("mangavault_remote_healthy", "1 if this remote is currently marked healthy; quota state is reported separately.", []string{"group", "remote"}, nil),
		remoteQuota:   prometheus.NewDesc("mangavault_remote_quota_exceeded", "1 if this remote is currently quota-exceeded.", []string{"group", "remote"}, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *RouterCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.uploadedBytes
	ch <- c.quotaBytes
	ch <- c.groupFull
	ch <- c.remoteTotal
	ch <- c.remoteSuccess
	ch <- c.remoteFailed
	ch <- c.remoteHealthy
	ch <- c.remoteQuota
}

// Collect implements prometheus.Collector, reading a fresh Router snapshot
// on every scrape.
func (c *RouterCollector) Collect(ch chan<- prometheus.Metric) {
	for _, g := range c.router.GetHealth(nil) {
		group := itoa(g.Group)
		ch <- prometheus.MustNewConstMetric(c.uploadedBytes, prometheus.GaugeValue, float64(g.UploadedBytes), group)
		ch <- prometheus.MustNewConstMetric(c.quotaBytes, prometheus.GaugeValue, float64(g.QuotaBytes), group)
		ch <- prometheus.MustNewConstMetric(c.groupFull, prometheus.GaugeValue, boolToFloat(g.IsFull), group)

		for remote, snap := range g.Remotes {
			ch <- prometheus.MustNewConstMetric(c.remoteTotal, prometheus.CounterValue, float64(snap.Total), group, remote)
			ch <- prometheus.MustNewConstMetric(c.remoteSuccess, prometheus.CounterValue, float64(snap.Successful), group, remote)
			ch <- prometheus.MustNewConstMetric(c.remoteFailed, prometheus.CounterValue, float64(snap.Failed), group, remote)
			ch <- prometheus.MustNewConstMetric(c.remoteHealthy, prometheus.GaugeValue, boolToFloat(snap.Healthy), group, remote)
			ch <- prometheus.MustNewConstMetric(c.remoteQuota, prometheus.GaugeValue, boolToFloat(snap.QuotaExceeded), group, remote)
		}
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
