/*
Package monitoring provides performance monitoring and metrics collection.

# Overview

This package implements Prometheus-based metrics for the input method
service: the message pump, IME lifecycle, client bookkeeping, outbound IPC
and the admin HTTP API.

# Features

- Message pump metrics (pushed, processed, dropped, queue depth)
- IME lifecycle metrics (starts, deaths, restarts)
- Client metrics (deaths, registered clients per user)
- Outbound IPC metrics (calls, latency, calls skipped for frozen IMEs)
- Admin HTTP request metrics
- Uptime

# Usage

	// Create metrics collector on a registry
	metrics := monitoring.NewMetrics(prometheus.DefaultRegisterer)

	// Add middleware to Gin router
	router.Use(monitoring.Middleware(metrics))

	// Time an outbound call
	timer := monitoring.NewTimer(metrics, "ShowKeyboard")
	err := core.ShowKeyboard()
	timer.Stop(err)

# Metrics Endpoint

Expose metrics via the standard Prometheus endpoint:

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
*/
package monitoring
