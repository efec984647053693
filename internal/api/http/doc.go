// Package http serves the read-only admin API of the input method
// service: health, Prometheus metrics and per-user session dumps.
//
// Example Usage:
//
//	handlers := http.NewHandlers(svc, catalog, connector, metrics, logger)
//	router := http.NewRouter(handlers, metrics, http.RouterConfig{
//		CORSOrigins: cfg.Admin.CORSOrigins,
//		RateLimit:   cfg.Admin.RateLimit,
//	})
//	srv := server.New(net.JoinHostPort(cfg.Admin.Host, cfg.Admin.Port), router, logger)
package http
