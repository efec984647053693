// Package config provides 12-factor configuration management for the input
// method service.
//
// Configuration is loaded from environment variables with sensible defaults.
// Device-level settings (default IME, proxy IME uids, display groups) come
// from a YAML file named by SYSTEM_CONFIG.
//
// Configuration Sections:
//   - Logging: Log level and output format
//   - Admin: Admin HTTP server (health, metrics, dumps)
//   - Session: IME start/stop timeouts, restart budget, queue capacity
//   - Paths: System config, IME catalog and settings file
//   - ServiceManager: On-demand load of the service
//   - Account: Account readiness polling
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	sys, err := config.LoadSystemConfig(cfg.Paths.SystemConfig)
//
// Environment Variables:
//   - LOG_LEVEL, LOG_DEV
//   - ADMIN_HOST, ADMIN_PORT, ADMIN_ENABLED
//   - IME_START_TIMEOUT, IME_STOP_TIMEOUT, IME_RESTART_MAX, IME_RESTART_WINDOW
//   - SCENE_BOARD_ENABLED, MESSAGE_QUEUE_CAPACITY, CALL_TIMEOUT
//   - SYSTEM_CONFIG, IME_CATALOG, SETTINGS_FILE
//   - SAMGR_ADDR, SAMGR_LOAD_TIMEOUT, SAMGR_RETRY
//   - ACCOUNT_READY_RETRIES, ACCOUNT_READY_INTERVAL
package config
