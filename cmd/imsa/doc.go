// Command imsa runs the input method system ability.
//
// It loads the system config and the input method catalog, opens the
// settings file and starts one session for the foreground user. Input
// methods in the catalog run as builtin keyboards inside the process. The
// admin API serves health, metrics and per-user dumps.
//
// Configuration comes from the environment (see internal/infrastructure/config)
// with a few flags on top:
//
//	imsa -dev -user 100 -catalog ./catalog.yaml -settings ./settings.toml
//
// SIGINT and SIGTERM stop the service gracefully.
package main
