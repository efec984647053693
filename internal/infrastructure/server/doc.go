// Package server runs the admin HTTP API with graceful shutdown.
package server
