// Package ability connects and stops IME extension abilities.
//
// LocalConnector launches abilities through per-bundle launchers and tracks
// each connection under a uuid token. Force stopping kills every IPC object
// the process registered, which fires their death notifications.
package ability
