// Package samgr talks to the system service manager, which starts and
// stops system abilities on demand. The input method service asks it to
// load itself at boot and waits, bounded, for the load to complete.
package samgr
