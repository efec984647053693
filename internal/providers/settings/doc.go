// Package settings is the user settings database the service reads the
// configured IME from.
//
// FileStore keeps a TOML file on disk and follows edits made by other
// processes with fsnotify. MemoryStore serves tests. ImeSettings layers the
// IME keys on top of either, encoding values as JSON.
package settings
