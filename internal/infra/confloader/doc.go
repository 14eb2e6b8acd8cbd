// Package confloader loads layered configuration with koanf.
//
// Sources are merged in this order, later winning:
//
//  1. the YAML config file
//  2. MUXD_* environment variables
//  3. explicit overrides (command-line flags)
//
// Defaults come from the target struct itself: Load only overwrites the
// fields a source sets. Watcher reports edits to the config file so the
// caller can reload.
package confloader
