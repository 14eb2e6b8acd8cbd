// Package config defines the muxd server configuration.
//
//   - spec.go: ServerConfig and its sections
//   - default.go: default values and the default socket location
//   - verify.go: validation
//   - summary.go: key/value view for the startup log line
//   - load.go: layered loading through internal/infra/confloader
package config
