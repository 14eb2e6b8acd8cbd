// Package output renders muxctl results as a text table, JSON or YAML.
package output
