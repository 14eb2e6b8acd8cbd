// Package memory provides the in-memory session registry for muxd.
//
// Sessions live in a sharded concurrent map keyed by id; ids come from
// an atomic counter, so they strictly increase for the life of the
// process and are never reused.
package memory
