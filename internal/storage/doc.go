// Package storage opens the session registry.
//
// Two backends implement service.SessionRepository:
//
//   - memory: sharded map in process memory, lost on exit (default)
//   - badger: embedded Badger v3 database, survives restarts
//
// Open selects the backend from Config.
package storage
