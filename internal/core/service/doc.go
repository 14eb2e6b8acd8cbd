// Package service provides domain services for muxd.
//
// SessionService is the session factory: it draws identifiers from the
// registry, builds the Session identity record and registers it so it
// can later be looked up or destroyed. Storage is reached only through
// the SessionRepository interface.
package service
