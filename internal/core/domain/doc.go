// Package domain defines the core domain models for muxd.
//
// Domain models are pure value objects without any IO dependencies
// or framework coupling. This package contains:
//
//   - Session: the identity record handed to a client on CreateSession
//   - Errors: coded domain errors shared by the registry, the service
//     layer and the wire protocol
package domain
