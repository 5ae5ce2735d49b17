// Package domain defines the core domain types shared by the relay.
//
// Concept-oriented files (connection.go, vitals.go, file.go, presence.go, errors.go)
// hold value types and sentinel errors only. Interfaces live on the consumer side.
package domain
