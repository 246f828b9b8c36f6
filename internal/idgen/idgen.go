// Package idgen generates the opaque identifiers the engine hands out for
// sessions and, when a transport doesn't already have a connection id to
// reuse, players.
package idgen

import "github.com/google/uuid"

// Generator produces unique opaque identifiers. Unique across process
// lifetime is the only contract; format is not part of the interface.
type Generator interface {
	NewSessionID() string
	NewPlayerID() string
}

// UUIDGenerator generates identifiers using github.com/google/uuid.
type UUIDGenerator struct{}

// New returns a UUID-backed Generator.
func New() *UUIDGenerator {
	return &UUIDGenerator{}
}

func (g *UUIDGenerator) NewSessionID() string {
	return uuid.NewString()
}

func (g *UUIDGenerator) NewPlayerID() string {
	return uuid.NewString()
}
