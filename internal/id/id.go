// Package id provides ID generation helpers.
package id

import "github.com/google/uuid"

// Generator creates session identifiers.
type Generator struct{}

// NewGenerator creates a new Generator.
func NewGenerator() *Generator {
	return &Generator{}
}

// NewSessionID returns a short unique session token: the first eight hex
// characters of a UUIDv4.
func (Generator) NewSessionID() string {
	return uuid.NewString()[:8]
}
