package common

import (
	"math/rand/v2"
)

const jobIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// JobIDLength is the length of generated job identifiers.
const JobIDLength = 10

// NewJobID generates a random lowercase alphanumeric job identifier.
// The format is shared with the legacy service; the id becomes part of
// every object key for the job and is visible to users.
func NewJobID() string {
	b := make([]byte, JobIDLength)
	for i := range b {
		b[i] = jobIDAlphabet[rand.IntN(len(jobIDAlphabet))]
	}
	return string(b)
}
