// Package helper holds small, stateless utility functions shared across
// dobcore, mirroring the role of the teacher's pkg/mcast/helper package.
package helper

import (
	"github.com/google/uuid"

	"github.com/consoden/dobcore/pkg/dob/types"
)

// GenerateUID mints a fresh correlation identifier for requests and
// connections.
func GenerateUID() types.UID {
	return types.UID(uuid.New().String())
}

// MaxUint64 returns the largest value in values, or 0 for an empty slice.
func MaxUint64(values []uint64) uint64 {
	var max uint64
	for _, v := range values {
		if v > max {
			max = v
		}
	}
	return max
}
