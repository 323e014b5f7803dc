//                           _       _
// __      _____  __ ___   ___  __ _| |_ ___
// \ \ /\ / / _ \/ _` \ \ / / |/ _` | __/ _ \
//  \ V  V /  __/ (_| |\ V /| | (_| | ||  __/
//   \_/\_/ \___|\__,_| \_/ |_|\__,_|\__\___|
//
//  Copyright © 2016 - 2026 Weaviate B.V. All rights reserved.
//
//  CONTACT: hello@weaviate.io
//

// Package lockorder assigns every lock class a fixed rank. A single call
// chain must only acquire locks in non-decreasing rank order, which
// structurally rules out most lock-order deadlocks. The optional runtime
// validator (build tag "lockdebug") asserts the discipline per goroutine
// and compiles to no-ops otherwise.
package lockorder

// Level is the fixed acquisition rank of a lock class.
type Level uint8

const (
	LevelGlobal Level = iota
	LevelIndex
	LevelTable
	LevelRecord
	LevelMetadata
)

func (l Level) String() string {
	switch l {
	case LevelGlobal:
		return "global"
	case LevelIndex:
		return "index"
	case LevelTable:
		return "table"
	case LevelRecord:
		return "record"
	case LevelMetadata:
		return "metadata"
	default:
		return "unknown"
	}
}

// Distance returns the absolute rank difference between two levels. The
// deadlock detector uses it to rank dependency edges: the larger the
// distance of a back edge, the more likely it is an accidental ordering
// violation.
func Distance(a, b Level) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}
