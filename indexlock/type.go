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

package indexlock

// Type enumerates the shared index structures protected by one IndexLock
// each. The enumeration is fixed, index locks live for the manager's whole
// lifetime.
type Type int

const (
	TypeHNSWGraph Type = iota
	TypeLSHTables
	TypeVectorMetadata
	TypeTombstones

	// NumTypes is the size of the fixed lock array
	NumTypes
)

func (t Type) String() string {
	switch t {
	case TypeHNSWGraph:
		return "hnsw_graph"
	case TypeLSHTables:
		return "lsh_tables"
	case TypeVectorMetadata:
		return "vector_metadata"
	case TypeTombstones:
		return "tombstones"
	default:
		return "unknown"
	}
}

func (t Type) Valid() bool {
	return t >= TypeHNSWGraph && t < NumTypes
}
