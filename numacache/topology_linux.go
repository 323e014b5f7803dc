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

//go:build linux

package numacache

import (
	"golang.org/x/sys/unix"
)

// currentDomain asks the kernel which NUMA node the calling thread runs
// on. Goroutines migrate between threads, so this is a locality hint, not
// an identity, which is all the cache needs.
func currentDomain() int {
	_, node, err := unix.Getcpu()
	if err != nil || node < 0 {
		return 0
	}
	return node
}
