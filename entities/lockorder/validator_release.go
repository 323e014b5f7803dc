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

//go:build !lockdebug

package lockorder

// The release build compiles all validation hooks to no-ops, so they cost
// nothing on the hot path.

func OnAcquire(Level) {}

func OnRelease(Level) {}

// Owner returns 0 in release builds, callers fall back to their own owner
// tokens.
func Owner() uint64 { return 0 }
