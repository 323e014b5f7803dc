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

//go:build lockdebug

package lockorder

import (
	"bytes"
	"fmt"
	"runtime"
	"strconv"
	"sync"
)

// held tracks the stack of levels currently held per goroutine. Only
// compiled with the lockdebug tag, the release build carries no state at
// all.
var held = struct {
	sync.Mutex
	byGoroutine map[uint64][]Level
}{byGoroutine: map[uint64][]Level{}}

// OnAcquire records that the current goroutine is about to take a lock of
// the given level and panics if a higher level is already held.
func OnAcquire(l Level) {
	gid := goroutineID()

	held.Lock()
	defer held.Unlock()

	stack := held.byGoroutine[gid]
	if n := len(stack); n > 0 && stack[n-1] > l {
		panic(fmt.Sprintf("lockorder: acquiring %s while holding %s",
			l, stack[n-1]))
	}
	held.byGoroutine[gid] = append(stack, l)
}

// OnRelease removes the most recent occurrence of the given level from the
// current goroutine's stack.
func OnRelease(l Level) {
	gid := goroutineID()

	held.Lock()
	defer held.Unlock()

	stack := held.byGoroutine[gid]
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == l {
			stack = append(stack[:i], stack[i+1:]...)
			break
		}
	}
	if len(stack) == 0 {
		delete(held.byGoroutine, gid)
	} else {
		held.byGoroutine[gid] = stack
	}
}

// Owner returns a stable identity for the current goroutine, used as the
// owner token of dependency-graph nodes.
func Owner() uint64 {
	return goroutineID()
}

func goroutineID() uint64 {
	// "goroutine 123 [running]:" is the first line of a single-goroutine
	// stack dump
	buf := make([]byte, 64)
	buf = buf[:runtime.Stack(buf, false)]
	buf = bytes.TrimPrefix(buf, []byte("goroutine "))
	if i := bytes.IndexByte(buf, ' '); i > 0 {
		buf = buf[:i]
	}
	id, _ := strconv.ParseUint(string(buf), 10, 64)
	return id
}
