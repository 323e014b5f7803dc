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

// Package cyclemanager runs a single background callback on a ticker and
// provides a context-aware stop. Both the deadlock sweeper and the record
// lock reclaimer are driven by an instance each.
package cyclemanager

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/sirupsen/logrus"
)

// CycleFunc is executed once per tick. The return value indicates whether
// actual work was done in the cycle, allowing backoff tickers to slow down
// on idle.
type CycleFunc func() bool

type CycleManager struct {
	sync.Mutex

	id        string
	logger    logrus.FieldLogger
	ticker    CycleTicker
	cycleFunc CycleFunc

	running    bool
	stopSignal chan struct{}
	stopped    chan struct{}
}

func New(id string, ticker CycleTicker, cycleFunc CycleFunc,
	logger logrus.FieldLogger,
) *CycleManager {
	return &CycleManager{
		id:        id,
		logger:    logger.WithField("cycle", id),
		ticker:    ticker,
		cycleFunc: cycleFunc,
	}
}

// Start launches the background loop, does not block. Does nothing if the
// instance is already started.
func (c *CycleManager) Start() {
	c.Lock()
	defer c.Unlock()

	if c.running {
		return
	}

	c.stopSignal = make(chan struct{})
	c.stopped = make(chan struct{})
	c.running = true

	go c.run(c.stopSignal, c.stopped)
}

func (c *CycleManager) run(stopSignal, stopped chan struct{}) {
	defer close(stopped)

	c.ticker.Start()
	defer c.ticker.Stop()

	for {
		select {
		case <-stopSignal:
			return
		case <-c.ticker.C():
			// stop has priority in case both channels were ready
			select {
			case <-stopSignal:
				return
			default:
			}
			c.ticker.CycleExecuted(c.executeCycle())
		}
	}
}

func (c *CycleManager) executeCycle() (executed bool) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.WithField("panic", r).
				Errorf("recovered from panic in cycle:\n%s", debug.Stack())
		}
	}()

	return c.cycleFunc()
}

// StopAndWait requests a stop and waits for the loop to exit or the context
// to expire, whichever comes first.
func (c *CycleManager) StopAndWait(ctx context.Context) error {
	c.Lock()
	if !c.running {
		c.Unlock()
		return nil
	}
	c.running = false
	close(c.stopSignal)
	stopped := c.stopped
	c.Unlock()

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *CycleManager) Running() bool {
	c.Lock()
	defer c.Unlock()

	return c.running
}
