// Copyright 2014 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package testclock provides a fake clock.Clock for deterministic tests of
// deadline and timeout math.
package testclock

import (
	"sync"
	"time"

	"github.com/i2y/connecpy/internal/clock"
)

// Epoch is an arbitrary fixed instant tests can anchor on instead of
// inventing a fresh one each time.
var Epoch = time.Date(2016, time.September, 1, 0, 0, 0, 0, time.UTC)

// Clock is a clock.Clock a test can advance by hand, so deadline and
// elapsed-time assertions never depend on wall-clock sleeps.
type Clock interface {
	clock.Clock

	// Set pins the clock to t.
	Set(t time.Time)

	// Advance moves the clock forward by d and returns the new time.
	Advance(d time.Duration) time.Time
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

var _ Clock = (*fakeClock)(nil)

// New returns a Clock pinned to now.
func New(now time.Time) Clock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}
