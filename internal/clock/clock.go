// Copyright 2014 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package clock provides an injectable source of wall-clock time, so the
// deadline arithmetic in RequestContext, Dispatcher and Client can be
// driven by a fake clock in tests instead of sleeping in real time.
package clock

import "time"

// Clock is an interface to system time.
//
// System is the default implementation, backed directly by the "time"
// package. Tests that need deterministic deadlines inject an
// internal/clock/testclock.Clock instead.
type Clock interface {
	// Now returns the current time (see time.Now).
	Now() time.Time
}
