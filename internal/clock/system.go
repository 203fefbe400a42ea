// Copyright 2014 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package clock

import "time"

// wallClock is the Clock backed by the real system clock.
type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// System is the Clock every Dispatcher and Client uses unless a caller
// overrides it (typically with a testclock.Clock in tests).
var System Clock = wallClock{}
