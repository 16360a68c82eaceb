// Copyright 2021 The Matrix.org Foundation C.I.C.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package observe

import "time"

// Timer is the single shared timer the scheduler uses to defer work between
// callbacks, bounding stack depth and avoiding starving other work on a
// cooperative scheduler (see spec/DESIGN.md "why a timer instead of a
// loop"). Production code uses realTimer; tests inject a fake so that
// OnTimerFire can be driven deterministically without sleeping.
type Timer interface {
	// Arm schedules fn to run after d, replacing any previously scheduled
	// fire.
	Arm(d time.Duration, fn func())
	// Stop cancels a pending fire, if any.
	Stop()
}

// realTimer wraps time.AfterFunc, the same deferred-callback primitive the
// teacher uses for its own ACK-piggyback timer in cmd/proxy/proxy.go.
type realTimer struct {
	t *time.Timer
}

// NewRealTimer returns a Timer backed by the standard library's time.AfterFunc.
func NewRealTimer() Timer {
	return &realTimer{}
}

func (r *realTimer) Arm(d time.Duration, fn func()) {
	if r.t != nil {
		r.t.Stop()
	}
	r.t = time.AfterFunc(d, fn)
}

func (r *realTimer) Stop() {
	if r.t != nil {
		r.t.Stop()
	}
}
