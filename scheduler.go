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

import (
	"strings"
	"sync"
	"time"
)

// Engine is the observation engine: it owns a SubscriberRegistry and drives
// it against a TransactionLayer and ResourceHandler(s) on a single mutex
// rather than serializing access through a channel. All exported methods
// are safe for concurrent use.
type Engine struct {
	cfg    Config
	tx     TransactionLayer
	timer  Timer
	Log    Logger

	mu       sync.Mutex
	reg      *SubscriberRegistry
	armed    bool
	handlers map[string]ResourceHandler
}

// NewEngine constructs an Engine. tx and timer are required collaborators;
// timer is typically NewRealTimer() in production and a fake in tests.
func NewEngine(cfg Config, tx TransactionLayer, timer Timer) *Engine {
	return &Engine{
		cfg:      cfg,
		tx:       tx,
		timer:    timer,
		reg:      NewSubscriberRegistry(cfg.MaxObservers),
		handlers: make(map[string]ResourceHandler),
	}
}

// ObserveInit registers a ResourceHandler for a resource path, mirroring
// coap_observe_init's role of wiring the observable resource table before
// any requests arrive. A path holds one handler; a later call for the same
// path replaces the earlier handler.
func (e *Engine) ObserveInit(path string, h ResourceHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[path] = h
}

// Stats returns a point-in-time snapshot of the registry.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reg.Stats()
}

// effectiveURL trims a subscriber's stored URL the way coap_notify_observers_sub
// trims a trailing "/" before comparing, so that "/a/" and "/a" are treated
// as the same resource.
func effectiveURL(url string) string {
	if len(url) > 1 && strings.HasSuffix(url, "/") {
		return url[:len(url)-1]
	}
	return url
}

// urlMatches reports whether a subscriber observing subURL should be
// notified by a change at path, given resHasSub (whether the changed
// resource accepts sub-resource observers). It mirrors coap_notify_observers_sub's
// sub_ok logic: an exact match always matches; a sub-resource match
// requires a "/"-delimited boundary so "/a" does not match "/ab".
func urlMatches(path string, subURL string, resHasSub bool) bool {
	eff := effectiveURL(subURL)
	if eff == path {
		return true
	}
	if !resHasSub {
		return false
	}
	if !strings.HasPrefix(eff, path) {
		return false
	}
	rest := eff[len(path):]
	return strings.HasPrefix(rest, "/")
}

// HasObservers reports whether at least one subscriber's URL is prefixed by
// path. This intentionally reproduces coap_has_observers's loose
// byte-prefix test rather than a path-boundary-aware match: a subscriber
// on "/abc" is reported as an observer of "/a", which is what the original
// firmware does (see DESIGN.md, Open Question decisions).
func (e *Engine) HasObservers(path string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	found := false
	scan := func(h Handle) bool {
		s, ok := e.reg.Get(h)
		return ok && strings.HasPrefix(s.URL, path)
	}
	for _, h := range e.reg.FindAll(nil) {
		if scan(h) {
			found = true
			break
		}
	}
	return found
}

// NotifyObservers marks every subscriber of res (and, if res allows it, its
// sub-resources) as pending and ensures the dispatch timer is armed. It is
// the Go analogue of coap_notify_observers.
func (e *Engine) NotifyObservers(res Resource) {
	if res == nil {
		return
	}
	e.NotifyObserversSub(res, "")
}

// NotifyObserversSub marks subscribers of res whose URL matches res's path
// plus the given subpath as pending, mirroring
// coap_notify_observers_sub. An empty subpath behaves like NotifyObservers.
func (e *Engine) NotifyObserversSub(res Resource, subpath string) {
	if res == nil {
		return
	}
	path := res.URL()
	if subpath != "" {
		path = path + "/" + strings.TrimPrefix(subpath, "/")
	}
	hasSub := res.HasSubResources()

	e.mu.Lock()
	wasEmpty := e.reg.PendingLen() == 0
	for _, h := range e.reg.FindByPredicate(ListUnactive, nil) {
		s, ok := e.reg.Get(h)
		if !ok {
			continue
		}
		if urlMatches(path, s.URL, hasSub) {
			e.reg.MoveToPending(h)
		}
	}
	shouldArm := wasEmpty && e.reg.PendingLen() > 0 && !e.armed
	if shouldArm {
		e.armed = true
	}
	e.mu.Unlock()

	if shouldArm {
		e.timer.Arm(e.cfg.TickDelay, e.OnTimerFire)
	}
}

// OnTimerFire dispatches at most one pending notification, then re-arms
// itself if more remain. It is the callback handed to Timer.Arm, standing
// in for the original's direct call from the OS timer ISR.
func (e *Engine) OnTimerFire() {
	e.mu.Lock()
	e.armed = false
	h, ok := e.reg.PendingHead()
	if !ok {
		e.mu.Unlock()
		return
	}
	err := e.dispatchOneLocked(h)
	pendingLeft := e.reg.PendingLen() > 0
	e.mu.Unlock()

	switch {
	case err == ErrTransactionExhausted:
		e.logf("observe: %v, retrying in %s", err, e.cfg.NotificationRetryPeriod)
		e.rearm(e.cfg.NotificationRetryPeriod)
	case pendingLeft:
		e.rearm(e.cfg.TickDelay)
	}
}

func (e *Engine) rearm(d time.Duration) {
	e.mu.Lock()
	e.armed = true
	e.mu.Unlock()
	e.timer.Arm(d, e.OnTimerFire)
}

// OnTransactionComplete is the callback a Transaction invokes (via
// Transaction.SetCallback) when a confirmable exchange concludes, whether by
// ACK, timeout, or abort. All three outcomes are bookkept identically: the
// subscriber is freed if it was marked Removed while in flight, otherwise it
// goes back to unactive so the next NotifyObservers re-pends it. The engine
// never drops a subscriber on its own just because a confirmable exchange
// failed; a higher layer watching for repeated timeouts may remove it
// explicitly via RemoveByClient.
func (e *Engine) OnTransactionComplete(h Handle, outcome TransactionOutcome) {
	e.mu.Lock()
	s, ok := e.reg.Get(h)
	if !ok {
		e.mu.Unlock()
		return
	}
	s.state &^= stateTransaction

	if s.Removed() {
		e.reg.Free(h)
	} else {
		e.reg.MoveToUnactive(h)
	}
	pendingLeft := e.reg.PendingLen() > 0
	shouldArm := pendingLeft && !e.armed
	if shouldArm {
		e.armed = true
	}
	e.mu.Unlock()

	if shouldArm {
		e.timer.Arm(e.cfg.TickDelay, e.OnTimerFire)
	}
}
