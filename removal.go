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

// removeHandlesLocked detaches and frees each handle in hs that is not
// currently pinned by an in-flight confirmable transaction. A pinned
// subscriber is instead marked Removed so that OnTransactionComplete frees
// it once the exchange concludes — this is the "safe to remove" rule from
// coap_remove_observer: never free a record a Transaction callback still
// holds a Handle to. Caller holds e.mu.
func (e *Engine) removeHandlesLocked(hs []Handle) int {
	removed := 0
	for _, h := range hs {
		s, ok := e.reg.Get(h)
		if !ok {
			continue
		}
		if s.InTransaction() {
			s.state |= stateRemoved
			continue
		}
		e.reg.Detach(h)
		e.reg.Free(h)
		removed++
	}
	return removed
}

// RemoveAll removes every subscriber, e.g. on a full reset. It returns the
// number of subscribers freed immediately (subscribers pinned by an
// in-flight transaction are freed later, on completion).
func (e *Engine) RemoveAll() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	hs := e.reg.FindAll(nil)
	return e.removeHandlesLocked(hs)
}

// RemoveByClient removes every subscriber belonging to ep, mirroring
// coap_remove_observer_by_client (used when a session to that peer is torn
// down).
func (e *Engine) RemoveByClient(ep Endpoint) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	hs := e.reg.FindAll(func(s *Subscriber) bool {
		return endpointEqual(ep, s.Endpoint)
	})
	return e.removeHandlesLocked(hs)
}

// RemoveByToken removes the subscriber matching (ep, token) exactly,
// mirroring coap_remove_observer_by_token. Used when the client sends an
// explicit Observe=1 deregistration with no path context, or when the
// message layer detects the token has gone stale.
func (e *Engine) RemoveByToken(ep Endpoint, token Token) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	hs := e.reg.FindAll(func(s *Subscriber) bool {
		return endpointEqual(ep, s.Endpoint) && s.Token.Equal(token)
	})
	return e.removeHandlesLocked(hs)
}

// RemoveByUri removes every subscriber observing exactly url. If ep is
// non-nil, only subscribers belonging to that endpoint are removed;
// otherwise all endpoints observing url are removed. Mirrors
// coap_remove_observer_by_uri.
func (e *Engine) RemoveByUri(ep Endpoint, url string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	hs := e.reg.FindAll(func(s *Subscriber) bool {
		return endpointEqual(ep, s.Endpoint) && s.URL == url
	})
	return e.removeHandlesLocked(hs)
}

// RemoveByMid removes the subscriber whose most recently sent notification
// carried mid, mirroring coap_remove_observer_by_mid: this is how an
// incoming RST (the client rejecting a notification outright) triggers
// deregistration.
func (e *Engine) RemoveByMid(ep Endpoint, mid uint16) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	hs := e.reg.FindAll(func(s *Subscriber) bool {
		return endpointEqual(ep, s.Endpoint) && s.LastMID == mid
	})
	return e.removeHandlesLocked(hs)
}
