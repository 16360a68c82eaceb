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

// truncateURL trims url to at most max bytes, the way the original copies
// into a fixed COAP_OBSERVE_URL_MAX buffer and silently truncates rather
// than rejecting an overlong registration.
func truncateURL(url string, max int) string {
	if max <= 0 || len(url) <= max {
		return url
	}
	return url[:max]
}

// AddSubscriber allocates and links a new Subscriber for (ep, token, url),
// or returns ErrPoolExhausted if the pool is at capacity. It first removes
// any existing subscriber observing the same (ep, url) pair, mirroring
// add_observer's call to coap_remove_observer_by_uri before allocating: this
// is what enforces invariant 3 (at most one subscriber per (endpoint, url))
// and is why re-registering and registering a second token on the same URL
// both supersede rather than duplicate the prior subscriber.
func (e *Engine) AddSubscriber(ep Endpoint, token Token, url string) (Handle, error) {
	// A URL of exactly URLMax-1 bytes is the longest that fits the
	// original's null-terminated COAP_OBSERVE_URL_MAX buffer verbatim;
	// URLMax bytes or more is truncated to URLMax-1.
	url = truncateURL(url, e.cfg.URLMax-1)

	e.mu.Lock()
	defer e.mu.Unlock()

	existing := e.reg.FindAll(func(s *Subscriber) bool {
		return endpointEqual(ep, s.Endpoint) && s.URL == url
	})
	e.removeHandlesLocked(existing)

	h, ok := e.reg.Allocate()
	if !ok {
		return Handle{}, ErrPoolExhausted
	}
	s, _ := e.reg.Get(h)
	s.Endpoint = ep
	s.Token = token
	s.URL = url
	e.reg.MoveToUnactive(h)
	return h, nil
}

// ObserveHandler processes an inbound GET request that may carry an Observe
// option, mirroring coap_observe_handler: Observe==0 (re-)registers an
// observation and Observe==1 deregisters every subscription the requesting
// endpoint holds with the given token, regardless of URL; any other value,
// or no Observe option at all, is a no-op. On a successful registration it
// returns the Observe option value (always 0, since AddSubscriber resets a
// fresh subscriber's counter) the caller should attach to its own response,
// having already advanced the subscriber's counter so the next
// engine-driven notification carries 1.
func (e *Engine) ObserveHandler(req *Request) (obsValue *uint32, err error) {
	if req.Observe == nil {
		return nil, nil
	}

	switch *req.Observe {
	case 0:
		if req.SourceEndpoint == nil {
			return nil, ErrMissingEndpoint
		}
		h, err := e.AddSubscriber(req.SourceEndpoint, req.Token, req.Path)
		if err != nil {
			return nil, err
		}
		e.mu.Lock()
		s, _ := e.reg.Get(h)
		v := s.nextObsCounter()
		e.mu.Unlock()
		return &v, nil

	case 1:
		e.RemoveByToken(req.SourceEndpoint, req.Token)
		return nil, nil

	default:
		return nil, nil
	}
}
