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
	"fmt"

	"go.uber.org/atomic"
)

// TokenMaxLen is the maximum length of a CoAP token (RFC 7252 section 3).
const TokenMaxLen = 8

// Token is a CoAP token: a short byte string chosen by the client that
// correlates requests to responses and notifications. It is a fixed-size
// value so that a Subscriber never needs to heap-allocate its token.
type Token struct {
	bytes [TokenMaxLen]byte
	len   int
}

// NewToken copies b (truncated to TokenMaxLen bytes) into a Token.
func NewToken(b []byte) Token {
	var t Token
	n := len(b)
	if n > TokenMaxLen {
		n = TokenMaxLen
	}
	copy(t.bytes[:], b[:n])
	t.len = n
	return t
}

// Bytes returns the token's bytes. The returned slice aliases the Token's
// internal storage and must not be retained past the Token's lifetime.
func (t Token) Bytes() []byte {
	return t.bytes[:t.len]
}

// Len returns the number of bytes in the token.
func (t Token) Len() int {
	return t.len
}

// Equal reports whether two tokens have the same length and bytes.
func (t Token) Equal(o Token) bool {
	if t.len != o.len {
		return false
	}
	return t.bytes == o.bytes
}

// String renders the token the way the original firmware logs it, e.g.
// "0xABCD".
func (t Token) String() string {
	s := "0x"
	for i := 0; i < t.len; i++ {
		s += fmt.Sprintf("%02X", t.bytes[i])
	}
	return s
}

// Endpoint is an opaque (address, port, transport) tuple identifying a
// remote CoAP peer. Implementations are supplied by the message layer.
type Endpoint interface {
	// Equal reports whether two endpoints refer to the same peer.
	Equal(other Endpoint) bool
	String() string
}

// endpointEqual treats a nil Endpoint as "matches anything", used by
// RemoveByUri's optional endpoint filter.
func endpointEqual(filter, candidate Endpoint) bool {
	if filter == nil {
		return true
	}
	if candidate == nil {
		return false
	}
	return filter.Equal(candidate)
}

// observer state bits (COAP_OBSERVER_STATE_* in the original).
const (
	stateTransaction uint8 = 1 << iota
	stateRemoved
)

// membership records which of the registry's two lists (if any) currently
// holds a subscriber.
type membership uint8

const (
	membershipDetached membership = iota
	membershipUnactive
	membershipPending
)

// Subscriber is one record of an active observation relationship between a
// client endpoint and a resource URL.
type Subscriber struct {
	Endpoint Endpoint
	Token    Token
	URL      string

	// LastMID is the MID of the most recently sent notification, used to
	// correlate an incoming RST to the subscriber that sent it.
	LastMID uint16

	obsCounter atomic.Uint32
	state      uint8
}

// ObsCounter returns the current Observe option value that will be sent
// with the subscriber's next notification. It is safe to call without
// holding the engine's lock (e.g. from a logging or metrics goroutine).
func (s *Subscriber) ObsCounter() uint32 {
	return s.obsCounter.Load()
}

func (s *Subscriber) nextObsCounter() uint32 {
	v := s.obsCounter.Load()
	s.obsCounter.Store((v + 1) & 0xFFFFFF)
	return v
}

// InTransaction reports whether the subscriber currently has an in-flight
// confirmable notification.
func (s *Subscriber) InTransaction() bool {
	return s.state&stateTransaction != 0
}

// Removed reports whether the subscriber has been marked for removal but is
// still pinned in place by an in-flight transaction.
func (s *Subscriber) Removed() bool {
	return s.state&stateRemoved != 0
}
