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

// Package coapadapter binds the observe engine's collaborator interfaces
// (observe.TransactionLayer, observe.Transaction, observe.Endpoint) to a
// real github.com/plgd-dev/go-coap/v2 UDP server and its
// mux.Client/mux.ResponseWriter API.
package coapadapter

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/plgd-dev/go-coap/v2/message"
	"github.com/plgd-dev/go-coap/v2/message/codes"
	coapmux "github.com/plgd-dev/go-coap/v2/mux"

	"github.com/nimbusiot/coap-observe"
)

// Endpoint wraps a mux.Client's remote address string, the minimum needed
// to satisfy observe.Endpoint and to key the client registry.
type Endpoint string

// Equal implements observe.Endpoint.
func (e Endpoint) Equal(o observe.Endpoint) bool {
	other, ok := o.(Endpoint)
	return ok && e == other
}

// String implements observe.Endpoint.
func (e Endpoint) String() string { return string(e) }

func endpointOf(c coapmux.Client) Endpoint {
	return Endpoint(c.RemoteAddr().String())
}

// ClientRegistry remembers the most recently seen mux.Client for each
// endpoint: server-initiated notifications need a live connection to write
// to, which is only available once a client has made at least one request.
type ClientRegistry struct {
	mu      sync.Mutex
	clients map[Endpoint]coapmux.Client
}

// NewClientRegistry returns an empty ClientRegistry.
func NewClientRegistry() *ClientRegistry {
	return &ClientRegistry{clients: make(map[Endpoint]coapmux.Client)}
}

// Remember records c as the live connection for its endpoint.
func (r *ClientRegistry) Remember(c coapmux.Client) Endpoint {
	ep := endpointOf(c)
	r.mu.Lock()
	r.clients[ep] = c
	r.mu.Unlock()
	return ep
}

// Lookup returns the client for ep, if one is still known.
func (r *ClientRegistry) Lookup(ep Endpoint) (coapmux.Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[ep]
	return c, ok
}

// Forget drops ep from the registry, e.g. once its last observation is torn
// down.
func (r *ClientRegistry) Forget(ep Endpoint) {
	r.mu.Lock()
	delete(r.clients, ep)
	r.mu.Unlock()
}

// TransactionLayer implements observe.TransactionLayer against a
// ClientRegistry: MIDs are a simple process-wide counter (the real
// constraint, a MID per peer, is handled for us by the library's own
// retransmission bookkeeping).
type TransactionLayer struct {
	clients *ClientRegistry
	mid     uint32
}

// NewTransactionLayer builds a TransactionLayer over the given registry.
func NewTransactionLayer(clients *ClientRegistry) *TransactionLayer {
	return &TransactionLayer{clients: clients}
}

// NextMID implements observe.TransactionLayer.
func (t *TransactionLayer) NextMID() uint16 {
	return uint16(atomic.AddUint32(&t.mid, 1))
}

// NewTransaction implements observe.TransactionLayer. ok is false if no
// live connection is known for ep, the Go analogue of the original's
// transaction pool being exhausted: either way the caller retries later.
func (t *TransactionLayer) NewTransaction(mid uint16, ep observe.Endpoint) (observe.Transaction, bool) {
	e, ok := ep.(Endpoint)
	if !ok {
		return nil, false
	}
	client, ok := t.clients.Lookup(e)
	if !ok {
		return nil, false
	}
	return &transaction{client: client, mid: mid}, true
}

// transaction implements observe.Transaction over a single mux.Client.
type transaction struct {
	client coapmux.Client
	mid    uint16
	cb     func(observe.TransactionOutcome)
}

// SetCallback implements observe.Transaction.
func (tx *transaction) SetCallback(cb func(observe.TransactionOutcome)) {
	tx.cb = cb
}

// Send implements observe.Transaction. It builds a CoAP message from msg.
// With no callback set (a non-confirmable send) it writes it on the
// caller's goroutine; with a callback it writes it off the caller's
// goroutine, since client.WriteMessage blocks waiting for the exchange to
// conclude when the message is confirmable and the engine must not block
// holding its lock while that happens.
func (tx *transaction) Send(msg observe.OutboundMessage) error {
	m, err := buildMessage(tx.client, msg)
	if err != nil {
		return err
	}
	if tx.cb == nil {
		return tx.client.WriteMessage(m)
	}
	go func() {
		err := tx.client.WriteMessage(m)
		switch {
		case err == nil:
			tx.cb(observe.OutcomeACK)
		case err == context.DeadlineExceeded:
			tx.cb(observe.OutcomeTimeout)
		default:
			tx.cb(observe.OutcomeAbort)
		}
	}()
	return nil
}

func buildMessage(client coapmux.Client, msg observe.OutboundMessage) (*message.Message, error) {
	m := &message.Message{
		Code:    codes.Code(msg.Code),
		Token:   msg.Token.Bytes(),
		Context: client.Context(),
	}
	if msg.Payload != nil {
		m.Body = bytes.NewReader(msg.Payload)
	}

	var opts message.Options
	var buf []byte
	opts, n, err := opts.SetContentFormat(buf, message.AppOctets)
	if err == message.ErrTooSmall {
		buf = append(buf, make([]byte, n)...)
		opts, _, err = opts.SetContentFormat(buf, message.AppOctets)
	}
	if err != nil {
		return nil, fmt.Errorf("coapadapter: set content format: %w", err)
	}

	if msg.Observe != nil {
		opts, n, err = opts.SetObserve(buf, *msg.Observe)
		if err == message.ErrTooSmall {
			buf = append(buf, make([]byte, n)...)
			opts, _, err = opts.SetObserve(buf, *msg.Observe)
		}
		if err != nil {
			return nil, fmt.Errorf("coapadapter: set observe option: %w", err)
		}
	}
	if msg.Block2 != nil {
		opts, n, err = opts.SetBlock2(buf, msg.Block2.Num, blockSZX(msg.Block2.Size), msg.Block2.More)
		if err == message.ErrTooSmall {
			buf = append(buf, make([]byte, n)...)
			opts, _, err = opts.SetBlock2(buf, msg.Block2.Num, blockSZX(msg.Block2.Size), msg.Block2.More)
		}
		if err != nil {
			return nil, fmt.Errorf("coapadapter: set block2 option: %w", err)
		}
	}
	m.Options = opts
	return m, nil
}

// blockSZX maps a byte count to the largest CoAP Block SZX exponent value
// whose block size does not exceed it (RFC 7959 section 2.2), from 16 bytes
// up to 1024 bytes (SZX 6).
func blockSZX(size uint16) message.SZX {
	switch {
	case size >= 1024:
		return message.SZX1024
	case size >= 512:
		return message.SZX512
	case size >= 256:
		return message.SZX256
	case size >= 128:
		return message.SZX128
	case size >= 64:
		return message.SZX64
	case size >= 32:
		return message.SZX32
	default:
		return message.SZX16
	}
}
