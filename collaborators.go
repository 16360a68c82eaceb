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

// Code is a CoAP response code in class.detail form packed as (class<<5)|detail,
// matching RFC 7252 section 3. Only the codes the engine itself needs to
// test or set are named here; the message layer is responsible for mapping
// resource-handler codes through unchanged.
type Code uint8

// CodeClass returns the response code's class (2 = success, 4 = client
// error, 5 = server error).
func (c Code) CodeClass() int {
	return int(c >> 5)
}

const (
	// CodeGET is the request code for a GET, used only on the synthetic
	// request the builder constructs for resource handlers.
	CodeGET Code = 0x01

	// CodeContent is 2.05 Content.
	CodeContent Code = 0x45
	// CodeBadRequest is 4.00 Bad Request.
	CodeBadRequest Code = 0x80
	// CodeServiceUnavailable is 5.03 Service Unavailable.
	CodeServiceUnavailable Code = 0xA3
)

// MessageType distinguishes confirmable from non-confirmable CoAP messages.
type MessageType uint8

const (
	// TypeCON is a confirmable message: the transaction layer retransmits
	// it until it is ACKed, times out, or is aborted.
	TypeCON MessageType = iota
	// TypeNON is a non-confirmable, fire-and-forget message.
	TypeNON
)

func (t MessageType) String() string {
	if t == TypeCON {
		return "CON"
	}
	return "NON"
}

// Block2 is the CoAP Block2 option (RFC 7959) attached to oversized
// notifications.
type Block2 struct {
	Num  uint32
	More bool
	Size uint16
}

// Resource is a RESTful resource that can be the target of NotifyObservers.
// A nil Resource notifies nobody: NotifyObservers and NotifyObserversSub
// return without marking any subscriber pending.
type Resource interface {
	// URL is the resource's own URI path, e.g. "/s".
	URL() string
	// HasSubResources reports whether subscribers on child paths
	// ("URL()+"/"+anything") should also be notified.
	HasSubResources() bool
}

// Request is the synthetic (never transmitted) or inbound GET request the
// message layer and builder pass to the engine.
type Request struct {
	Type  MessageType
	Code  Code
	Path  string
	Token Token
	// Observe is nil if the inbound request carried no Observe option,
	// else points at its value (0 = register, 1 = deregister).
	Observe *uint32
	// SourceEndpoint is the peer the request came from. Required for
	// registration; may be nil for the builder's synthetic request.
	SourceEndpoint Endpoint
}

// Response is the outgoing response the resource handler fills in and the
// builder augments with Observe/Block2/token options before serialization.
type Response struct {
	Code          Code
	Payload       []byte
	ContentFormat uint16
	Observe       *uint32
	Block2        *Block2
	Token         Token
}

// ResourceHandler invokes the registered handler(s) for a resource against
// a request, writing into resp and payload. It returns the number of
// handlers that successfully produced a representation (mirroring
// coap_call_handlers's return value: <= 0 means failure) and, for
// block-wise transfer, the handler's new_offset: 0 means the whole
// representation fit, -1 means this was the last block, any other
// positive value is the offset to resume from on the next GET.
type ResourceHandler interface {
	Handle(req *Request, resp *Response, payload []byte, maxChunk int) (handled int, newOffset int)
}

// TransactionOutcome describes how a confirmable notification's exchange
// concluded.
type TransactionOutcome int

const (
	// OutcomeACK means the client acknowledged the notification.
	OutcomeACK TransactionOutcome = iota
	// OutcomeTimeout means retransmission was exhausted without an ACK.
	OutcomeTimeout
	// OutcomeAbort means the transaction layer gave up for another reason
	// (e.g. the connection was torn down).
	OutcomeAbort
)

// OutboundMessage is the fully-built CoAP message the builder hands to a
// Transaction for serialization and transmission.
type OutboundMessage struct {
	Type    MessageType
	Code    Code
	MID     uint16
	Token   Token
	Observe *uint32
	Block2  *Block2
	Payload []byte
}

// Transaction is a single outgoing message exchange obtained from the
// transaction layer.
type Transaction interface {
	// SetCallback registers the function invoked when a confirmable
	// exchange completes. It is never called for non-confirmable sends.
	SetCallback(cb func(TransactionOutcome))
	// Send serializes and enqueues msg for transmission.
	Send(msg OutboundMessage) error
}

// TransactionLayer is the collaborator that allocates MIDs and transactions
// and actually puts bytes on the wire.
type TransactionLayer interface {
	// NextMID returns a fresh, process-wide-unique message ID.
	NextMID() uint16
	// NewTransaction reserves a transaction slot for ep. ok is false if the
	// transaction pool is exhausted.
	NewTransaction(mid uint16, ep Endpoint) (tx Transaction, ok bool)
}
