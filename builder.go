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

// dispatchOneLocked builds and sends a single notification for the
// subscriber at h, which must currently be the pending list's head. The
// caller holds e.mu. It is the Go analogue of coap_observers_send_notification:
// invoke the resource handler, decide CON vs NON based on the refresh
// interval, attach Block2 if the representation didn't fit in one chunk,
// and either hand the message straight to the transaction layer (NON) or
// pin the subscriber to an in-flight transaction (CON).
func (e *Engine) dispatchOneLocked(h Handle) error {
	s, ok := e.reg.Get(h)
	if !ok {
		e.reg.Detach(h)
		return nil
	}

	mid := e.tx.NextMID()
	tx, ok := e.tx.NewTransaction(mid, s.Endpoint)
	if !ok {
		// No transaction slot available: leave the subscriber pending so
		// the retry re-dispatches it first, the way a failed
		// coap_new_transaction leaves the observer untouched and retries
		// on the next tick. The resource handler is not invoked for a
		// dispatch attempt that never obtains a transaction.
		return ErrTransactionExhausted
	}

	msgType := TypeNON
	if s.ObsCounter()%e.cfg.ObserveRefreshInterval == 0 {
		msgType = TypeCON
	}
	s.LastMID = mid

	handler := e.handlers[effectiveURL(s.URL)]

	req := Request{
		Type:  TypeCON,
		Code:  CodeGET,
		Path:  s.URL,
		Token: s.Token,
	}
	resp := Response{Code: CodeContent, Token: s.Token}
	payload := make([]byte, e.cfg.MaxChunkSize)

	newOffset := 0
	if handler != nil {
		var handled int
		handled, newOffset = handler.Handle(&req, &resp, payload, e.cfg.MaxChunkSize)
		if handled <= 0 {
			resp.Code = CodeBadRequest
		}
	} else {
		resp.Code = CodeBadRequest
	}

	if resp.Code < CodeBadRequest {
		obs := s.nextObsCounter()
		resp.Observe = &obs
	}

	// moreBit mirrors the original's block2 construction: new_offset == -1
	// is the sentinel the handler uses for "this was the last block", which
	// the original (and this port) treats identically to new_offset == 0 for
	// the purpose of the More bit, even though it is semantically "last
	// block" rather than "no blocks" (see DESIGN.md Open Question decisions).
	moreBit := newOffset != 0 && newOffset != -1
	if moreBit || newOffset == -1 {
		resp.Block2 = &Block2{
			Num:  0,
			More: moreBit,
			Size: e.cfg.MaxBlockSize,
		}
	}

	payloadOut := resp.Payload
	if newOffset != 0 && len(payloadOut) > int(e.cfg.MaxBlockSize) {
		// coap_set_payload(..., MIN(payload_len, COAP_MAX_BLOCK_SIZE)):
		// a Block2 response carries at most one block's worth of payload,
		// even if the handler filled more of the chunk buffer than that.
		payloadOut = payloadOut[:e.cfg.MaxBlockSize]
	}

	msg := OutboundMessage{
		Type:    msgType,
		Code:    resp.Code,
		MID:     mid,
		Token:   resp.Token,
		Observe: resp.Observe,
		Block2:  resp.Block2,
		Payload: payloadOut,
	}

	if msgType == TypeNON {
		e.reg.MoveToUnactive(h)
		return tx.Send(msg)
	}

	s.state |= stateTransaction
	e.reg.Detach(h)
	tx.SetCallback(func(outcome TransactionOutcome) {
		e.OnTransactionComplete(h, outcome)
	})
	return tx.Send(msg)
}
