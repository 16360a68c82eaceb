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

package coapadapter

import (
	"bytes"
	"strings"

	"github.com/plgd-dev/go-coap/v2/message"
	"github.com/plgd-dev/go-coap/v2/message/codes"
	coapmux "github.com/plgd-dev/go-coap/v2/mux"

	"github.com/nimbusiot/coap-observe"
)

// Logger is the logging interface Mux uses. It has the same method set as
// observe.Logger, so *logadapter.Logrus satisfies both.
type Logger interface {
	Printf(format string, v ...interface{})
}

// Mux dispatches inbound CoAP GET requests to an Engine's ObserveHandler
// and to the matching observe.ResourceHandler, the Go equivalent of
// CoAPHTTP.CoAPHTTPHandler but serving CoAP resources directly rather than
// proxying to an HTTP backend.
type Mux struct {
	Engine   *observe.Engine
	Clients  *ClientRegistry
	Handlers map[string]observe.ResourceHandler
	MaxChunk int
	Log      Logger
}

func (m *Mux) log(format string, v ...interface{}) {
	if m.Log == nil {
		return
	}
	m.Log.Printf(format, v...)
}

// ServeCOAP implements coapmux.Handler.
func (m *Mux) ServeCOAP(w coapmux.ResponseWriter, r *coapmux.Message) {
	path, err := r.Options.Path()
	if err != nil {
		m.log("coapadapter: malformed request, no Uri-Path: %s", err)
		return
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	ep := m.Clients.Remember(w.Client())
	token := observe.NewToken(r.Token)

	var obsVal *uint32
	if v, err := r.Options.Observe(); err == nil {
		obsVal = &v
	}

	obsValue, err := m.Engine.ObserveHandler(&observe.Request{
		Path:           path,
		Token:          token,
		Observe:        obsVal,
		SourceEndpoint: ep,
	})
	if err == observe.ErrPoolExhausted {
		w.SetResponse(codes.ServiceUnavailable, message.TextPlain, bytes.NewReader([]byte("TooManyObservers")))
		return
	}
	if err != nil {
		m.log("coapadapter: ObserveHandler(%s): %s", path, err)
		w.SetResponse(codes.BadRequest, message.TextPlain, nil)
		return
	}

	handler := m.Handlers[path]
	if handler == nil {
		w.SetResponse(codes.NotFound, message.TextPlain, nil)
		return
	}

	req := &observe.Request{Path: path, Token: token}
	resp := &observe.Response{Code: observe.CodeContent}
	payload := make([]byte, m.MaxChunk)
	handled, _ := handler.Handle(req, resp, payload, m.MaxChunk)
	if handled <= 0 {
		w.SetResponse(codes.BadRequest, message.TextPlain, nil)
		return
	}

	resp.Observe = obsValue

	contentFormat := message.MediaType(resp.ContentFormat)
	if resp.ContentFormat == 0 {
		contentFormat = message.AppOctets
	}

	if resp.Observe != nil {
		w.SetResponse(codes.Content, contentFormat, bytes.NewReader(resp.Payload), message.Option{
			ID:    message.Observe,
			Value: observeOptionValue(*resp.Observe),
		})
		return
	}
	w.SetResponse(codes.Content, contentFormat, bytes.NewReader(resp.Payload))
}

func observeOptionValue(v uint32) []byte {
	// Matches the variable-length uint encoding go-coap's SetObserve uses
	// internally (RFC 7252 section 3.2): the smallest big-endian
	// representation with no leading zero byte.
	switch {
	case v == 0:
		return []byte{}
	case v <= 0xFF:
		return []byte{byte(v)}
	case v <= 0xFFFF:
		return []byte{byte(v >> 8), byte(v)}
	default:
		return []byte{byte(v >> 16), byte(v >> 8), byte(v)}
	}
}
