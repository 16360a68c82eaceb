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

package main

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/nimbusiot/coap-observe"
	"github.com/nimbusiot/coap-observe/internal/cbor"
)

// sensorCBORKeys maps the sensor's JSON field names to single-byte CBOR
// keys, the way a constrained client and this server would agree on a key
// table ahead of time instead of spending payload bytes on field names.
var sensorCBORKeys = map[string]int{
	"celsius": 0,
}

// sensorResource is a toy observable resource (e.g. a temperature sensor)
// whose representation is a small JSON document. It reports sub-resources,
// so observers of child paths such as /s/raw are notified on every change;
// no handler serves any child path, so those notifications carry no
// representation.
type sensorResource struct {
	mu    sync.Mutex
	value float64
}

func (r *sensorResource) URL() string            { return "/s" }
func (r *sensorResource) HasSubResources() bool { return true }

// tick advances the sensor's reading, the way a real driver would on each
// sample interval, and returns the new JSON representation.
func (r *sensorResource) tick() []byte {
	r.mu.Lock()
	r.value += (rand.Float64() - 0.5) * 2
	body := []byte(fmt.Sprintf(`{"celsius":%.2f}`, r.value))
	r.mu.Unlock()
	return body
}

func (r *sensorResource) snapshot() []byte {
	r.mu.Lock()
	body := []byte(fmt.Sprintf(`{"celsius":%.2f}`, r.value))
	r.mu.Unlock()
	return body
}

// sensorHandler implements observe.ResourceHandler for sensorResource: a
// GET always fits in a single chunk, so it never sets Block2 (newOffset is
// always 0). The wire representation is CBOR, not JSON, since this
// resource exists to be observed by bandwidth-constrained clients.
type sensorHandler struct {
	res   *sensorResource
	codec *cbor.Codec
}

func newSensorHandler(res *sensorResource) (*sensorHandler, error) {
	codec, err := cbor.NewCodec(sensorCBORKeys)
	if err != nil {
		return nil, err
	}
	return &sensorHandler{res: res, codec: codec}, nil
}

func (h *sensorHandler) Handle(req *observe.Request, resp *observe.Response, payload []byte, maxChunk int) (handled int, newOffset int) {
	body, err := h.codec.ToCBOR(h.res.snapshot())
	if err != nil {
		return 0, 0
	}
	n := copy(payload, body)
	resp.Payload = payload[:n]
	resp.ContentFormat = contentFormatCBOR
	return 1, 0
}

// contentFormatCBOR is application/cbor's CoAP Content-Format ID (RFC 7049
// registration, CoAP Content-Formats registry).
const contentFormatCBOR = 60

// celsiusOf extracts the reading from a representation with gjson, without
// a full struct decode.
func celsiusOf(body []byte) float64 {
	return gjson.GetBytes(body, "celsius").Float()
}
