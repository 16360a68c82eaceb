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

// Package observe implements a RFC 7641 CoAP Observe notification engine
// for constrained-device servers.
//
// It tracks subscribers to RESTful resources, schedules notifications under
// memory and concurrency pressure, and safely reclaims subscribers whose
// deletion races with an in-flight message exchange. The engine itself never
// touches a socket: it is driven by a message layer (inbound GETs carrying
// an Observe option), a resource layer (NotifyObservers on state change),
// and a transaction layer (outgoing sends and completion callbacks), all of
// which are represented here as small interfaces so the engine can be
// tested without a real CoAP stack. See internal/coapadapter for a concrete
// binding to github.com/plgd-dev/go-coap/v2.
package observe
