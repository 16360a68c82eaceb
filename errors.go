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

import "errors"

// Sentinel errors for the engine's recoverable error kinds. Most of these
// never cross the engine boundary to a caller (the engine self-heals and
// only reports them to an optional Logger); they are exported so tests and
// adapters can assert on them directly.
var (
	// ErrPoolExhausted is returned by AddSubscriber when the subscriber
	// pool is at capacity.
	ErrPoolExhausted = errors.New("observe: subscriber pool exhausted")

	// ErrTransactionExhausted is logged when the transaction layer has no
	// free transaction slot; dispatch is retried after
	// Config.NotificationRetryPeriod.
	ErrTransactionExhausted = errors.New("observe: no transaction slot available")

	// ErrMissingEndpoint is returned by ObserveHandler when an inbound
	// registration carries no source endpoint; no subscriber is registered.
	ErrMissingEndpoint = errors.New("observe: register request has no source endpoint")
)
