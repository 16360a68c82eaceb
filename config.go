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
	"io"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var configJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// Defaults for Config, chosen to match the constants an embedded CoAP
// observe engine would compile in. MAX_OBSERVERS and URL_MAX in particular
// are compile-time constants on the original firmware; here they are
// runtime-configurable.
const (
	DefaultMaxObservers             = 32
	DefaultURLMax                   = 64
	DefaultObserveRefreshInterval   = 32
	DefaultNotificationRetryPeriodMS = 5000
	DefaultMaxBlockSize             = 64
	DefaultMaxChunkSize             = 256
	DefaultTickDelay                = 10 * time.Millisecond
)

// Config holds the engine's compile-time-selectable constants.
type Config struct {
	// MaxObservers bounds the subscriber pool's capacity.
	MaxObservers int
	// URLMax bounds a subscriber's URL length; URLs at or beyond this
	// length are truncated, keeping one byte free the way the original's
	// null-terminated buffer does.
	URLMax int
	// ObserveRefreshInterval forces a confirmable notification every Nth
	// one, as a periodic reachability probe.
	ObserveRefreshInterval uint32
	// NotificationRetryPeriod is how long to wait before retrying
	// dispatch after the transaction layer's pool was exhausted.
	NotificationRetryPeriod time.Duration
	// MaxBlockSize is the block size advertised in the Block2 option and
	// the cap on payload bytes of a notification that carries Block2.
	MaxBlockSize uint16
	// MaxChunkSize is the size of the scratch buffer handed to resource
	// handlers.
	MaxChunkSize int
	// TickDelay is the short delay used to cede the stack before
	// dispatching (and between drains of remaining pendings).
	TickDelay time.Duration
}

// DefaultConfig returns a Config populated with the defaults above.
func DefaultConfig() Config {
	return Config{
		MaxObservers:            DefaultMaxObservers,
		URLMax:                  DefaultURLMax,
		ObserveRefreshInterval:  DefaultObserveRefreshInterval,
		NotificationRetryPeriod: DefaultNotificationRetryPeriodMS * time.Millisecond,
		MaxBlockSize:            DefaultMaxBlockSize,
		MaxChunkSize:            DefaultMaxChunkSize,
		TickDelay:               DefaultTickDelay,
	}
}

// configWire is the JSON document shape accepted by LoadConfig. Any field
// left zero/absent falls back to the matching DefaultConfig() value.
type configWire struct {
	MaxObservers              int    `json:"max_observers"`
	URLMax                    int    `json:"url_max"`
	ObserveRefreshInterval    uint32 `json:"observe_refresh_interval"`
	NotificationRetryPeriodMS int64  `json:"notification_retry_period_ms"`
	MaxBlockSize              uint16 `json:"max_block_size"`
	MaxChunkSize              int    `json:"max_chunk_size"`
	TickDelayMS               int64  `json:"tick_delay_ms"`
}

// LoadConfig decodes a JSON configuration document from r.
func LoadConfig(r io.Reader) (Config, error) {
	var wire configWire
	if err := configJSON.NewDecoder(r).Decode(&wire); err != nil {
		return Config{}, fmt.Errorf("observe: decoding config: %w", err)
	}

	cfg := DefaultConfig()
	if wire.MaxObservers != 0 {
		cfg.MaxObservers = wire.MaxObservers
	}
	if wire.URLMax != 0 {
		cfg.URLMax = wire.URLMax
	}
	if wire.ObserveRefreshInterval != 0 {
		cfg.ObserveRefreshInterval = wire.ObserveRefreshInterval
	}
	if wire.NotificationRetryPeriodMS != 0 {
		cfg.NotificationRetryPeriod = time.Duration(wire.NotificationRetryPeriodMS) * time.Millisecond
	}
	if wire.MaxBlockSize != 0 {
		cfg.MaxBlockSize = wire.MaxBlockSize
	}
	if wire.MaxChunkSize != 0 {
		cfg.MaxChunkSize = wire.MaxChunkSize
	}
	if wire.TickDelayMS != 0 {
		cfg.TickDelay = time.Duration(wire.TickDelayMS) * time.Millisecond
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.MaxObservers <= 0 {
		return fmt.Errorf("observe: max_observers must be positive")
	}
	if c.URLMax < 2 {
		return fmt.Errorf("observe: url_max must be at least 2")
	}
	if c.ObserveRefreshInterval == 0 {
		return fmt.Errorf("observe: observe_refresh_interval must be positive")
	}
	if c.MaxChunkSize <= 0 {
		return fmt.Errorf("observe: max_chunk_size must be positive")
	}
	return nil
}
