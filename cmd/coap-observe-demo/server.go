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
	"time"

	"github.com/plgd-dev/go-coap/v2/udp"
	"github.com/sirupsen/logrus"

	"github.com/nimbusiot/coap-observe"
	"github.com/nimbusiot/coap-observe/internal/coapadapter"
	"github.com/nimbusiot/coap-observe/internal/logadapter"
)

type demoConfig struct {
	bindAddr       string
	maxObservers   int
	refreshEvery   uint32
	notifyInterval int
}

func runDemoServer(cfg demoConfig) error {
	log := logrus.New()
	observeLog := logadapter.New(log)

	ecfg := observe.DefaultConfig()
	ecfg.MaxObservers = cfg.maxObservers
	ecfg.ObserveRefreshInterval = cfg.refreshEvery

	clients := coapadapter.NewClientRegistry()
	tl := coapadapter.NewTransactionLayer(clients)
	engine := observe.NewEngine(ecfg, tl, observe.NewRealTimer())
	engine.Log = observeLog

	sensor := &sensorResource{}
	handler, err := newSensorHandler(sensor)
	if err != nil {
		return err
	}
	engine.ObserveInit(sensor.URL(), handler)

	mux := &coapadapter.Mux{
		Engine:   engine,
		Clients:  clients,
		Handlers: map[string]observe.ResourceHandler{sensor.URL(): handler},
		MaxChunk: ecfg.MaxChunkSize,
		Log:      observeLog,
	}

	go notifyLoop(engine, sensor, cfg.notifyInterval, log)

	log.Infof("coap-observe-demo listening on %s", cfg.bindAddr)
	return udp.ListenAndServe("udp", cfg.bindAddr, mux)
}

// notifyLoop periodically advances the sensor reading and tells the engine
// to notify its observers, standing in for whatever hardware interrupt or
// polling loop would drive NotifyObservers in a real embedded deployment.
func notifyLoop(engine *observe.Engine, sensor *sensorResource, intervalMS int, log *logrus.Logger) {
	if intervalMS <= 0 {
		intervalMS = 2000
	}
	ticker := time.NewTicker(time.Duration(intervalMS) * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		body := sensor.tick()
		log.Debugf("sensor reading now %.2fC", celsiusOf(body))
		engine.NotifyObservers(sensor)
	}
}
