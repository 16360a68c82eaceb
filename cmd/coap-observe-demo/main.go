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

// Command coap-observe-demo runs a small CoAP server exposing an
// observable sensor resource, to exercise the observe engine end to end
// over a real UDP transport.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	flagBindAddr       string
	flagMaxObservers   int
	flagRefreshEvery   uint32
	flagNotifyInterval int
)

func main() {
	root := &cobra.Command{
		Use:   "coap-observe-demo",
		Short: "Run a demo CoAP server with an observable sensor resource",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemoServer(demoConfig{
				bindAddr:       flagBindAddr,
				maxObservers:   flagMaxObservers,
				refreshEvery:   flagRefreshEvery,
				notifyInterval: flagNotifyInterval,
			})
		},
	}
	root.Flags().StringVar(&flagBindAddr, "bind-addr", ":5683", "UDP address to listen for CoAP requests on")
	root.Flags().IntVar(&flagMaxObservers, "max-observers", 32, "Maximum number of concurrent observations")
	root.Flags().Uint32Var(&flagRefreshEvery, "refresh-every", 32, "Force a confirmable refresh notification every Nth update")
	root.Flags().IntVar(&flagNotifyInterval, "notify-interval-ms", 2000, "How often the demo sensor resource changes value, in milliseconds")

	if err := root.Execute(); err != nil {
		logrus.WithError(err).Error("coap-observe-demo exited with an error")
		os.Exit(1)
	}
}
