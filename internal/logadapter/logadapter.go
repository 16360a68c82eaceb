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

// Package logadapter adapts logrus to the observe.Logger interface.
package logadapter

import "github.com/sirupsen/logrus"

// Logrus implements observe.Logger on top of a *logrus.Logger.
type Logrus struct {
	Log *logrus.Logger
}

// New returns a Logrus logger wrapping log.
func New(log *logrus.Logger) *Logrus {
	return &Logrus{Log: log}
}

// Printf implements observe.Logger.
func (l *Logrus) Printf(format string, v ...interface{}) {
	l.Log.Infof(format, v...)
}
