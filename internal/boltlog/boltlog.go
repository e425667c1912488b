// Copyright 2024 The Bolt Authors.
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

// Package boltlog configures the structured logger shared by every
// component. It wraps logrus rather than introducing a bespoke logging
// facade, so field names and levels stay consistent across the module.
package boltlog

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	once sync.Once
	root *logrus.Logger
)

func base() *logrus.Logger {
	once.Do(func() {
		root = logrus.New()
		root.SetOutput(os.Stderr)
		root.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		root.SetLevel(logrus.InfoLevel)
	})
	return root
}

// SetLevel adjusts the root logger's verbosity.
func SetLevel(level logrus.Level) {
	base().SetLevel(level)
}

// For returns a component-scoped entry, e.g. boltlog.For("driver").
func For(component string) *logrus.Entry {
	return base().WithField("component", component)
}
