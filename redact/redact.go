/*
Copyright (c) hostp2pd authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package redact decorates a logrus.Formatter so that the current WPS
// PIN never reaches a log line in clear text.
package redact

import (
	"strings"

	"github.com/sirupsen/logrus"
)

const placeholder = "<redacted-pin>"

// Secret is looked up once per log entry so a rotated PIN is always the
// one being redacted.
type Secret interface {
	Current() string
}

// Formatter wraps another logrus.Formatter and replaces every
// occurrence of the secret's current value in the entry's message and
// fields with a placeholder before delegating formatting.
type Formatter struct {
	Inner  logrus.Formatter
	Secret Secret
}

// New wraps inner with PIN redaction driven by secret.
func New(inner logrus.Formatter, secret Secret) *Formatter {
	return &Formatter{Inner: inner, Secret: secret}
}

// Format implements logrus.Formatter.
func (f *Formatter) Format(entry *logrus.Entry) ([]byte, error) {
	pin := f.Secret.Current()
	if pin == "" {
		return f.Inner.Format(entry)
	}

	redacted := *entry
	redacted.Message = strings.ReplaceAll(entry.Message, pin, placeholder)

	if len(entry.Data) > 0 {
		data := make(logrus.Fields, len(entry.Data))
		for k, v := range entry.Data {
			if s, ok := v.(string); ok {
				data[k] = strings.ReplaceAll(s, pin, placeholder)
				continue
			}
			data[k] = v
		}
		redacted.Data = data
	}

	return f.Inner.Format(&redacted)
}

// StaticSecret is a Secret whose value never changes, used when the PIN
// comes from config.StaticPIN.
type StaticSecret string

// Current implements Secret.
func (s StaticSecret) Current() string { return string(s) }

// FuncSecret adapts a function to Secret, for a PIN whose value can
// change from one log entry to the next.
type FuncSecret func() string

// Current implements Secret.
func (f FuncSecret) Current() string { return f() }
