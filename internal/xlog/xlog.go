/*
 * Copyright 2025 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package xlog is the provider's logging entry point. It wraps a single
// logrus.FieldLogger so the rest of the module never imports logrus
// directly; callers that embed this provider in a larger framework can
// swap in their own logger via SetLogger.
package xlog

import "github.com/sirupsen/logrus"

var logger logrus.FieldLogger = logrus.StandardLogger()

// SetLogger replaces the package-level logger, e.g. with one bound to the
// host framework's own logrus instance and fields.
func SetLogger(l logrus.FieldLogger) {
	if l != nil {
		logger = l
	}
}

// Warnf logs a non-fatal condition: error-queue parse mismatches, a
// declined registration.
func Warnf(format string, args ...interface{}) {
	logger.Warnf(format, args...)
}

// Errorf logs a condition the caller should treat as a bug but that does
// not prevent the descriptor from being closed.
func Errorf(format string, args ...interface{}) {
	logger.Errorf(format, args...)
}
