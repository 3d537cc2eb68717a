// Copyright 2025 Supabase, Inc.
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

package mterrors

import (
	"google.golang.org/grpc/codes"
)

// Error kinds of the safety checker and the code each one travels with.
const (
	// LookupErrorCode is used for unknown log, node or shard references and
	// for metadata that exists but cannot be read.
	LookupErrorCode = codes.NotFound
	// TimeoutCode is used when metadata resolution misses its deadline.
	TimeoutCode = codes.DeadlineExceeded
	// InvalidConfigurationCode is used for malformed replication properties,
	// weights and request parameters.
	InvalidConfigurationCode = codes.InvalidArgument
	// CancelledCode is used for work stopped by abort-on-error.
	CancelledCode = codes.Canceled
	// InternalCode marks bugs.
	InternalCode = codes.Internal
)

// NewLookupError returns a LookupError.
func NewLookupError(format string, args ...any) error {
	return Errorf(LookupErrorCode, format, args...)
}

// NewTimeout returns a Timeout error.
func NewTimeout(format string, args ...any) error {
	return Errorf(TimeoutCode, format, args...)
}

// NewInvalidConfiguration returns an InvalidConfiguration error.
func NewInvalidConfiguration(format string, args ...any) error {
	return Errorf(InvalidConfigurationCode, format, args...)
}

// NewCancelled returns a Cancelled error.
func NewCancelled(format string, args ...any) error {
	return Errorf(CancelledCode, format, args...)
}

// NewInternal returns an error flagging a bug.
func NewInternal(format string, args ...any) error {
	return Errorf(InternalCode, "[BUG] "+format, args...)
}

func IsLookupError(err error) bool {
	return err != nil && Code(err) == LookupErrorCode
}

func IsTimeout(err error) bool {
	return err != nil && Code(err) == TimeoutCode
}

func IsInvalidConfiguration(err error) bool {
	return err != nil && Code(err) == InvalidConfigurationCode
}

func IsCancelled(err error) bool {
	return err != nil && Code(err) == CancelledCode
}

// KindName returns the error-kind name used in reports and logs.
func KindName(err error) string {
	switch Code(err) {
	case codes.OK:
		return "OK"
	case LookupErrorCode:
		return "LookupError"
	case TimeoutCode:
		return "Timeout"
	case InvalidConfigurationCode:
		return "InvalidConfiguration"
	case CancelledCode:
		return "Cancelled"
	case InternalCode:
		return "Internal"
	default:
		return Code(err).String()
	}
}
