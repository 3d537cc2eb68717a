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

package topo

import (
	"errors"
	"fmt"
)

// ErrorCode is the error code for topo errors.
type ErrorCode int

// The following is the list of error codes.
const (
	NodeExists = ErrorCode(iota)
	NoNode
	Timeout
	Interrupted
	BadVersion
	NoUpdateNeeded
	NoImplementation
	ResourceExhausted
	BadInput
	Unavailable
)

var errorCodeNames = map[ErrorCode]string{
	NodeExists:        "NodeExists",
	NoNode:            "NoNode",
	Timeout:           "Timeout",
	Interrupted:       "Interrupted",
	BadVersion:        "BadVersion",
	NoUpdateNeeded:    "NoUpdateNeeded",
	NoImplementation:  "NoImplementation",
	ResourceExhausted: "ResourceExhausted",
	BadInput:          "BadInput",
	Unavailable:       "Unavailable",
}

func (c ErrorCode) String() string {
	if name, ok := errorCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("ErrorCode(%d)", int(c))
}

// TopoError is a topo-specific error carrying an ErrorCode.
type TopoError struct {
	Code    ErrorCode
	Message string
}

// NewError creates a TopoError for the given node path. For BadInput the
// node argument is used as the whole message.
func NewError(code ErrorCode, node string) error {
	var message string
	switch code {
	case NodeExists:
		message = "node already exists: " + node
	case NoNode:
		message = "node doesn't exist: " + node
	case Timeout:
		message = "deadline exceeded: " + node
	case Interrupted:
		message = "interrupted: " + node
	case BadVersion:
		message = "bad node version: " + node
	case NoUpdateNeeded:
		message = "no update needed: " + node
	case NoImplementation:
		message = "no such topology implementation: " + node
	case ResourceExhausted:
		message = "server resource exhausted: " + node
	case BadInput:
		message = node
	case Unavailable:
		message = "no connection to the server: " + node
	default:
		message = "unknown code: " + node
	}
	return TopoError{
		Code:    code,
		Message: message,
	}
}

// Error implements error.
func (e TopoError) Error() string {
	return fmt.Sprintf("topo error [%v]: %s", e.Code, e.Message)
}

// Is matches any *TopoError with the same code, so callers can write
// errors.Is(err, &TopoError{Code: NoNode}).
func (e TopoError) Is(target error) bool {
	if targetTopo, ok := target.(*TopoError); ok {
		return e.Code == targetTopo.Code
	}
	return false
}

// IsErrType reports whether err is a TopoError with the given code.
func IsErrType(err error, code ErrorCode) bool {
	return errors.Is(err, &TopoError{Code: code})
}

// DecodeError reports a metadata file that exists but cannot be decoded.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsDecodeError reports whether err wraps a DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}
