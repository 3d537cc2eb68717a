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

// Package mterrors provides errors that carry a status code through wrap
// chains. The code space is the gRPC one, so status errors from the etcd
// client keep their code.
package mterrors

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// codedError is the concrete error type produced by this package.
type codedError struct {
	code  codes.Code
	msg   string
	cause error
}

func (e *codedError) Error() string {
	if e.cause == nil {
		return e.msg
	}
	if e.msg == "" {
		return e.cause.Error()
	}
	return e.msg + ": " + e.cause.Error()
}

func (e *codedError) Unwrap() error {
	return e.cause
}

var _ error = (*codedError)(nil)

// New returns an error with the given code and message.
func New(code codes.Code, msg string) error {
	return &codedError{code: code, msg: msg}
}

// Errorf returns an error with the given code and a formatted message.
// A %w verb in format wraps its argument like fmt.Errorf does.
func Errorf(code codes.Code, format string, args ...any) error {
	inner := fmt.Errorf(format, args...)
	if errors.Unwrap(inner) == nil {
		return &codedError{code: code, msg: inner.Error()}
	}
	return &codedError{code: code, cause: inner}
}

// Wrap annotates err with msg and keeps its code. Wrap(nil, ...) is nil.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &codedError{code: Code(err), msg: msg, cause: err}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// Code returns the code carried by err. Context errors map to Canceled and
// DeadlineExceeded, gRPC status errors keep their code and anything else is
// Unknown.
func Code(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	var ce *codedError
	if errors.As(err, &ce) {
		return ce.code
	}
	switch {
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	}
	if st, ok := status.FromError(err); ok {
		return st.Code()
	}
	return codes.Unknown
}
