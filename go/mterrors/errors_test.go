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
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"nil", nil, codes.OK},
		{"plain", errors.New("boom"), codes.Unknown},
		{"coded", New(codes.NotFound, "no log"), codes.NotFound},
		{"wrapped coded", fmt.Errorf("outer: %w", NewTimeout("slow")), codes.DeadlineExceeded},
		{"context canceled", context.Canceled, codes.Canceled},
		{"wrapped deadline", fmt.Errorf("x: %w", context.DeadlineExceeded), codes.DeadlineExceeded},
		{"grpc status", status.Error(codes.InvalidArgument, "bad"), codes.InvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Code(tt.err))
		})
	}
}

func TestWrapKeepsCode(t *testing.T) {
	base := NewLookupError("log %d not found", 7)
	wrapped := Wrapf(base, "resolving log %d", 7)

	assert.True(t, IsLookupError(wrapped))
	assert.True(t, errors.Is(wrapped, base))
	assert.Equal(t, "resolving log 7: log 7 not found", wrapped.Error())
	assert.Nil(t, Wrap(nil, "ignored"))
}

func TestErrorfWithWrapVerb(t *testing.T) {
	cause := io.ErrUnexpectedEOF
	err := Errorf(codes.NotFound, "decode epochs: %w", cause)

	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, codes.NotFound, Code(err))
	assert.Equal(t, "decode epochs: unexpected EOF", err.Error())
}

func TestKinds(t *testing.T) {
	assert.True(t, IsTimeout(NewTimeout("t")))
	assert.True(t, IsInvalidConfiguration(NewInvalidConfiguration("c")))
	assert.True(t, IsCancelled(NewCancelled("c")))
	assert.False(t, IsCancelled(nil))

	assert.Equal(t, "LookupError", KindName(NewLookupError("x")))
	assert.Equal(t, "Timeout", KindName(context.DeadlineExceeded))
	assert.Equal(t, "InvalidConfiguration", KindName(NewInvalidConfiguration("x")))
	assert.Equal(t, "Cancelled", KindName(context.Canceled))
	assert.True(t, strings.HasPrefix(NewInternal("oops").Error(), "[BUG]"))
}

func TestGRPCRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"lookup", NewLookupError("log %d not found", 7), codes.NotFound},
		{"timeout", NewTimeout("slow"), codes.DeadlineExceeded},
		{"plain", errors.New("boom"), codes.Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wire := ToGRPC(tt.err)
			st, ok := status.FromError(wire)
			assert.True(t, ok)
			assert.Equal(t, tt.want, st.Code())

			back := FromGRPC(wire)
			assert.Equal(t, tt.want, Code(back))
			assert.Equal(t, tt.err.Error(), back.Error())
		})
	}

	assert.NoError(t, ToGRPC(nil))
	assert.NoError(t, FromGRPC(nil))
	assert.Equal(t, io.EOF, FromGRPC(io.EOF))
	assert.Equal(t, codes.Unknown, Code(FromGRPC(errors.New("not a status"))))
}

func TestToGRPCTruncates(t *testing.T) {
	err := New(codes.Internal, strings.Repeat("x", 10*1024))
	st, _ := status.FromError(ToGRPC(err))
	assert.Less(t, len(st.Message()), 8*1024)
	assert.Contains(t, st.Message(), "truncated")
}
