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
	"fmt"
	"io"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// grpcErrorLimit keeps messages under the 8 KiB header size clients may
// enforce, with some headroom.
const grpcErrorLimit = 8*1024 - 512

func truncateError(err error) string {
	msg := err.Error()
	if len(msg) <= grpcErrorLimit {
		return msg
	}
	return fmt.Sprintf("%v [...] [remainder of the error is truncated because gRPC has a size limit on errors.]", msg[:grpcErrorLimit])
}

// ToGRPC returns err as a gRPC status error carrying its code.
func ToGRPC(err error) error {
	if err == nil {
		return nil
	}
	return status.Error(Code(err), truncateError(err))
}

// FromGRPC returns a gRPC status error as an mterrors error with the same
// code. io.EOF is passed through unchanged since stream readers compare
// against it.
func FromGRPC(err error) error {
	if err == nil {
		return nil
	}
	if err == io.EOF {
		return err
	}
	st, ok := status.FromError(err)
	if !ok {
		return New(codes.Unknown, err.Error())
	}
	return New(st.Code(), st.Message())
}
