package controlplane

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/yanet-platform/yatable/tables"
)

var statusCodes = map[tables.Code]codes.Code{
	tables.CodeOK:                   codes.OK,
	tables.CodeUnknown:              codes.Internal,
	tables.CodeNotFound:             codes.NotFound,
	tables.CodeAlreadyExists:        codes.AlreadyExists,
	tables.CodeEntryExists:          codes.AlreadyExists,
	tables.CodeBusy:                 codes.FailedPrecondition,
	tables.CodeInvalidOperation:     codes.FailedPrecondition,
	tables.CodeLocked:               codes.PermissionDenied,
	tables.CodeTooManyEntries:       codes.ResourceExhausted,
	tables.CodeOutOfIndices:         codes.ResourceExhausted,
	tables.CodeOutOfMemory:          codes.ResourceExhausted,
	tables.CodeBufferTooSmall:       codes.ResourceExhausted,
	tables.CodeInvalidKey:           codes.InvalidArgument,
	tables.CodeTypeMismatch:         codes.InvalidArgument,
	tables.CodeUnsupportedAlgorithm: codes.InvalidArgument,
	tables.CodeInvalidArgument:      codes.InvalidArgument,
	tables.CodeKeyNotPresent:        codes.NotFound,
	tables.CodeUnsupported:          codes.Unimplemented,
}

// toStatus converts a registry error into a gRPC status error.
//
// The table error code name is kept as the status message prefix. Dump
// size failures carry the required buffer size as a detail.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return status.FromContextError(err).Err()
	}

	code := tables.CodeOf(err)
	st := status.New(statusCodes[code], code.String()+": "+err.Error())

	var tooSmall *tables.BufferTooSmallError
	if errors.As(err, &tooSmall) {
		if detailed, err := st.WithDetails(wrapperspb.UInt64(uint64(tooSmall.Required))); err == nil {
			st = detailed
		}
	}

	return st.Err()
}

// RequiredBufferSize extracts the required dump buffer size from a status
// error returned by DumpTable.
func RequiredBufferSize(err error) (uint64, bool) {
	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.ResourceExhausted {
		return 0, false
	}

	for _, detail := range st.Details() {
		if v, ok := detail.(*wrapperspb.UInt64Value); ok {
			return v.GetValue(), true
		}
	}

	return 0, false
}
