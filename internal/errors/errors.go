// Package errors provides structured application errors with gRPC status mapping.
// Collaborator adapters return AppErrors; the correlator maps their codes to scoring outcomes.
package errors

import (
	stderrors "errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Code classifies an AppError.
type Code int

const (
	CodeUnknown Code = iota
	CodeInternal
	CodeInvalidArgument
	CodeNotFound
	CodeUnavailable
	CodeTimeout
	CodeCancelled
	CodeMalformedResponse
	CodeRateLimited
	CodeStorage
	CodeConfigInvalid
)

var codeNames = map[Code]string{
	CodeUnknown:           "UNKNOWN",
	CodeInternal:          "INTERNAL",
	CodeInvalidArgument:   "INVALID_ARGUMENT",
	CodeNotFound:          "NOT_FOUND",
	CodeUnavailable:       "UNAVAILABLE",
	CodeTimeout:           "TIMEOUT",
	CodeCancelled:         "CANCELLED",
	CodeMalformedResponse: "MALFORMED_RESPONSE",
	CodeRateLimited:       "RATE_LIMITED",
	CodeStorage:           "STORAGE",
	CodeConfigInvalid:     "CONFIG_INVALID",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return codeNames[CodeUnknown]
}

func parseCode(s string) Code {
	for c, name := range codeNames {
		if name == s {
			return c
		}
	}
	return CodeUnknown
}

// grpcCodeMap maps Code to gRPC status codes.
var grpcCodeMap = map[Code]codes.Code{
	CodeUnknown:           codes.Unknown,
	CodeInternal:          codes.Internal,
	CodeInvalidArgument:   codes.InvalidArgument,
	CodeNotFound:          codes.NotFound,
	CodeUnavailable:       codes.Unavailable,
	CodeTimeout:           codes.DeadlineExceeded,
	CodeCancelled:         codes.Canceled,
	CodeMalformedResponse: codes.DataLoss,
	CodeRateLimited:       codes.ResourceExhausted,
	CodeStorage:           codes.Internal,
	CodeConfigInvalid:     codes.InvalidArgument,
}

// AppError is the base error type with structured error code and metadata.
type AppError struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	s := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if len(e.Metadata) > 0 {
		s += fmt.Sprintf(" %v", e.Metadata)
	}
	if e.Cause != nil {
		s += fmt.Sprintf(" caused by: %v", e.Cause)
	}
	return s
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *AppError) Unwrap() error { return e.Cause }

// GRPCCode returns the corresponding gRPC status code.
func (e *AppError) GRPCCode() codes.Code {
	if c, ok := grpcCodeMap[e.Code]; ok {
		return c
	}
	return codes.Unknown
}

// Detail encodes the error as a struct message for status details.
func (e *AppError) Detail() *structpb.Struct {
	fields := map[string]any{
		"code":    e.Code.String(),
		"message": e.Message,
	}
	if len(e.Metadata) > 0 {
		md := make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			md[k] = v
		}
		fields["metadata"] = md
	}
	s, _ := structpb.NewStruct(fields)
	return s
}

// GRPCStatus returns a gRPC status with the error detail attached.
func (e *AppError) GRPCStatus() *status.Status {
	st := status.New(e.GRPCCode(), e.Error())
	detail, err := anypb.New(e.Detail())
	if err != nil {
		return st
	}
	if withDetail, err := st.WithDetails(detail); err == nil {
		st = withDetail
	}
	return st
}

// New creates a new AppError with the given code and message.
func New(code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

// Newf creates a new AppError with formatted message.
func Newf(code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with an AppError.
func Wrap(err error, code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg, Cause: err}
}

// Wrapf wraps an existing error with formatted message.
func Wrapf(err error, code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// WithMetadata adds metadata to an AppError.
func (e *AppError) WithMetadata(key, value string) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// FromGRPCError extracts AppError from a gRPC error if present.
func FromGRPCError(err error) *AppError {
	st, ok := status.FromError(err)
	if !ok {
		return &AppError{Code: CodeUnknown, Message: err.Error(), Cause: err}
	}

	for _, detail := range st.Details() {
		s, ok := detail.(*structpb.Struct)
		if !ok {
			continue
		}
		fields := s.GetFields()
		if fields["code"] == nil {
			continue
		}
		appErr := &AppError{
			Code:    parseCode(fields["code"].GetStringValue()),
			Message: fields["message"].GetStringValue(),
		}
		if md := fields["metadata"].GetStructValue(); md != nil {
			appErr.Metadata = make(map[string]string, len(md.GetFields()))
			for k, v := range md.GetFields() {
				appErr.Metadata[k] = v.GetStringValue()
			}
		}
		return appErr
	}

	return &AppError{Code: grpcToCode(st.Code()), Message: st.Message(), Cause: err}
}

// grpcToCode maps gRPC codes back to our error codes (best effort).
func grpcToCode(c codes.Code) Code {
	switch c {
	case codes.InvalidArgument:
		return CodeInvalidArgument
	case codes.NotFound:
		return CodeNotFound
	case codes.Unavailable:
		return CodeUnavailable
	case codes.DeadlineExceeded:
		return CodeTimeout
	case codes.Canceled:
		return CodeCancelled
	case codes.Internal:
		return CodeInternal
	case codes.DataLoss:
		return CodeMalformedResponse
	case codes.ResourceExhausted:
		return CodeRateLimited
	default:
		return CodeUnknown
	}
}

// CodeOf returns the code of the first AppError in err's chain.
func CodeOf(err error) Code {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code Code) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr) && appErr.Code == code
}

// IsRetryable returns true if the error is potentially retryable.
func IsRetryable(err error) bool {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return false
	}
	switch appErr.Code {
	case CodeUnavailable, CodeTimeout, CodeRateLimited:
		return true
	default:
		return false
	}
}
