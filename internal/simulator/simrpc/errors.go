package simrpc

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/banshee-data/objdetect/internal/simulator"
)

// sentinels survive the bridge: the server picks a status code for them and
// the client re-attaches the sentinel by matching the message.
var sentinels = []struct {
	err  error
	code codes.Code
}{
	{simulator.ErrActorNotFound, codes.NotFound},
	{simulator.ErrBlueprintNotFound, codes.NotFound},
	{simulator.ErrSpawnCollision, codes.AlreadyExists},
	{simulator.ErrNotSensor, codes.FailedPrecondition},
}

func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	for _, s := range sentinels {
		if errors.Is(err, s.err) {
			return status.Error(s.code, err.Error())
		}
	}
	return status.Error(codes.Unknown, err.Error())
}

// RemoteError is an error reported by the remote simulator.
type RemoteError struct {
	Code    codes.Code
	Message string
	wrapped error
}

func (e *RemoteError) Error() string { return e.Message }

// Unwrap returns the matching simulator sentinel or context error, if any.
func (e *RemoteError) Unwrap() error { return e.wrapped }

func fromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	remote := &RemoteError{Code: st.Code(), Message: st.Message()}
	switch st.Code() {
	case codes.Canceled:
		remote.wrapped = context.Canceled
	case codes.DeadlineExceeded:
		remote.wrapped = context.DeadlineExceeded
	default:
		for _, s := range sentinels {
			if st.Code() == s.code && strings.Contains(st.Message(), s.err.Error()) {
				remote.wrapped = s.err
				break
			}
		}
	}
	return remote
}
