package control

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/route-simulator/internal/sim/state"
	"github.com/signalsfoundry/route-simulator/model"
)

// ToStatusError maps simulator errors onto gRPC status codes.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, state.ErrRouteNotFound):
		return status.Error(codes.NotFound, err.Error())

	// Both the vehicle and the route lock report Busy; the caller may retry.
	case errors.Is(err, state.ErrBusy):
		return status.Error(codes.Aborted, err.Error())

	case errors.Is(err, state.ErrNoSelection):
		return status.Error(codes.FailedPrecondition, err.Error())

	case errors.Is(err, ErrInvalidArgument),
		errors.Is(err, model.ErrInvalidWaypoint):
		return status.Error(codes.InvalidArgument, err.Error())

	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// FromStatusError is the client-side inverse of ToStatusError: it maps a
// status code back to the matching sentinel so callers can use errors.Is.
func FromStatusError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	var sentinel error
	switch st.Code() {
	case codes.NotFound:
		sentinel = state.ErrRouteNotFound
	case codes.Aborted:
		sentinel = state.ErrBusy
	case codes.FailedPrecondition:
		sentinel = state.ErrNoSelection
	case codes.InvalidArgument:
		sentinel = ErrInvalidArgument
	default:
		return err
	}
	return &remoteError{sentinel: sentinel, status: err}
}

type remoteError struct {
	sentinel error
	status   error
}

func (e *remoteError) Error() string { return e.status.Error() }

func (e *remoteError) Unwrap() []error { return []error{e.sentinel, e.status} }
