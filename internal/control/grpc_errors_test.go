package control

import (
	"errors"
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/route-simulator/internal/sim/state"
	"github.com/signalsfoundry/route-simulator/model"
)

func TestToStatusError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		err     error
		code    codes.Code
		wantNil bool
	}{
		{name: "nil", err: nil, wantNil: true},
		{name: "status passthrough", err: status.Error(codes.PermissionDenied, "denied"), code: codes.PermissionDenied},
		{name: "route not found", err: fmt.Errorf("execute %q: %w", "A", state.ErrRouteNotFound), code: codes.NotFound},
		{name: "route busy", err: state.ErrRouteBusy, code: codes.Aborted},
		{name: "vehicle busy", err: fmt.Errorf("execute: %w", state.ErrVehicleBusy), code: codes.Aborted},
		{name: "no selection", err: state.ErrNoSelection, code: codes.FailedPrecondition},
		{name: "invalid argument", err: fmt.Errorf("%w: blank", ErrInvalidArgument), code: codes.InvalidArgument},
		{name: "invalid waypoint", err: model.ErrInvalidWaypoint, code: codes.InvalidArgument},
		{name: "fallback", err: errors.New("boom"), code: codes.Internal},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := ToStatusError(tc.err)
			if tc.wantNil {
				if got != nil {
					t.Fatalf("ToStatusError(nil) = %v, want nil", got)
				}
				return
			}

			if got == nil {
				t.Fatalf("ToStatusError(%v) = nil, want error", tc.err)
			}
			if code := status.Code(got); code != tc.code {
				t.Fatalf("ToStatusError(%v) code = %v, want %v", tc.err, code, tc.code)
			}
		})
	}
}

func TestFromStatusErrorRoundTrip(t *testing.T) {
	t.Parallel()

	for _, sentinel := range []error{state.ErrRouteNotFound, state.ErrBusy, state.ErrNoSelection, ErrInvalidArgument} {
		remote := FromStatusError(ToStatusError(sentinel))
		if !errors.Is(remote, sentinel) {
			t.Fatalf("FromStatusError lost sentinel %v: %v", sentinel, remote)
		}
		if _, ok := status.FromError(remote); !ok {
			t.Fatalf("FromStatusError dropped the status for %v", sentinel)
		}
	}

	internal := status.Error(codes.Internal, "boom")
	if got := FromStatusError(internal); got != internal {
		t.Fatalf("FromStatusError(Internal) = %v, want passthrough", got)
	}
	if FromStatusError(nil) != nil {
		t.Fatalf("FromStatusError(nil) != nil")
	}
	if !IsBusy(ToStatusError(state.ErrRouteBusy)) || IsBusy(errors.New("x")) {
		t.Fatalf("IsBusy misclassified errors")
	}
}
