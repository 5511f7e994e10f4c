package testutil

import (
	"fmt"
	"testing"

	"github.com/buildbarn/bb-splitter/pkg/errorinfo"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// RequireEqualProto asserts that the two passed protocol buffer
// messages are equal.
//
// Messages embedded in google.protobuf.Any values aren't serialized
// deterministically, so this function falls back to doing a string
// comparison upon failure.
func RequireEqualProto(t *testing.T, want, got proto.Message) {
	t.Helper()
	if !proto.Equal(want, got) {
		wantStr := mustMarshalToString(t, want)
		gotStr := mustMarshalToString(t, got)
		if wantStr != gotStr {
			t.Fatalf("Not equal:\nWant:\n\n%s\n\nGot:\n\n%s", wantStr, gotStr)
		}
	}
}

// RequireEqualStatus asserts that two grpc Statuses are equal,
// including any details attached to them.
func RequireEqualStatus(t *testing.T, want, got error) {
	t.Helper()
	RequireEqualProto(t, status.Convert(want).Proto(), status.Convert(got).Proto())
}

// RequireReason asserts that an error has a given gRPC code and was
// classified with a given reason by package errorinfo.
func RequireReason(t *testing.T, code codes.Code, reason errorinfo.Reason, got error) {
	t.Helper()
	require.Error(t, got)
	require.Equal(t, code, status.Code(got), "Unexpected code for error: %v", got)
	require.Equal(t, reason, errorinfo.GetReason(got), "Unexpected reason for error: %v", got)
}

// RequirePartFailure asserts that an error was classified with a given
// reason and refers to the part with a given index.
func RequirePartFailure(t *testing.T, code codes.Code, reason errorinfo.Reason, index int, got error) {
	t.Helper()
	RequireReason(t, code, reason, got)
	gotIndex, ok := errorinfo.GetPartIndex(got)
	require.True(t, ok, "Error does not refer to a part: %v", got)
	require.Equal(t, index, gotIndex)
}

type eqStatusMatcher struct {
	t             *testing.T
	status        error
	statusMessage proto.Message
}

// EqStatus is a gomock matcher for gRPC status equality.
func EqStatus(t *testing.T, s error) gomock.Matcher {
	return &eqStatusMatcher{
		t:             t,
		status:        s,
		statusMessage: status.Convert(s).Proto(),
	}
}

func (s *eqStatusMatcher) Matches(got interface{}) bool {
	if gotError, ok := got.(error); ok {
		gotMessage := status.Convert(gotError).Proto()
		return proto.Equal(s.statusMessage, gotMessage) || mustMarshalToString(s.t, s.statusMessage) == mustMarshalToString(s.t, gotMessage)
	}
	return false
}

func (s *eqStatusMatcher) String() string {
	return fmt.Sprintf("is status equal to %v", s.status)
}

func mustMarshalToString(t *testing.T, proto proto.Message) string {
	s, err := protojson.MarshalOptions{
		Multiline: true,
	}.Marshal(proto)
	if err != nil {
		t.Fatal(err)
	}
	return string(s)
}
