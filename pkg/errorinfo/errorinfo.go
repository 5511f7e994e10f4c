// Package errorinfo provides the error taxonomy that is shared by the
// slicing, reassembly and transfer layers.
//
// Errors are regular gRPC status errors. In addition to a status code,
// each error carries an ErrorInfo detail that states the kind of
// failure and, where applicable, the index of the part or the
// identifier of the manifest involved. Because util.StatusWrap()
// retains details, callers can still classify an error after context
// has been prepended to its message.
package errorinfo

import (
	"fmt"
	"strconv"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Domain is the value of ErrorInfo.Domain for all errors created by
// this package.
const Domain = "splitter.buildbarn.github.com"

// Reason of a failure, as stored in ErrorInfo.Reason.
type Reason string

const (
	// ReasonNone is returned by GetReason() for errors that do not
	// carry an ErrorInfo detail created by this package.
	ReasonNone Reason = ""
	// ReasonInvalidInput indicates that a size bound, manifest or
	// other argument was rejected before any I/O took place.
	ReasonInvalidInput Reason = "INVALID_INPUT"
	// ReasonTransportFailure indicates that the transport failed to
	// process a part, even after retrying.
	ReasonTransportFailure Reason = "TRANSPORT_FAILURE"
	// ReasonCorruptPart indicates that the contents of a part do not
	// match the length or checksum stored in the manifest.
	ReasonCorruptPart Reason = "CORRUPT_PART"
	// ReasonCorruptWhole indicates that the reassembled file does not
	// match the whole-file checksum or size stored in the manifest.
	ReasonCorruptWhole Reason = "CORRUPT_WHOLE"
	// ReasonTransferInProgress indicates that another transfer of the
	// same manifest is already running.
	ReasonTransferInProgress Reason = "TRANSFER_IN_PROGRESS"
	// ReasonSizeLimitExceeded indicates that a part is larger than
	// the transport is capable of storing.
	ReasonSizeLimitExceeded Reason = "SIZE_LIMIT_EXCEEDED"
)

const (
	metadataPartIndex  = "part_index"
	metadataManifestID = "manifest_id"
)

func newError(code codes.Code, reason Reason, metadata map[string]string, message string) error {
	s, err := status.New(code, message).WithDetails(&errdetails.ErrorInfo{
		Reason:   string(reason),
		Domain:   Domain,
		Metadata: metadata,
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to attach error details: %s", err))
	}
	return s.Err()
}

func partMetadata(index int) map[string]string {
	return map[string]string{metadataPartIndex: strconv.Itoa(index)}
}

// NewInvalidInputError creates an error for arguments that are
// rejected before any I/O is performed.
func NewInvalidInputError(format string, args ...interface{}) error {
	return newError(codes.InvalidArgument, ReasonInvalidInput, nil, fmt.Sprintf(format, args...))
}

// NewTransportFailureError converts an error returned by the transport
// for a given part into a TransportFailure. The original message is
// retained.
func NewTransportFailureError(index int, cause error) error {
	return newError(codes.Unavailable, ReasonTransportFailure, partMetadata(index), status.Convert(cause).Message())
}

// NewCorruptPartError creates an error for a part whose contents do
// not match the manifest.
func NewCorruptPartError(index int, format string, args ...interface{}) error {
	return newError(codes.DataLoss, ReasonCorruptPart, partMetadata(index), fmt.Sprintf(format, args...))
}

// NewCorruptWholeError creates an error for a reassembled file that
// does not match the manifest, even though all of its parts did.
func NewCorruptWholeError(format string, args ...interface{}) error {
	return newError(codes.DataLoss, ReasonCorruptWhole, nil, fmt.Sprintf(format, args...))
}

// NewTransferInProgressError creates an error for a transfer that was
// rejected because the same manifest is already being transferred.
func NewTransferInProgressError(manifestID string) error {
	return newError(
		codes.Aborted,
		ReasonTransferInProgress,
		map[string]string{metadataManifestID: manifestID},
		fmt.Sprintf("Another transfer of manifest %#v is in progress", manifestID))
}

// NewSizeLimitExceededError creates an error for a part that exceeds
// the maximum object size of the transport.
func NewSizeLimitExceededError(index int, sizeBytes, maximumSizeBytes int64) error {
	return newError(
		codes.ResourceExhausted,
		ReasonSizeLimitExceeded,
		partMetadata(index),
		fmt.Sprintf("Part is %d bytes in size, which exceeds the transport's limit of %d bytes", sizeBytes, maximumSizeBytes))
}

func getErrorInfo(err error) *errdetails.ErrorInfo {
	if err == nil {
		return nil
	}
	for _, detail := range status.Convert(err).Details() {
		if errorInfo, ok := detail.(*errdetails.ErrorInfo); ok && errorInfo.Domain == Domain {
			return errorInfo
		}
	}
	return nil
}

// GetReason returns the kind of failure of an error created by this
// package, or ReasonNone if the error was not created by this package.
func GetReason(err error) Reason {
	if errorInfo := getErrorInfo(err); errorInfo != nil {
		return Reason(errorInfo.Reason)
	}
	return ReasonNone
}

// GetPartIndex returns the index of the part that caused an error.
func GetPartIndex(err error) (int, bool) {
	errorInfo := getErrorInfo(err)
	if errorInfo == nil {
		return 0, false
	}
	value, ok := errorInfo.Metadata[metadataPartIndex]
	if !ok {
		return 0, false
	}
	index, parseErr := strconv.Atoi(value)
	if parseErr != nil {
		return 0, false
	}
	return index, true
}

// GetManifestID returns the identifier of the manifest that caused an
// error.
func GetManifestID(err error) (string, bool) {
	if errorInfo := getErrorInfo(err); errorInfo != nil {
		manifestID, ok := errorInfo.Metadata[metadataManifestID]
		return manifestID, ok
	}
	return "", false
}

// IsIntegrityFailure returns true if an error indicates that data was
// corrupted. Such errors must never be retried automatically.
func IsIntegrityFailure(err error) bool {
	switch GetReason(err) {
	case ReasonCorruptPart, ReasonCorruptWhole:
		return true
	}
	return false
}
