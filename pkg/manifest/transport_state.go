package manifest

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// TransportState is the state of a single part with respect to the
// transport. States only change through the transfer coordinator.
type TransportState int

const (
	// TransportStatePending indicates that no transfer of the part
	// is running. If the part has a locator, it was uploaded
	// previously.
	TransportStatePending TransportState = iota
	// TransportStateUploading indicates that the part is being
	// uploaded.
	TransportStateUploading
	// TransportStateUploaded indicates that the part was stored by
	// the transport and has a locator.
	TransportStateUploaded
	// TransportStateDownloading indicates that the part is being
	// downloaded.
	TransportStateDownloading
	// TransportStateVerified indicates that the part was downloaded
	// and its contents matched the checksum in the manifest.
	TransportStateVerified
	// TransportStateFailed indicates that transferring the part
	// failed permanently, or that its contents were corrupted.
	TransportStateFailed
)

var transportStateNames = [...]string{
	TransportStatePending:     "PENDING",
	TransportStateUploading:   "UPLOADING",
	TransportStateUploaded:    "UPLOADED",
	TransportStateDownloading: "DOWNLOADING",
	TransportStateVerified:    "VERIFIED",
	TransportStateFailed:      "FAILED",
}

func (s TransportState) String() string {
	if s < 0 || int(s) >= len(transportStateNames) {
		return "UNKNOWN"
	}
	return transportStateNames[s]
}

// MarshalText converts the state to its name, so that persisted
// manifests remain readable.
func (s TransportState) MarshalText() ([]byte, error) {
	if s < 0 || int(s) >= len(transportStateNames) {
		return nil, status.Errorf(codes.InvalidArgument, "Invalid transport state %d", int(s))
	}
	return []byte(transportStateNames[s]), nil
}

// UnmarshalText parses the name of a state.
func (s *TransportState) UnmarshalText(text []byte) error {
	for i, name := range transportStateNames {
		if name == string(text) {
			*s = TransportState(i)
			return nil
		}
	}
	return status.Errorf(codes.InvalidArgument, "Unknown transport state %#v", string(text))
}

// IsInFlight returns true if the state indicates that a transfer of
// the part is running.
func (s TransportState) IsInFlight() bool {
	return s == TransportStateUploading || s == TransportStateDownloading
}
