package util

import (
	"encoding/json"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Duration is a time.Duration that is stored in configuration files as
// a string accepted by time.ParseDuration(), such as "1.5s" or "5m".
type Duration time.Duration

// UnmarshalJSON parses a duration from a JSON string.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return status.Errorf(codes.InvalidArgument, "Duration must be a string, while %s was provided", data)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return StatusWrapWithCode(err, codes.InvalidArgument, "Invalid duration")
	}
	*d = Duration(parsed)
	return nil
}

// MarshalJSON converts a duration to a JSON string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}
