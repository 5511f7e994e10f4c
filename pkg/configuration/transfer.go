package configuration

import (
	"time"

	"github.com/buildbarn/bb-splitter/pkg/transfer"
	"github.com/buildbarn/bb-splitter/pkg/util"
)

// DefaultConcurrency is the number of parts that are transferred in
// parallel if none is configured explicitly.
const DefaultConcurrency = 4

// TransferConfiguration contains the options of the transfer
// coordinator.
type TransferConfiguration struct {
	// Maximum number of parts that are transferred in parallel.
	Concurrency int                 `json:"concurrency"`
	Retry       *RetryConfiguration `json:"retry"`
}

// RetryConfiguration describes how failed transfers of individual
// parts are retried. Fields that are left unset take the values of
// transfer.DefaultRetryPolicy.
type RetryConfiguration struct {
	MaximumAttempts int           `json:"maximumAttempts"`
	InitialBackoff  util.Duration `json:"initialBackoff"`
	MaximumBackoff  util.Duration `json:"maximumBackoff"`
	Multiplier      float64       `json:"multiplier"`
	// Pointer, as a jitter of zero is meaningful.
	Jitter *float64 `json:"jitter"`
}

// NewRetryPolicyFromConfiguration creates a retry policy based on
// options specified in a configuration message.
func NewRetryPolicyFromConfiguration(configuration *RetryConfiguration) (transfer.RetryPolicy, error) {
	retryPolicy := transfer.DefaultRetryPolicy
	if configuration != nil {
		if configuration.MaximumAttempts != 0 {
			retryPolicy.MaximumAttempts = configuration.MaximumAttempts
		}
		if configuration.InitialBackoff != 0 {
			retryPolicy.InitialBackoff = time.Duration(configuration.InitialBackoff)
		}
		if configuration.MaximumBackoff != 0 {
			retryPolicy.MaximumBackoff = time.Duration(configuration.MaximumBackoff)
		}
		if configuration.Multiplier != 0 {
			retryPolicy.Multiplier = configuration.Multiplier
		}
		if configuration.Jitter != nil {
			retryPolicy.Jitter = *configuration.Jitter
		}
	}
	if err := retryPolicy.Validate(); err != nil {
		return transfer.RetryPolicy{}, util.StatusWrap(err, "Invalid retry policy")
	}
	return retryPolicy, nil
}
