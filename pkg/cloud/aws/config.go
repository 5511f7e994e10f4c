package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/buildbarn/bb-splitter/pkg/util"

	"google.golang.org/grpc/codes"
)

// StaticCredentials contains a fixed access key that is used instead
// of the credentials provided by the environment.
type StaticCredentials struct {
	AccessKeyID     string `json:"accessKeyId"`
	SecretAccessKey string `json:"secretAccessKey"`
}

// SessionConfiguration contains the options that are used to connect
// to AWS services.
type SessionConfiguration struct {
	// Region to use. When left empty, the region is obtained from
	// the environment.
	Region            string             `json:"region"`
	StaticCredentials *StaticCredentials `json:"staticCredentials"`
}

// NewConfigFromConfiguration creates a new AWS SDK config object based
// on options specified in a session configuration message. The
// resulting config object can be used to construct an S3 client.
func NewConfigFromConfiguration(ctx context.Context, configuration *SessionConfiguration) (aws.Config, error) {
	var loadOptions []func(*config.LoadOptions) error
	if configuration != nil {
		if region := configuration.Region; region != "" {
			loadOptions = append(loadOptions, config.WithRegion(region))
		}
		if staticCredentials := configuration.StaticCredentials; staticCredentials != nil {
			loadOptions = append(loadOptions,
				config.WithCredentialsProvider(
					credentials.NewStaticCredentialsProvider(
						staticCredentials.AccessKeyID,
						staticCredentials.SecretAccessKey,
						"")))
		}
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return aws.Config{}, util.StatusWrapWithCode(err, codes.InvalidArgument, "Failed to load AWS configuration")
	}
	return cfg, nil
}
