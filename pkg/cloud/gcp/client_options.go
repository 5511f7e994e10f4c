package gcp

import (
	"google.golang.org/api/option"
)

// ClientOptionsConfiguration contains the options that are used to
// connect to GCP services.
type ClientOptionsConfiguration struct {
	// Path of a service account key file. When left empty,
	// Application Default Credentials are used.
	CredentialsFile string `json:"credentialsFile"`
	// Endpoint overrides the service endpoint. This can be used to
	// connect to an emulator, in which case authentication is
	// disabled.
	Endpoint string `json:"endpoint"`
}

// NewClientOptionsFromConfiguration creates a list of Google Cloud SDK
// client options based on options specified in a configuration
// message. The resulting client options object can be used to access
// GCP services such as GCS.
func NewClientOptionsFromConfiguration(configuration *ClientOptionsConfiguration) []option.ClientOption {
	if configuration == nil {
		return nil
	}
	var clientOptions []option.ClientOption
	if endpoint := configuration.Endpoint; endpoint != "" {
		clientOptions = append(clientOptions, option.WithEndpoint(endpoint), option.WithoutAuthentication())
	} else if credentialsFile := configuration.CredentialsFile; credentialsFile != "" {
		clientOptions = append(clientOptions, option.WithCredentialsFile(credentialsFile))
	}
	return clientOptions
}
