package configuration

import (
	"time"

	"github.com/buildbarn/bb-splitter/pkg/manifeststore"
	"github.com/buildbarn/bb-splitter/pkg/util"
	"github.com/redis/go-redis/v9"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ManifestStoreConfiguration describes where manifests are persisted.
// Exactly one of the backends must be configured.
type ManifestStoreConfiguration struct {
	Memory *struct{}                        `json:"memory"`
	Local  *LocalManifestStoreConfiguration `json:"local"`
	Redis  *RedisManifestStoreConfiguration `json:"redis"`

	// Only permit access to manifests of the configured owner.
	RestrictToOwner bool `json:"restrictToOwner"`
}

// LocalManifestStoreConfiguration stores manifests as JSON files in a
// directory.
type LocalManifestStoreConfiguration struct {
	Directory string `json:"directory"`
}

// RedisManifestStoreConfiguration stores manifests in a Redis server.
type RedisManifestStoreConfiguration struct {
	Address   string `json:"address"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	KeyPrefix string `json:"keyPrefix"`

	DialTimeout  util.Duration `json:"dialTimeout"`
	ReadTimeout  util.Duration `json:"readTimeout"`
	WriteTimeout util.Duration `json:"writeTimeout"`
}

// NewManifestStoreFromConfiguration creates a ManifestStore based on
// options specified in a configuration message.
func NewManifestStoreFromConfiguration(configuration *ManifestStoreConfiguration, owner string) (manifeststore.ManifestStore, error) {
	if configuration == nil {
		return nil, status.Error(codes.InvalidArgument, "Manifest store configuration not specified")
	}
	if countBackends(configuration.Memory != nil, configuration.Local != nil, configuration.Redis != nil) != 1 {
		return nil, status.Error(codes.InvalidArgument, "Manifest store configuration must contain exactly one backend")
	}

	var manifestStore manifeststore.ManifestStore
	switch {
	case configuration.Memory != nil:
		manifestStore = manifeststore.NewMemoryManifestStore()
	case configuration.Local != nil:
		if configuration.Local.Directory == "" {
			return nil, status.Error(codes.InvalidArgument, "No directory specified for local manifest store")
		}
		manifestStore = manifeststore.NewLocalManifestStore(configuration.Local.Directory)
	case configuration.Redis != nil:
		redisConfiguration := configuration.Redis
		if redisConfiguration.Address == "" {
			return nil, status.Error(codes.InvalidArgument, "No address specified for Redis manifest store")
		}
		redisClient := redis.NewClient(&redis.Options{
			Addr:         redisConfiguration.Address,
			Password:     redisConfiguration.Password,
			DB:           redisConfiguration.DB,
			DialTimeout:  time.Duration(redisConfiguration.DialTimeout),
			ReadTimeout:  time.Duration(redisConfiguration.ReadTimeout),
			WriteTimeout: time.Duration(redisConfiguration.WriteTimeout),
		})
		manifestStore = manifeststore.NewRedisManifestStore(redisClient, redisConfiguration.KeyPrefix)
	}

	if configuration.RestrictToOwner {
		if owner == "" {
			return nil, status.Error(codes.InvalidArgument, "Manifest store is restricted to the owner, but no owner is configured")
		}
		manifestStore = manifeststore.NewOwnerRestrictingManifestStore(manifestStore, owner)
	}
	return manifestStore, nil
}
