package mock

//go:generate mockgen -package mock -destination aliases.go github.com/buildbarn/bb-splitter/internal/mock/aliases UUIDGenerator
//go:generate mockgen -package mock -destination clock.go github.com/buildbarn/bb-splitter/pkg/clock Clock,Timer
//go:generate mockgen -package mock -destination cloud_aws.go github.com/buildbarn/bb-splitter/pkg/cloud/aws S3Client
//go:generate mockgen -package mock -destination cloud_gcp.go github.com/buildbarn/bb-splitter/pkg/cloud/gcp StorageBucketHandle,StorageClient,StorageObjectHandle
//go:generate mockgen -package mock -destination manifeststore.go github.com/buildbarn/bb-splitter/pkg/manifeststore ManifestStore,RedisClient
//go:generate mockgen -package mock -destination random.go github.com/buildbarn/bb-splitter/pkg/random ThreadSafeGenerator
//go:generate mockgen -package mock -destination slicing.go github.com/buildbarn/bb-splitter/pkg/slicing PartSource
//go:generate mockgen -package mock -destination transport.go github.com/buildbarn/bb-splitter/pkg/transport Codec,PartTransport
//go:generate mockgen -package mock -destination util.go github.com/buildbarn/bb-splitter/pkg/util ErrorLogger
