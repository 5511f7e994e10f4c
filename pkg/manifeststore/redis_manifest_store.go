package manifeststore

import (
	"context"
	"time"

	"github.com/buildbarn/bb-splitter/pkg/manifest"
	"github.com/buildbarn/bb-splitter/pkg/util"
	"github.com/redis/go-redis/v9"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// RedisClient contains the methods of the Redis client library that
// are used by the Redis manifest store. This interface has been added
// to permit unit testing.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
}

var (
	_ RedisClient = &redis.Client{}
	_ RedisClient = &redis.ClusterClient{}
)

type redisManifestStore struct {
	redisClient RedisClient
	keyPrefix   string
}

// NewRedisManifestStore creates a ManifestStore that stores manifests
// in Redis. Every manifest is stored under its own key. In addition,
// a set containing the identifiers of all manifests is maintained to
// support listing.
func NewRedisManifestStore(redisClient RedisClient, keyPrefix string) ManifestStore {
	return &redisManifestStore{
		redisClient: redisClient,
		keyPrefix:   keyPrefix,
	}
}

func (ms *redisManifestStore) getManifestKey(id string) string {
	return ms.keyPrefix + "manifest:" + id
}

func (ms *redisManifestStore) getIndexKey() string {
	return ms.keyPrefix + "manifests"
}

func (ms *redisManifestStore) Save(ctx context.Context, m *manifest.FileManifest) (string, error) {
	data, err := encodeForSaving(m)
	if err != nil {
		return "", err
	}
	if err := ms.redisClient.Set(ctx, ms.getManifestKey(m.ID), data, 0).Err(); err != nil {
		return "", util.StatusWrapWithCode(err, codes.Unavailable, "Failed to store manifest")
	}
	if err := ms.redisClient.SAdd(ctx, ms.getIndexKey(), m.ID).Err(); err != nil {
		return "", util.StatusWrapWithCode(err, codes.Unavailable, "Failed to add manifest to index")
	}
	return m.ID, nil
}

func (ms *redisManifestStore) Load(ctx context.Context, id string) (*manifest.FileManifest, error) {
	data, err := ms.redisClient.Get(ctx, ms.getManifestKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, newNotFoundError(id)
		}
		return nil, util.StatusWrapWithCode(err, codes.Unavailable, "Failed to load manifest")
	}
	m, err := manifest.Unmarshal(data)
	if err != nil {
		return nil, util.StatusWrapf(err, "Failed to unmarshal manifest %#v", id)
	}
	return m, nil
}

func (ms *redisManifestStore) Delete(ctx context.Context, id string) error {
	// Remove the manifest from the index first, so that a partial
	// failure never leaves an index entry behind that refers to a
	// nonexistent manifest.
	if err := ms.redisClient.SRem(ctx, ms.getIndexKey(), id).Err(); err != nil {
		return util.StatusWrapWithCode(err, codes.Unavailable, "Failed to remove manifest from index")
	}
	removed, err := ms.redisClient.Del(ctx, ms.getManifestKey(id)).Result()
	if err != nil {
		return util.StatusWrapWithCode(err, codes.Unavailable, "Failed to delete manifest")
	}
	if removed == 0 {
		return newNotFoundError(id)
	}
	return nil
}

func (ms *redisManifestStore) List(ctx context.Context, filter Filter) ([]manifest.Summary, error) {
	ids, err := ms.redisClient.SMembers(ctx, ms.getIndexKey()).Result()
	if err != nil {
		return nil, util.StatusWrapWithCode(err, codes.Unavailable, "Failed to list manifest index")
	}
	summaries := []manifest.Summary{}
	if len(ids) == 0 {
		return summaries, nil
	}

	// Fetch all manifests in a single round trip.
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, ms.getManifestKey(id))
	}
	values, err := ms.redisClient.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, util.StatusWrapWithCode(err, codes.Unavailable, "Failed to load manifests")
	}
	for i, value := range values {
		if value == nil {
			// Deleted while listing.
			continue
		}
		data, ok := value.(string)
		if !ok {
			return nil, status.Errorf(codes.Internal, "Manifest %#v has value of unexpected type %T", ids[i], value)
		}
		m, err := manifest.Unmarshal([]byte(data))
		if err != nil {
			return nil, util.StatusWrapf(err, "Failed to unmarshal manifest %#v", ids[i])
		}
		if summary := m.GetSummary(); filter.Matches(&summary) {
			summaries = append(summaries, summary)
		}
	}
	sortSummaries(summaries)
	return summaries, nil
}
