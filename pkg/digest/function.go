package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"sort"

	"github.com/buildbarn/go-sha256tree"
	"github.com/zeebo/blake3"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Function is a hashing algorithm that may be used to compute
// checksums of parts and whole files. All supported functions produce
// 256-bit hashes, meaning that checksums stored in manifests have a
// fixed length.
//
// Function only holds the name of the algorithm, so that it can be
// compared and stored as part of a manifest.
type Function struct {
	name string
}

// HashBytesSize is the size of the hashes produced by all supported
// functions.
const HashBytesSize = 32

var (
	// SHA256 computes checksums using plain SHA-256. This is the
	// default.
	SHA256 = Function{name: "sha256"}
	// SHA256TREE computes checksums using the SHA-256 based tree
	// hash, which can make use of SIMD to hash large files faster.
	SHA256TREE = Function{name: "sha256tree"}
	// BLAKE3 computes checksums using BLAKE3.
	BLAKE3 = Function{name: "blake3"}
)

var hasherFactories = map[Function]func(expectedSizeBytes int64) hash.Hash{
	SHA256: func(expectedSizeBytes int64) hash.Hash {
		return sha256.New()
	},
	SHA256TREE: sha256tree.New,
	BLAKE3: func(expectedSizeBytes int64) hash.Hash {
		return blake3.New()
	},
}

// GetFunction returns the hashing algorithm with a given name. An empty
// name yields SHA256.
func GetFunction(name string) (Function, error) {
	if name == "" {
		return SHA256, nil
	}
	if f := (Function{name: name}); hasherFactories[f] != nil {
		return f, nil
	}
	return Function{}, status.Errorf(codes.InvalidArgument, "Unknown digest function %#v", name)
}

// SupportedFunctionNames returns the names of all hashing algorithms
// that may be passed to GetFunction(), in sorted order.
func SupportedFunctionNames() []string {
	names := make([]string, 0, len(hasherFactories))
	for f := range hasherFactories {
		names = append(names, f.name)
	}
	sort.Strings(names)
	return names
}

// IsValid returns true if the Function refers to a supported hashing
// algorithm. The zero value is not valid.
func (f Function) IsValid() bool {
	return hasherFactories[f] != nil
}

// GetName returns the name of the hashing algorithm, as stored in
// manifests.
func (f Function) GetName() string {
	return f.name
}

// NewGenerator creates a writer that may be used to compute the digest
// of data that is streamed through it. The expected size is only used
// as a hint for preallocation.
func (f Function) NewGenerator(expectedSizeBytes int64) *Generator {
	return &Generator{
		partialHash: hasherFactories[f](expectedSizeBytes),
	}
}

// Compute the digest of a byte slice.
func (f Function) Compute(data []byte) Digest {
	g := f.NewGenerator(int64(len(data)))
	g.Write(data)
	return g.Sum()
}

// NewDigest parses the hexadecimal representation of a hash that was
// computed by this function.
func (f Function) NewDigest(hash string) (Digest, error) {
	if len(hash) != HashBytesSize*2 {
		return Digest{}, status.Errorf(codes.InvalidArgument, "Hash has length %d, while %d characters were expected", len(hash), HashBytesSize*2)
	}
	for _, c := range hash {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return Digest{}, status.Errorf(codes.InvalidArgument, "Non-hexadecimal character in hash: %#U", c)
		}
	}
	return Digest{hash: hash}, nil
}

// MustNewDigest is identical to NewDigest(), except that it panics if
// the hash is malformed. Useful for unit testing.
func (f Function) MustNewDigest(hash string) Digest {
	d, err := f.NewDigest(hash)
	if err != nil {
		panic(err)
	}
	return d
}

// Generator is a writer that may be used to compute digests of data
// as it is being read.
type Generator struct {
	partialHash hash.Hash
	sizeBytes   int64
}

// Write a chunk of data into the state of the Generator.
func (dg *Generator) Write(p []byte) (int, error) {
	n, err := dg.partialHash.Write(p)
	dg.sizeBytes += int64(n)
	return n, err
}

// GetSizeBytes returns the number of bytes written into the Generator.
func (dg *Generator) GetSizeBytes() int64 {
	return dg.sizeBytes
}

// Sum creates a new digest based on the data written into the
// Generator.
func (dg *Generator) Sum() Digest {
	return Digest{hash: hex.EncodeToString(dg.partialHash.Sum(nil))}
}
