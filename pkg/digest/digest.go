package digest

// Digest is the checksum of a part or a whole file. Digests are
// comparable, meaning they can be compared using == and used as map
// keys. The hashing algorithm is not part of the digest; it is stored
// once per manifest.
type Digest struct {
	hash string
}

// BadDigest is a default instance of Digest. It can, for example, be
// used as a function return value for error cases.
var BadDigest Digest

// GetHashString returns the hash of the data in hexadecimal form.
func (d Digest) GetHashString() string {
	return d.hash
}

// String returns the hash of the data in hexadecimal form.
func (d Digest) String() string {
	return d.hash
}
