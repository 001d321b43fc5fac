// Package codec provides the serializers used to move record payloads in and
// out of the cache. Msgpack is the rowsync default; JSON and CBOR are
// interchangeable as long as every process sharing a cache agrees.
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
