package codec

import "encoding/json"

// JSON serializes values with encoding/json. Slower and larger than msgpack
// but convenient when entries must be readable by other tooling.
type JSON[V any] struct{}

func (JSON[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }
func (JSON[V]) Decode(b []byte) (V, error) {
	var v V
	err := json.Unmarshal(b, &v)
	return v, err
}
