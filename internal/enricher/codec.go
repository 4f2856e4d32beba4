package enricher

import "encoding/json"

// encodeResult/decodeResult serialize a provider Result for storage in
// the Cache's opaque Value field.
func encodeResult(r Result) string {
	data, err := json.Marshal(r)
	if err != nil {
		return ""
	}
	return string(data)
}

func decodeResult(raw string) Result {
	var r Result
	_ = json.Unmarshal([]byte(raw), &r)
	return r
}
