package utils

import "encoding/json"

// True always marshals as the JSON literal true, regardless of the underlying
// value. Request fields the upstream must always see enabled use it.
type True bool

func (True) MarshalJSON() ([]byte, error) {
	return json.Marshal(true)
}
