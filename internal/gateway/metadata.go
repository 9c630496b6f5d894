package gateway

import (
	"strings"

	"github.com/goccy/go-json"
)

// UserMetadata is the subset of identity-provider metadata the client reads.
// Decoding is schema-checked and fails closed: a field with the wrong type or
// a blank value decodes as absent instead of failing the whole user.
type UserMetadata struct {
	FullName  *string `json:"full_name,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *UserMetadata) UnmarshalJSON(b []byte) error {
	*m = UserMetadata{}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		// null, arrays and scalars carry no usable metadata
		return nil
	}
	m.FullName = stringField(raw, "full_name", "name")
	m.AvatarURL = stringField(raw, "avatar_url", "picture")
	return nil
}

// stringField returns the first key in keys holding a non-blank JSON string.
func stringField(raw map[string]json.RawMessage, keys ...string) *string {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		return &s
	}
	return nil
}
