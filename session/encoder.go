package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
)

// ID is a user identifier. Identity servers send it either as a JSON number
// or as a string; both decode into ID and integer-looking values encode back
// as numbers.
type ID string

// MarshalJSON encodes integer IDs as JSON numbers and everything else as strings.
func (id ID) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil && strconv.FormatInt(n, 10) == string(id) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// UnmarshalJSON accepts a JSON number, a JSON string, or null.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return errors.New("user id must be a number or a string")
	}
	*id = ID(n.String())
	return nil
}

// EncodeUser serializes a profile for the user key.
func EncodeUser(u UserProfile) (string, error) {
	data, err := json.Marshal(u)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeUser parses a stored profile. Empty, non-JSON, or non-object
// values report false; callers treat them as "no user".
func DecodeUser(raw string) (*UserProfile, bool) {
	if raw == "" {
		return nil, false
	}
	trimmed := bytes.TrimSpace([]byte(raw))
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, false
	}

	var u UserProfile
	if err := json.Unmarshal(trimmed, &u); err != nil {
		return nil, false
	}
	return &u, true
}
