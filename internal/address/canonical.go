package address

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"bazar_back_end/internal/models"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var ErrInvalidAddress = errors.New("address does not match the canonical schema")

const schemaURL = "https://bazar.local/schemas/profile-address.schema.json"

const profileAddressSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["division", "district", "address"],
  "additionalProperties": false,
  "properties": {
    "division": {"type": "string", "maxLength": 64},
    "district": {"type": "string", "maxLength": 64},
    "address":  {"type": "string", "maxLength": 512}
  },
  "anyOf": [
    {"properties": {"division": {"minLength": 1}}},
    {"properties": {"district": {"minLength": 1}}},
    {"properties": {"address":  {"minLength": 1}}}
  ]
}`

var schema = mustCompile()

func mustCompile() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(schemaURL, strings.NewReader(profileAddressSchema)); err != nil {
		panic(fmt.Sprintf("address schema load failed: %v", err))
	}
	return c.MustCompile(schemaURL)
}

// Encode is the only way an address is written to the profile: a single
// JSON object, never a string holding JSON.
func Encode(addr models.ProfileAddress) (string, error) {
	if addr.IsZero() {
		return "", nil
	}
	b, err := json.Marshal(addr)
	if err != nil {
		return "", err
	}
	if err := validate(b); err != nil {
		return "", err
	}
	return string(b), nil
}

// Decode is the strict read path. It accepts only the canonical encoding.
func Decode(raw string) (models.ProfileAddress, error) {
	if err := validate([]byte(raw)); err != nil {
		return models.ProfileAddress{}, err
	}
	var addr models.ProfileAddress
	if err := json.Unmarshal([]byte(raw), &addr); err != nil {
		return models.ProfileAddress{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return addr, nil
}

// Read decodes a stored value. Non-canonical values go through Resolve and
// are reported as legacy so the caller can rewrite them.
func Read(raw string) (addr models.ProfileAddress, ok bool, legacy bool) {
	if raw == "" {
		return models.ProfileAddress{}, false, false
	}
	if addr, err := Decode(raw); err == nil {
		return addr, true, false
	}
	addr, ok = Resolve(raw)
	return addr, ok, true
}

func validate(raw []byte) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return nil
}
