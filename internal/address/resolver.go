// Package address reads the profile default address.
//
// Profile rows written by older storefront builds may hold the address
// JSON-encoded more than once, or serialised character by character into an
// object keyed "0", "1", .... Resolve recovers what can be recovered and
// reports "no address" for everything else so the checkout form is shown
// empty instead of pre-filled with garbage. New writes go through Encode only.
package address

import (
	"encoding/json"
	"strconv"

	"bazar_back_end/internal/models"
)

// maxUnwrap bounds how many JSON string layers are peeled off.
const maxUnwrap = 3

// Resolve never fails: anything it cannot read yields ok == false.
func Resolve(v any) (addr models.ProfileAddress, ok bool) {
	defer func() {
		if recover() != nil {
			addr, ok = models.ProfileAddress{}, false
		}
	}()

	switch t := v.(type) {
	case nil:
		return models.ProfileAddress{}, false
	case models.ProfileAddress:
		return t, !t.IsZero()
	case *models.ProfileAddress:
		if t == nil {
			return models.ProfileAddress{}, false
		}
		return *t, !t.IsZero()
	case map[string]any:
		return fromObject(t)
	case map[string]string:
		m := make(map[string]any, len(t))
		for k, s := range t {
			m[k] = s
		}
		return fromObject(m)
	case json.RawMessage:
		return unwrap(string(t))
	case []byte:
		return unwrap(string(t))
	case string:
		return unwrap(t)
	}
	return models.ProfileAddress{}, false
}

func unwrap(raw string) (models.ProfileAddress, bool) {
	current := raw
	for attempt := 0; attempt < maxUnwrap; attempt++ {
		var decoded any
		if err := json.Unmarshal([]byte(current), &decoded); err != nil {
			return models.ProfileAddress{}, false
		}
		switch t := decoded.(type) {
		case string:
			current = t
		case map[string]any:
			return fromObject(t)
		default:
			return models.ProfileAddress{}, false
		}
	}
	return models.ProfileAddress{}, false
}

func fromObject(m map[string]any) (models.ProfileAddress, bool) {
	if len(m) == 0 || isCharIndexed(m) {
		return models.ProfileAddress{}, false
	}
	addr := models.ProfileAddress{
		Division: firstString(m, "division", "region", "state"),
		District: firstString(m, "district", "city"),
		Address:  firstString(m, "address", "addressLine"),
	}
	if addr.IsZero() {
		return models.ProfileAddress{}, false
	}
	return addr, true
}

// isCharIndexed reports whether the keys are exactly "0".."n-1".
func isCharIndexed(m map[string]any) bool {
	for i := 0; i < len(m); i++ {
		if _, ok := m[strconv.Itoa(i)]; !ok {
			return false
		}
	}
	return true
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
