package models

import (
	"encoding/json"
	"strings"
)

// Zones is the set of zone codes a user is affiliated with. On input it
// accepts either a JSON array or a single (optionally comma separated) string.
type Zones []string

func (z *Zones) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*z = nil
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*z = normalizeZones(list)
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err != nil {
		return err
	}
	*z = normalizeZones(strings.Split(single, ","))
	return nil
}

func normalizeZones(in []string) Zones {
	out := make(Zones, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
