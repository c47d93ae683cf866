package enrichment

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SpurFieldCount is the length of the flattened SPUR sequence. The length
// and ordering are a stable external contract consumed by downstream
// reporting; do not reorder.
const SpurFieldCount = 18

// SpurFields is the legacy flattened form of a SPUR context payload. Index
// positions, in order:
//
//	0  ASN number
//	1  ASN organization
//	2  organization
//	3  infrastructure
//	4  client behaviors
//	5  client proxies
//	6  client types
//	7  client count
//	8  client concentration
//	9  client countries
//	10 client spread
//	11 risks
//	12 services
//	13 location
//	14 tunnel anonymous
//	15 tunnel entries
//	16 tunnel operator
//	17 tunnel type
type SpurFields [SpurFieldCount]string

// Spur flattened-sequence index names used by flag derivation.
const (
	SpurIndexInfrastructure = 3
)

// EmptySpur returns the SPUR empty sentinel: 18 empty strings.
func EmptySpur() SpurFields {
	return SpurFields{}
}

// Slice returns the fields as a plain string slice.
func (s SpurFields) Slice() []string {
	out := make([]string, SpurFieldCount)
	copy(out, s[:])
	return out
}

// FlattenSpur coerces a decoded SPUR context payload into the fixed
// 18-field sequence. Absent values become empty strings; container values
// are stringified as compact JSON. Any shape failure degrades toward the
// empty sentinel rather than erroring.
func FlattenSpur(ctx map[string]any) SpurFields {
	var out SpurFields
	if ctx == nil {
		return out
	}

	as, _ := ctx["as"].(map[string]any)
	client, _ := ctx["client"].(map[string]any)
	tunnel := firstTunnel(ctx["tunnels"])

	out[0] = coerceField(lookup(as, "number"))
	out[1] = coerceField(lookup(as, "organization"))
	out[2] = coerceField(ctx["organization"])
	out[3] = coerceField(ctx["infrastructure"])
	out[4] = coerceField(lookup(client, "behaviors"))
	out[5] = coerceField(lookup(client, "proxies"))
	out[6] = coerceField(lookup(client, "types"))
	out[7] = coerceField(lookup(client, "count"))
	out[8] = coerceField(lookup(client, "concentration"))
	out[9] = coerceField(lookup(client, "countries"))
	out[10] = coerceField(lookup(client, "spread"))
	out[11] = coerceField(ctx["risks"])
	out[12] = coerceField(ctx["services"])
	out[13] = coerceField(ctx["location"])
	out[14] = coerceField(lookup(tunnel, "anonymous"))
	out[15] = coerceField(lookup(tunnel, "entries"))
	out[16] = coerceField(lookup(tunnel, "operator"))
	out[17] = coerceField(lookup(tunnel, "type"))
	return out
}

func lookup(m map[string]any, key string) any {
	if m == nil {
		return nil
	}
	return m[key]
}

func firstTunnel(v any) map[string]any {
	switch t := v.(type) {
	case []any:
		if len(t) > 0 {
			if m, ok := t[0].(map[string]any); ok {
				return m
			}
		}
	case map[string]any:
		return t
	}
	return nil
}

// coerceField turns any JSON value into a printable string: nil becomes the
// empty string, scalars print naturally, containers stringify as compact
// JSON.
func coerceField(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return fmt.Sprintf("%t", val)
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	case map[string]any, []any:
		buf, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(buf)
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", val))
	}
}
