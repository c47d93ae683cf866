package enrichment

import (
	"encoding/json"
	"strconv"
	"strings"
)

// SessionFlags are the boolean signals derived from an enrichment record.
type SessionFlags struct {
	DShieldFlagged bool `json:"dshield_flagged"`
	URLHausFlagged bool `json:"urlhaus_flagged"`
	SpurFlagged    bool `json:"spur_flagged"`
	VTFlagged      bool `json:"vt_flagged"`
}

// spurFlaggedInfrastructure lists infrastructure values that raise the SPUR
// flag, compared case-insensitively.
var spurFlaggedInfrastructure = map[string]bool{
	"DATACENTER": true,
	"VPN":        true,
}

// DeriveSessionFlags walks a record of any enrichment shape and derives the
// boolean flags. Records sometimes group payloads per IP under a session
// key and sometimes carry a single flat payload; derivation iterates every
// payload node it finds rather than assuming one shape.
func DeriveSessionFlags(record any) SessionFlags {
	var flags SessionFlags

	node := normalizeToTree(record)
	walkKeyed(node, func(key string, val any) {
		switch key {
		case ServiceDShield:
			if dshieldFlagged(val) {
				flags.DShieldFlagged = true
			}
		case ServiceURLHaus:
			if urlhausFlagged(val) {
				flags.URLHausFlagged = true
			}
		case ServiceSpur:
			if spurFlagged(val) {
				flags.SpurFlagged = true
			}
		case ServiceVirusTotal:
			if vtFlagged(val) {
				flags.VTFlagged = true
			}
		}
	})

	return flags
}

// normalizeToTree converts typed records into a generic JSON tree so one
// walker handles every shape.
func normalizeToTree(record any) any {
	switch record.(type) {
	case nil:
		return nil
	case map[string]any, []any:
		return record
	}
	buf, err := json.Marshal(record)
	if err != nil {
		return nil
	}
	var v any
	if err := json.Unmarshal(buf, &v); err != nil {
		return nil
	}
	return v
}

// walkKeyed visits every key/value pair at every depth of a JSON tree.
func walkKeyed(v any, visit func(key string, val any)) {
	switch node := v.(type) {
	case map[string]any:
		for key, val := range node {
			visit(key, val)
			walkKeyed(val, visit)
		}
	case []any:
		for _, val := range node {
			walkKeyed(val, visit)
		}
	}
}

func dshieldFlagged(v any) bool {
	node, ok := v.(map[string]any)
	if !ok {
		return false
	}
	ip, ok := node["ip"].(map[string]any)
	if !ok {
		return false
	}
	return asInt(ip["count"]) > 0 || asInt(ip["attacks"]) > 0
}

func urlhausFlagged(v any) bool {
	tags, ok := v.(string)
	if !ok {
		return false
	}
	// The wall-clock sentinel is diagnostic, not a detection.
	return tags != "" && tags != URLHausTimeout
}

func spurFlagged(v any) bool {
	var infrastructure string
	switch fields := v.(type) {
	case []any:
		if len(fields) <= SpurIndexInfrastructure {
			return false
		}
		infrastructure, _ = fields[SpurIndexInfrastructure].(string)
	case []string:
		if len(fields) <= SpurIndexInfrastructure {
			return false
		}
		infrastructure = fields[SpurIndexInfrastructure]
	default:
		return false
	}
	return spurFlaggedInfrastructure[strings.ToUpper(infrastructure)]
}

// vtFlagged reports whether any traversable VirusTotal payload carries
// last_analysis_stats.malicious > 0.
func vtFlagged(v any) bool {
	flagged := false
	walkKeyed(v, func(key string, val any) {
		if key != "last_analysis_stats" {
			return
		}
		stats, ok := val.(map[string]any)
		if !ok {
			return
		}
		if asInt(stats["malicious"]) > 0 {
			flagged = true
		}
	})
	return flagged
}

// asInt coerces the numeric shapes providers actually emit (numbers,
// json.Number, digit strings) to an int64; anything else counts as zero.
func asInt(v any) int64 {
	switch n := v.(type) {
	case nil:
		return 0
	case int:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0
		}
		return i
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0
		}
		return i
	default:
		return 0
	}
}
