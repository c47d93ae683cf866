// Package enrichment defines the fixed-shape records the rest of the
// pipeline consumes, the per-service empty sentinels, and the boolean flag
// derivation over heterogeneous enrichment shapes.
package enrichment

// Service names for the four upstream providers.
const (
	ServiceDShield    = "dshield"
	ServiceURLHaus    = "urlhaus"
	ServiceSpur       = "spur"
	ServiceVirusTotal = "virustotal"
)

// UnknownSession is the session ID used when the loader could not attribute
// an observation to a session.
const UnknownSession = "unknown-session"

// URLHausTimeout is the URLHaus sentinel produced when the wall-clock guard
// around the whole call (retries included) expires. Distinct from the empty
// string to aid diagnosis.
const URLHausTimeout = "TIMEOUT"

// DShield is the network-reputation payload. The ip sub-object is never
// structurally missing: absence collapses to the empty sentinel.
type DShield struct {
	IP map[string]any `json:"ip"`
}

// EmptyDShield returns the DShield empty sentinel,
// {"ip":{"asname":"","ascountry":""}}.
func EmptyDShield() DShield {
	return DShield{IP: map[string]any{"asname": "", "ascountry": ""}}
}

// Normalize ensures the ip sub-object exists and carries the asname and
// ascountry keys, collapsing any partial shape toward the sentinel.
func (d *DShield) Normalize() {
	if d.IP == nil {
		d.IP = map[string]any{}
	}
	if _, ok := d.IP["asname"]; !ok {
		d.IP["asname"] = ""
	}
	if _, ok := d.IP["ascountry"]; !ok {
		d.IP["ascountry"] = ""
	}
}

// SessionEnrichment groups the per-service results for one session.
type SessionEnrichment struct {
	DShield DShield    `json:"dshield"`
	URLHaus string     `json:"urlhaus"`
	Spur    SpurFields `json:"spur"`
}

// SessionRecord is the enrichment record returned for a session observation.
type SessionRecord struct {
	SessionID  string            `json:"session_id"`
	SrcIP      string            `json:"src_ip"`
	Enrichment SessionEnrichment `json:"enrichment"`
}

// EmptySessionRecord returns a record whose enrichment carries every
// service's empty sentinel.
func EmptySessionRecord(sessionID, srcIP string) *SessionRecord {
	return &SessionRecord{
		SessionID: sessionID,
		SrcIP:     srcIP,
		Enrichment: SessionEnrichment{
			DShield: EmptyDShield(),
			URLHaus: "",
			Spur:    EmptySpur(),
		},
	}
}

// FileEnrichment carries the file-scanner payload. VirusTotal is nil on
// quota exhaustion, provider miss (404) or failure.
type FileEnrichment struct {
	VirusTotal any `json:"virustotal"`
}

// FileRecord is the enrichment record returned for a file observation.
type FileRecord struct {
	FileHash   string         `json:"file_hash"`
	Filename   string         `json:"filename"`
	Enrichment FileEnrichment `json:"enrichment"`
}

// EmptyFileRecord returns a file record with a null file-scanner payload.
func EmptyFileRecord(fileHash, filename string) *FileRecord {
	return &FileRecord{FileHash: fileHash, Filename: filename}
}
