package log_shipping

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/PaloAltoNetworks/kiemwatch/pkg/access_logging"
)

// IndexDocument is the shape indexed for one access log entry
type IndexDocument struct {
	Username          string                           `json:"username"`
	Groups            []string                         `json:"groups"`
	Timestamp         string                           `json:"timestamp"`
	AccessCount       int                              `json:"access_count"`
	FlattenedAccesses []access_logging.FlattenedAccess `json:"flattened_accesses"`
	EventTime         time.Time                        `json:"@timestamp"`
}

// Transform flattens an entry for indexing. access_count is the number of grants, not
// the number of flattened verbs.
func Transform(entry access_logging.AccessLogEntry) (IndexDocument, error) {
	eventTime, err := time.Parse(time.RFC3339Nano, entry.Timestamp)
	if err != nil {
		return IndexDocument{}, fmt.Errorf("invalid timestamp %q: %w", entry.Timestamp, err)
	}

	groups := entry.Groups
	if groups == nil {
		groups = []string{}
	}

	return IndexDocument{
		Username:          entry.Username,
		Groups:            groups,
		Timestamp:         entry.Timestamp,
		AccessCount:       len(entry.Accesses),
		FlattenedAccesses: access_logging.Flatten(entry.Accesses),
		EventTime:         eventTime.UTC(),
	}, nil
}

// ID is stable per (run, user) so a re-shipped line overwrites instead of duplicating
func (d IndexDocument) ID() string {
	sum := sha256.Sum256([]byte(d.Timestamp + "\x00" + d.Username))
	return hex.EncodeToString(sum[:16])
}
