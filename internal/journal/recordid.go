package journal

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Record IDs have the form chg_<timestamp>_<random>, e.g.
// chg_20260213T200102Z_6f2c9a1b. They sort chronologically.
const (
	idPrefix       = "chg_"
	idTimestampFmt = "20060102T150405Z"
	idRandomBytes  = 4
)

// NewRecordID generates a record ID for time now.
func NewRecordID(now time.Time) string {
	b := make([]byte, idRandomBytes)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("journal: crypto/rand failed: %v", err))
	}
	return idPrefix + now.UTC().Format(idTimestampFmt) + "_" + hex.EncodeToString(b)
}

// ParseRecordID extracts the timestamp from a record ID.
func ParseRecordID(id string) (time.Time, error) {
	if !strings.HasPrefix(id, idPrefix) {
		return time.Time{}, fmt.Errorf("journal: invalid record id prefix in %q", id)
	}

	parts := strings.SplitN(id[len(idPrefix):], "_", 2)
	if len(parts) != 2 {
		return time.Time{}, fmt.Errorf("journal: missing random segment in %q", id)
	}

	ts, err := time.Parse(idTimestampFmt, parts[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("journal: bad timestamp in %q: %w", id, err)
	}
	if len(parts[1]) != idRandomBytes*2 {
		return time.Time{}, fmt.Errorf("journal: random segment wrong length in %q", id)
	}
	if _, err := hex.DecodeString(parts[1]); err != nil {
		return time.Time{}, fmt.Errorf("journal: random segment not hex in %q: %w", id, err)
	}
	return ts, nil
}
