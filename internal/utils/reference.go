package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// GenerateExternalReference returns {prefix}-{YYYYMMDDhhmmss}{millis}-{random}.
// The random part comes from crypto/rand; uniqueness is also enforced by the
// orders.external_reference unique index.
func GenerateExternalReference(prefix string, now time.Time) string {
	now = now.UTC()

	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		// time-based entropy as a last resort
		ns := now.UnixNano()
		for i := range buf {
			buf[i] = byte(ns >> (8 * i))
		}
	}

	return fmt.Sprintf("%s-%s%03d-%s",
		strings.ToUpper(prefix),
		now.Format("20060102150405"),
		now.Nanosecond()/int(time.Millisecond),
		strings.ToUpper(hex.EncodeToString(buf)),
	)
}
