package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Fingerprint derives the stable respondent identity from browser, device and
// the submission day. Truncating to the calendar day means two submissions
// from the same browser/device on one day collapse into one respondent.
func Fingerprint(browser, device string, submittedAt time.Time) string {
	day := submittedAt.UTC().Format("2006-01-02")
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s", browser, device, day)))
	return hex.EncodeToString(sum[:])
}
