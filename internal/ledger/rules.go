package ledger

import "strings"

const (
	// DrowsyThreshold is the confidence a drowsy label must exceed to count.
	DrowsyThreshold = 0.7
	// HighAlertThreshold is the confidence above which a drowsy frame is a high alert.
	HighAlertThreshold = 0.8

	AlertHigh = "high"
	AlertLow  = "low"
)

var drowsyLabels = map[string]struct{}{
	"drowsy": {},
	"sleepy": {},
	"tired":  {},
}

// IsDrowsy applies the exact-label rule used when recording detections.
// Sentinel labels (no_detection, error, model_error) never match.
func IsDrowsy(label string, confidence float64) bool {
	_, ok := drowsyLabels[strings.ToLower(label)]
	return ok && confidence > DrowsyThreshold
}

func AlertLevel(drowsy bool, confidence float64) string {
	if drowsy && confidence > HighAlertThreshold {
		return AlertHigh
	}
	return AlertLow
}
