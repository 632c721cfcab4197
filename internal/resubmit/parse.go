package resubmit

import "strconv"

// ParseFilled converts the CLOB's taking_amount decimal-string into a
// float64 share count. A malformed or empty string is treated as zero fill
// rather than an error, matching the degrade-to-safe-default posture spec.md
// §7 prescribes for parse failures outside the submit boundary itself.
// Exported so the order-worker boundary (which decides whether to seed a
// resubmit chain at all) can apply the same parse-failure semantics.
func ParseFilled(takingAmount string) float64 {
	if takingAmount == "" {
		return 0
	}
	v, err := strconv.ParseFloat(takingAmount, 64)
	if err != nil {
		return 0
	}
	return v
}
