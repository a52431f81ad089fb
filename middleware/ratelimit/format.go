// utilitário pequeno para formatação rápida/consistente de valores numéricos em headers.

package ratelimit

import (
	"strconv"
	"time"
)

func formatInt(v int) string { return strconv.Itoa(v) }

// formatReset devolve o instante de reset em unix seconds.
func formatReset(now time.Time, after time.Duration) string {
	return strconv.FormatInt(resetAt(now, after), 10)
}

func resetAt(now time.Time, after time.Duration) int64 {
	if after < 0 {
		after = 0
	}
	return now.Add(after).Unix()
}
