// Package format renders token and merge counts for terminal output.
package format

import (
	"fmt"
	"strconv"
)

var countUnits = []struct {
	size   int64
	suffix string
}{
	{1_000_000_000, "B"},
	{1_000_000, "M"},
	{1_000, "K"},
}

// Count abbreviates n with a K, M or B suffix and three significant
// digits, so a 100256 entry vocabulary prints as "100K". Values under a
// thousand and negative values print in full.
func Count(n int64) string {
	for _, u := range countUnits {
		if n >= u.size {
			return significant(float64(n)/float64(u.size)) + u.suffix
		}
	}

	return strconv.FormatInt(n, 10)
}

func significant(f float64) string {
	precision := 2
	if f >= 100 {
		precision = 0
	} else if f >= 10 {
		precision = 1
	}

	return fmt.Sprintf("%.*f", precision, f)
}
