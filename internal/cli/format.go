package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// OutputFormat selects how listings are printed.
type OutputFormat string

const (
	FormatTable OutputFormat = "table"
	FormatJSON  OutputFormat = "json"
)

const (
	microsPerMilli  = 1000
	microsPerSecond = 1000 * microsPerMilli
	microsPerMinute = 60 * microsPerSecond
	microsPerHour   = 60 * microsPerMinute
	microsPerDay    = 24 * microsPerHour
)

// FormatMicros renders a duration in microseconds with the largest unit
// that keeps the value at or above one.
func FormatMicros(us uint64) string {
	v := float64(us)
	switch {
	case us < microsPerMilli:
		return fmt.Sprintf("%dus", us)
	case us < microsPerSecond:
		return fmt.Sprintf("%.2fms", v/microsPerMilli)
	case us < microsPerMinute:
		return fmt.Sprintf("%.2fs", v/microsPerSecond)
	case us < microsPerHour:
		return fmt.Sprintf("%.2fm", v/microsPerMinute)
	case us < microsPerDay:
		return fmt.Sprintf("%.2fh", v/microsPerHour)
	default:
		return fmt.Sprintf("%.2fd", v/microsPerDay)
	}
}

func writeJSON(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func writeTable(w io.Writer, headers []string, rows [][]string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	if _, err := fmt.Fprintln(tw, strings.Join(headers, "\t")); err != nil {
		return err
	}
	for _, row := range rows {
		if _, err := fmt.Fprintln(tw, strings.Join(row, "\t")); err != nil {
			return err
		}
	}
	return tw.Flush()
}
