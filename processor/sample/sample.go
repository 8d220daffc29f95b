// Package sample turns raw serial lines into integer sensor readings.
//
// Two line shapes are accepted:
//
//	S,<timestamp>,<value>   the reading is the third field
//	a,b,...,<value>         anything else, the reading is the last field
//
// The reading is the leading signed decimal integer of its field; trailing
// text such as a unit suffix is ignored.
//
// A single corrupted line is expected on a serial stream, so every malformed
// input is reported as "no sample" rather than as an error.
package sample

import (
	"strconv"
	"strings"
)

// Marker is the prefix of the preferred record shape.
const Marker = "S,"

// Parse extracts the reading from one line with its terminator removed.
// The boolean is false when the line carries no usable sample.
func Parse(line string) (int, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return 0, false
	}

	var field string
	if strings.HasPrefix(line, Marker) {
		parts := strings.Split(line, ",")
		if len(parts) < 3 {
			return 0, false
		}
		field = parts[2]
	} else {
		field = line[strings.LastIndexByte(line, ',')+1:]
	}

	return leadingInt(strings.TrimSpace(field))
}

// leadingInt reads an optional sign and the run of decimal digits at the
// start of s, ignoring whatever follows: "700mV" is 700, "1.5" is 1.
func leadingInt(s string) (int, bool) {
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}

	value, err := strconv.Atoi(s[:end])
	if err != nil {
		// out of int range
		return 0, false
	}
	return value, true
}
