// SPDX-License-Identifier: Apache-2.0

package cosign2

import (
	"time"
	"unicode/utf8"
)

// dateSize is the fixed width of the header's human-readable date field,
// formatted as "Jan 02 2006" (11 bytes) left in a 14-byte field, the
// remaining bytes zeroed.
const dateSize = 14

var monthNames = [12][]byte{
	[]byte("Jan"), []byte("Feb"), []byte("Mar"), []byte("Apr"),
	[]byte("May"), []byte("Jun"), []byte("Jul"), []byte("Aug"),
	[]byte("Sep"), []byte("Oct"), []byte("Nov"), []byte("Dec"),
}

func unixToTime(timestamp uint32) time.Time {
	return time.Unix(int64(timestamp), 0).UTC()
}

func asciiDigitPair(n int) [2]byte {
	return [2]byte{byte('0' + (n/10)%10), byte('0' + n%10)}
}

// formatDate writes "Mon DD YYYY" into a dateSize-byte array, zero-padding
// the remainder, from a UTC timestamp.
func formatDate(t time.Time) [dateSize]byte {
	var out [dateSize]byte
	month := monthNames[int(t.Month())-1]
	copy(out[0:3], month)
	out[3] = ' '
	day := asciiDigitPair(t.Day())
	out[4], out[5] = day[0], day[1]
	out[6] = ' '
	year := t.Year()
	out[7] = byte('0' + (year/1000)%10)
	out[8] = byte('0' + (year/100)%10)
	out[9] = byte('0' + (year/10)%10)
	out[10] = byte('0' + year%10)
	// out[11:14] stay zero.
	return out
}

func validateDate(b [dateSize]byte) error {
	firstZero := len(b)
	for i, c := range b {
		if c == 0 {
			firstZero = i
			break
		}
	}
	for _, c := range b[firstZero:] {
		if c != 0 {
			return errInvalidDateTrailingBytes()
		}
	}
	if !utf8.Valid(b[:firstZero]) {
		return errInvalidDateUTF8()
	}
	return nil
}
