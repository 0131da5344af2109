package engine

import (
	"strconv"
	"time"
	"unicode/utf16"
)

// idPrefixUnits is how much of the message text feeds the hash, in UTF-16
// code units.
const idPrefixUnits = 200

// StableID derives a message id from its text and a weak ordinal (a message
// id or test id attribute). The hash is a 32-bit polynomial fold over UTF-16
// code units so ids match those computed in the page's own JavaScript.
func StableID(text, weakOrdinal string) string {
	units := utf16.Encode([]rune(text))
	if len(units) > idPrefixUnits {
		units = units[:idPrefixUnits]
	}

	var h uint32
	for _, c := range utf16.Encode([]rune(weakOrdinal + "|")) {
		h = h*31 + uint32(c)
	}
	for _, c := range units {
		h = h*31 + uint32(c)
	}
	return "m-" + strconv.FormatUint(uint64(h), 16)
}

// wallClockOrdinal is the fallback ordinal for nodes without any id
// attribute: the current time in milliseconds. Ids derived from it are not
// stable across sweeps.
func wallClockOrdinal(now time.Time) string {
	return strconv.FormatInt(now.UnixMilli(), 10)
}
