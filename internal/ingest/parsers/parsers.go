// Package parsers holds the format-specific email parsers and their
// chain ordering.
package parsers

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hostbridge/hostbridge/internal/ingest"
)

// Clock supplies the processing time used to complete dates quoted
// without a year.
type Clock func() time.Time

// Default returns the parser chain in evaluation order. The order is a
// behavioral contract, covered by regression tests per adjacent pair:
//
//  1. booking-cancellation precedes booking-confirmation because the
//     relay sends both from the same addresses and a cancellation email
//     still carries the reservation-number block a confirmation matcher
//     keys on.
//  2. airbnb-guest-message precedes airbnb-confirmation because message
//     notifications quote the confirmation code and would otherwise be
//     misread as new reservations.
//  3. generic-enquiry runs last; it is the loosest matcher and must not
//     shadow any channel-specific parser.
func Default(now Clock) []ingest.Parser {
	if now == nil {
		now = time.Now
	}
	return []ingest.Parser{
		&BookingCancellation{now: now},
		&BookingConfirmation{now: now},
		&AirbnbGuestMessage{},
		&AirbnbConfirmation{now: now},
		&GenericEnquiry{},
	}
}

var (
	emailPattern     = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	bookingRefPattern = regexp.MustCompile(`\b(\d{9,10})\b`)
	airbnbCodePattern = regexp.MustCompile(`\b(HM[A-Z0-9]{6,10})\b`)
)

// replyThreadKey derives a stable per-conversation key from the relay's
// Reply-To address, whose local part encodes the thread on both channels.
func replyThreadKey(headers map[string]string) string {
	addr := emailPattern.FindString(headers["Reply-To"])
	if addr == "" {
		return ""
	}
	local, _, found := strings.Cut(addr, "@")
	if !found || local == "" {
		return ""
	}
	return strings.ToLower(local)
}

func atoiSafe(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

// firstLineContaining returns the first line of text holding the marker,
// case-insensitive.
func firstLineContaining(text, marker string) string {
	marker = strings.ToLower(marker)
	for _, line := range strings.Split(text, "\n") {
		if strings.Contains(strings.ToLower(line), marker) {
			return line
		}
	}
	return ""
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
