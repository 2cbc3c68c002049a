package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// GenerateInvoiceNumber builds a human-facing invoice number for the issue date.
func GenerateInvoiceNumber(issued time.Time) string {
	return fmt.Sprintf("INV-%s-%s", issued.Format("20060102"), strings.ToUpper(RandomHex(8)))
}

// RandomHex generates a random hex string of n bytes.
func RandomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// ParseDate parses a YYYY-MM-DD calendar date into midnight UTC.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.UTC)
}

// FormatDate renders a calendar date, or "" for nil.
func FormatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(DateLayout)
}

// ParseInt safely converts string to int with a default value.
func ParseInt(s string, defaultVal int) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return defaultVal
	}
	return v
}

const maxErrLen = 900

// TrimErr keeps error text short enough for log fields and API messages.
// The cut never splits a UTF-8 sequence.
func TrimErr(msg string) string {
	msg = strings.TrimSpace(msg)
	if len(msg) <= maxErrLen {
		return msg
	}
	cut := maxErrLen
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}
