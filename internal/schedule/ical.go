package schedule

import (
	"crypto/sha256"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"
)

const maxICalLineOctets = 75

var eventTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// WriteICS renders events as an iCalendar feed. Events whose start cannot be
// parsed are skipped.
func WriteICS(w io.Writer, calendarName string, roomID int, events []Event) error {
	var sb strings.Builder
	write := func(line string) {
		sb.WriteString(foldLine(line))
		sb.WriteString("\r\n")
	}

	write("BEGIN:VCALENDAR")
	write("VERSION:2.0")
	write("PRODID:-//roomwatch//EN")
	write("CALSCALE:GREGORIAN")
	if calendarName != "" {
		write("X-WR-CALNAME:" + EscapeICalValue(calendarName))
	}

	stamp := time.Now().UTC().Format("20060102T150405Z")
	for _, ev := range events {
		dtstart, ok := formatEventTime("DTSTART", ev.Start)
		if !ok {
			continue
		}
		write("BEGIN:VEVENT")
		write("UID:" + eventUID(roomID, ev))
		write("DTSTAMP:" + stamp)
		write(dtstart)
		if dtend, ok := formatEventTime("DTEND", ev.End); ok {
			write(dtend)
		}
		write("SUMMARY:" + EscapeICalValue(ev.Title))
		if ev.Description != "" {
			write("DESCRIPTION:" + EscapeICalValue(ev.Description))
		}
		if calendarName != "" {
			write("LOCATION:" + EscapeICalValue(calendarName))
		}
		write("END:VEVENT")
	}
	write("END:VCALENDAR")

	_, err := io.WriteString(w, sb.String())
	return err
}

// formatEventTime converts a portal timestamp to an iCalendar property line.
// Zoned times become UTC, zone-less times stay floating and bare dates use
// VALUE=DATE.
func formatEventTime(prop, value string) (string, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return fmt.Sprintf("%s;VALUE=DATE:%s", prop, t.Format("20060102")), true
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return fmt.Sprintf("%s:%s", prop, t.UTC().Format("20060102T150405Z")), true
	}
	for _, layout := range eventTimeLayouts[1:] {
		if t, err := time.Parse(layout, value); err == nil {
			return fmt.Sprintf("%s:%s", prop, t.Format("20060102T150405")), true
		}
	}
	return "", false
}

func eventUID(roomID int, ev Event) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%d|%s|%s|%s", roomID, ev.Start, ev.End, ev.Title)))
	return fmt.Sprintf("%x@roomwatch", h[:16])
}

// EscapeICalValue escapes special characters for iCalendar TEXT values.
func EscapeICalValue(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, ";", "\\;")
	s = strings.ReplaceAll(s, ",", "\\,")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}

// foldLine splits a content line into 75-octet chunks joined by CRLF+space,
// never splitting a UTF-8 sequence.
func foldLine(line string) string {
	if len(line) <= maxICalLineOctets {
		return line
	}
	var sb strings.Builder
	limit := maxICalLineOctets
	for len(line) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(line[cut]) {
			cut--
		}
		sb.WriteString(line[:cut])
		sb.WriteString("\r\n ")
		line = line[cut:]
		// Continuation lines lose one octet to the leading space.
		limit = maxICalLineOctets - 1
	}
	sb.WriteString(line)
	return sb.String()
}

// UnfoldLines reverses foldLine.
func UnfoldLines(ical string) []string {
	ical = strings.ReplaceAll(ical, "\r\n", "\n")
	ical = strings.ReplaceAll(ical, "\r", "\n")
	var lines []string
	for _, line := range strings.Split(ical, "\n") {
		if len(lines) > 0 && (strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")) {
			lines[len(lines)-1] += line[1:]
			continue
		}
		lines = append(lines, line)
	}
	return lines
}
