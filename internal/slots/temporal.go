// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package slots

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

var recurrencePatterns = []struct {
	re    *regexp.Regexp
	value string
}{
	{regexp.MustCompile(`(?i)\b(?:every\s+weekday|on\s+weekdays|weekdays)\b`), "weekdays"},
	{regexp.MustCompile(`(?i)\b(?:every\s+weekend|on\s+weekends|weekends)\b`), "weekends"},
	{regexp.MustCompile(`(?i)\b(?:every\s+day|each\s+day|daily)\b`), "daily"},
	{regexp.MustCompile(`(?i)\b(?:every|each)\s+(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`), "weekly"},
	{regexp.MustCompile(`(?i)\b(?:every\s+week|each\s+week|weekly)\b`), "weekly"},
	{regexp.MustCompile(`(?i)\b(?:every\s+month|each\s+month|monthly)\b`), "monthly"},
	{regexp.MustCompile(`(?i)\b(?:every\s+year|each\s+year|yearly|annually)\b`), "yearly"},
}

var (
	durationRe = regexp.MustCompile(`(?i)\bfor\s+(an?|one|two|three|four|five|six|\d+(?:\.\d+)?)\s*(hours?|hrs?|h|minutes?|mins?|m)\b`)
	halfHourRe = regexp.MustCompile(`(?i)\bfor\s+(?:half\s+an\s+hour|a\s+half\s+hour|30\s+min)\b`)

	bareHourRe = regexp.MustCompile(`(?i)\bat\s+(\d{1,2})(?::(\d{2}))?\b`)
	// rejects bare-hour matches that are really "9am" or "12:30pm"
	meridiemRe = regexp.MustCompile(`(?i)^(?::\d|\s*(?:a\.?m\b|p\.?m\b))`)

	rangeRe = regexp.MustCompile(`(?i)\b(from\s+)?(\d{1,2})(?::(\d{2}))?\s*(am|pm)?\s*(?:-|to|until|till)\s*(\d{1,2})(?::(\d{2}))?\s*(am|pm)?\b`)
)

var wordNumbers = map[string]float64{
	"a": 1, "an": 1, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6,
}

// temporalStage resolves recurrence, explicit durations, time ranges and
// single points in that order. Matched text is consumed so later stages do
// not see it.
func (e *Extractor) temporalStage(r *run) {
	for _, p := range recurrencePatterns {
		loc := p.re.FindStringSubmatchIndex(r.text)
		if loc == nil {
			continue
		}
		value := p.value
		if len(loc) >= 4 && loc[2] >= 0 {
			value = "weekly:" + strings.ToLower(r.text[loc[2]:loc[3]])
		}
		r.set("recurrence", value)
		r.consume(loc[0], loc[1])
		break
	}

	if loc := halfHourRe.FindStringIndex(r.text); loc != nil {
		r.explicitMinutes = 30
		r.consume(loc[0], loc[1])
	} else if m := durationRe.FindStringSubmatchIndex(r.text); m != nil {
		if minutes := durationMinutes(r.text[m[2]:m[3]], r.text[m[4]:m[5]]); minutes > 0 {
			r.explicitMinutes = minutes
			r.consume(m[0], m[1])
		}
	}

	if !e.rangeLayer(r) {
		e.pointLayer(r)
	}

	switch {
	case r.explicitMinutes > 0:
		r.set("duration_minutes", r.explicitMinutes)
	case r.impliedMinutes > 0:
		r.set("duration_minutes", r.impliedMinutes)
	}
}

func durationMinutes(amount, unit string) int {
	n, ok := wordNumbers[strings.ToLower(amount)]
	if !ok {
		v, err := strconv.ParseFloat(amount, 64)
		if err != nil {
			return 0
		}
		n = v
	}
	if strings.HasPrefix(strings.ToLower(unit), "h") {
		return int(n * 60)
	}
	return int(n)
}

// rangeLayer recognizes "from 2 to 4pm" style ranges. The day comes from any
// other date expression in the text and defaults to the reference date.
func (e *Extractor) rangeLayer(r *run) bool {
	text := r.blanked()
	m := rangeRe.FindStringSubmatchIndex(text)
	if m == nil {
		return false
	}
	group := func(i int) string {
		if m[2*i] < 0 {
			return ""
		}
		return strings.ToLower(text[m[2*i]:m[2*i+1]])
	}
	from, h1s, m1s, mer1, h2s, m2s, mer2 := group(1), group(2), group(3), group(4), group(5), group(6), group(7)
	if from == "" && mer1 == "" && mer2 == "" && m1s == "" && m2s == "" {
		return false
	}

	h1, _ := strconv.Atoi(h1s)
	h2, _ := strconv.Atoi(h2s)
	min1, _ := strconv.Atoi(m1s)
	min2, _ := strconv.Atoi(m2s)
	if h1 > 23 || h2 > 23 || min1 > 59 || min2 > 59 {
		return false
	}

	if mer1 == "" && mer2 != "" {
		mer1 = mer2
		if to24(h1, mer1) > to24(h2, mer2) {
			mer1 = "am"
		}
	}
	h1 = to24(h1, mer1)
	h2 = to24(h2, mer2)

	r.consume(m[0], m[1])

	day := r.base
	if res, err := e.parser.Parse(r.blanked(), r.base); err == nil && res != nil {
		day = res.Time
		r.consume(res.Index, res.Index+len(res.Text))
	}

	start := time.Date(day.Year(), day.Month(), day.Day(), h1, min1, 0, 0, day.Location())
	end := time.Date(day.Year(), day.Month(), day.Day(), h2, min2, 0, 0, day.Location())
	if !end.After(start) {
		if h2 < 12 && mer2 == "" {
			end = end.Add(12 * time.Hour)
		} else {
			end = end.Add(24 * time.Hour)
		}
	}

	r.set("datetime_range", map[string]any{
		"start": start.Format(time.RFC3339),
		"end":   end.Format(time.RFC3339),
	})
	r.impliedMinutes = int(end.Sub(start).Minutes())
	return true
}

func to24(h int, meridiem string) int {
	switch meridiem {
	case "pm":
		if h < 12 {
			return h + 12
		}
	case "am":
		if h == 12 {
			return 0
		}
	}
	return h
}

func (e *Extractor) pointLayer(r *run) {
	if e.bareHour(r) {
		return
	}
	res, err := e.parser.Parse(r.blanked(), r.base)
	if err != nil {
		log.Debugf("slots: date parse failed: %v", err)
		return
	}
	if res == nil {
		return
	}
	r.set("datetime_point", res.Time.In(r.base.Location()).Format(time.RFC3339))
	r.consume(res.Index, res.Index+len(res.Text))
}

// bareHour handles "at 9" and "at 9:30" without a meridiem. Hours 1 to 6 are
// read as afternoon. The day comes from any other date expression.
func (e *Extractor) bareHour(r *run) bool {
	text := r.blanked()
	m := bareHourRe.FindStringSubmatchIndex(text)
	if m == nil || meridiemRe.MatchString(text[m[1]:]) {
		return false
	}
	hour, _ := strconv.Atoi(text[m[2]:m[3]])
	minute := 0
	if m[4] >= 0 {
		minute, _ = strconv.Atoi(text[m[4]:m[5]])
	}
	if hour < 1 || hour > 23 || minute > 59 {
		return false
	}
	if hour <= 6 {
		hour += 12
	}
	r.consume(m[0], m[1])

	day := r.base
	if res, err := e.parser.Parse(r.blanked(), r.base); err == nil && res != nil {
		day = res.Time.In(r.base.Location())
		r.consume(res.Index, res.Index+len(res.Text))
	}
	at := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, r.base.Location())
	r.set("datetime_point", at.Format(time.RFC3339))
	return true
}
