package service

import (
	"regexp"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// DateParser finds the first natural-language date expression in text,
// interpreted relative to now.
type DateParser interface {
	Parse(text string, now time.Time) (time.Time, bool)
}

// monthContext matches words that make a following bare "may" the month.
var monthContext = regexp.MustCompile(`(?i)\b(in|during|of|early|late|mid|next|this)\s+$`)

var weekdayPattern = regexp.MustCompile(`(?i)\b(mon|tue|tues|wed|wednes|thu|thur|thurs|fri|sat|satur|sun)(day)?\b`)

// WhenParser is a DateParser backed by olebedev/when with English and common rules.
type WhenParser struct {
	w *when.Parser
}

func NewWhenParser() *WhenParser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return &WhenParser{w: w}
}

// Parse prefers future interpretations: a weekday expression that resolves
// before today is moved forward one week. A bare "may" is read as the modal verb unless a preceding word marks it as
// the month; parsing then continues after it.
func (p *WhenParser) Parse(text string, now time.Time) (time.Time, bool) {
	offset := 0
	for {
		r, err := p.w.Parse(text[offset:], now)
		if err != nil || r == nil {
			return time.Time{}, false
		}
		end := offset + r.Index + len(r.Text)
		if end <= offset || end > len(text) {
			return time.Time{}, false
		}
		if strings.EqualFold(strings.TrimSpace(r.Text), "may") && !monthContext.MatchString(text[:offset+r.Index]) {
			offset = end
			continue
		}
		return p.futureOf(r.Time, r.Text, now), true
	}
}

func (p *WhenParser) futureOf(match time.Time, matchText string, now time.Time) time.Time {
	t := match.In(now.Location())
	if calendarDay(t).Before(calendarDay(now)) && weekdayPattern.MatchString(matchText) {
		t = t.AddDate(0, 0, 7)
	}
	return t
}

func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func sameDay(a, b time.Time) bool {
	return calendarDay(a).Equal(calendarDay(b.In(a.Location())))
}
