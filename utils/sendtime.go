package utils

import (
	"time"

	"leadpilot/models"
)

// Derived send times always land inside this window so sends look human even
// before the campaign-level gates are applied.
const (
	jitterStartHour = 9
	jitterHourSpan  = 8 // 9:00 through 16:59 local
)

// SendTime is the computed next-send instant for a contact. Immediate marks
// a first step with no configured delay.
type SendTime struct {
	At        time.Time
	Immediate bool
}

// ContactSeed reduces a contact id to a stable seed in [0, 1000). It is a
// plain 32-bit polynomial rolling hash so repeated evaluations of the same
// contact always produce the same seed, which is what makes re-running the
// calculator after a crash safe. Step participates so follow-ups get their
// own time-of-day.
func ContactSeed(contactID string, step int) int {
	var h int32
	for _, ch := range contactID {
		h = h*31 + int32(ch)
	}
	seed := int(h+int32(step)) % 1000
	if seed < 0 {
		seed += 1000
	}
	return seed
}

// JitterClock maps a seed to an intended local send time: an hour in
// [9, 17) and a pseudo-random minute.
func JitterClock(seed int) (hour, minute int) {
	return jitterStartHour + seed%jitterHourSpan, (seed * 7) % 60
}

// DueInput carries everything NextSendTime needs so it stays a pure
// function over its arguments.
type DueInput struct {
	ContactID string
	Location  string
	CreatedAt time.Time

	// CurrentStep is the count of completed (sent) steps; the next step to
	// send is Steps[CurrentStep] in step-number order.
	CurrentStep int
	LastSentAt  *time.Time

	Steps []models.SequenceStep
}

// NextSendTime computes the exact instant the contact's next message should
// go out, or nil when the sequence is exhausted. The result depends only on
// the input, so repeated evaluation after a crash lands on the same instant.
// Sending-window enforcement happens at dispatch; this only places the
// candidate on a business day at the jittered clock.
func (in DueInput) NextSendTime() *SendTime {
	if in.CurrentStep < 0 || in.CurrentStep >= len(in.Steps) {
		return nil
	}
	// Positional, not by step number: Steps is in step-number order and the
	// count of sent steps indexes straight into it, so a gap in the stored
	// numbering can never strand a contact with steps still ahead.
	next := &in.Steps[in.CurrentStep]

	loc := LoadZone(ResolveTimezone(in.Location))
	seed := ContactSeed(in.ContactID, next.StepNumber)
	hour, minute := JitterClock(seed)

	if in.CurrentStep == 0 && next.TimingDays == 0 {
		// Immediate first touch: the contact's creation day at the derived
		// time, rolled off weekends.
		candidate := atClock(in.CreatedAt.In(loc), hour, minute)
		candidate = atClock(NextBusinessDay(candidate), hour, minute)
		return &SendTime{At: candidate, Immediate: true}
	}

	base := in.CreatedAt
	if in.CurrentStep > 0 && in.LastSentAt != nil {
		base = *in.LastSentAt
	}

	candidate := base.In(loc).AddDate(0, 0, next.TimingDays)
	candidate = atClock(NextBusinessDay(candidate), hour, minute)

	return &SendTime{At: candidate}
}

func atClock(t time.Time, hour, minute int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), hour, minute, 0, 0, t.Location())
}
