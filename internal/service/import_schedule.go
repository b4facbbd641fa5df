package service

import (
	"fmt"
	"time"

	"github.com/noah-isme/course-eval-api/internal/dto"
)

const appointmentLayout = "02.01.2006 15:04"

const (
	examNameDE = "Klausur"
	examNameEN = "Exam"
)

// evaluationWindow is the voting period: a local start instant and an inclusive end date.
type evaluationWindow struct {
	Start   time.Time
	EndDate time.Time
}

func parseAppointment(raw string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(appointmentLayout, raw, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid appointment time %q: %w", raw, err)
	}
	return t, nil
}

// courseEnd returns the latest appointment end of an event.
func courseEnd(appointments []dto.ImportAppointment, loc *time.Location) (time.Time, error) {
	if len(appointments) == 0 {
		return time.Time{}, fmt.Errorf("event has no appointments")
	}
	var latest time.Time
	for i, appointment := range appointments {
		end, err := parseAppointment(appointment.End, loc)
		if err != nil {
			return time.Time{}, err
		}
		if i == 0 || end.After(latest) {
			latest = end
		}
	}
	return latest, nil
}

// mondayIndex numbers weekdays from Monday = 0 to Sunday = 6.
func mondayIndex(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

func atEight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 8, 0, 0, 0, t.Location())
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// courseWindow opens at 08:00 on the Monday of the week before the course ends and closes on the
// Sunday of the week the course ends.
func courseWindow(end time.Time) evaluationWindow {
	idx := mondayIndex(end)
	return evaluationWindow{
		Start:   atEight(end).AddDate(0, 0, -(7 + idx)),
		EndDate: dateOnly(end).AddDate(0, 0, 6-idx),
	}
}

// examWindow opens at 08:00 the day after the exam and closes three days after it.
func examWindow(end time.Time) evaluationWindow {
	return evaluationWindow{
		Start:   atEight(end).AddDate(0, 0, 1),
		EndDate: dateOnly(end).AddDate(0, 0, 3),
	}
}
