package domain

import (
	"errors"
	"fmt"
	"time"
)

// RecurrenceType — единица шага повторения.
type RecurrenceType string

const (
	RecurMinute RecurrenceType = "minute"
	RecurHour   RecurrenceType = "hour"
	RecurDay    RecurrenceType = "day"
	RecurWeek   RecurrenceType = "week"
	RecurMonth  RecurrenceType = "month"
	RecurYear   RecurrenceType = "year"

	// RecurCron — повторение по cron-выражению (Expr), Interval игнорируется.
	RecurCron RecurrenceType = "cron"
)

// ErrInvalidRecurrence — некорректный шаблон повторения.
var ErrInvalidRecurrence = errors.New("invalid recurrence pattern")

// RecurrencePattern описывает повторяющееся расписание:
// шаг Interval единиц Type начиная с DateStart.
type RecurrencePattern struct {
	// Type — единица шага.
	Type RecurrenceType `json:"type"`

	// Interval — количество единиц между запусками (>= 1).
	Interval int `json:"interval"`

	// DateStart — момент первого запуска, от него отсчитываются шаги.
	DateStart time.Time `json:"date_start"`

	// DateEnd — после этого момента новые вхождения не создаются.
	DateEnd *time.Time `json:"date_end,omitempty"`

	// DayOfMonth — день месяца для Type == month.
	// 0 — брать день из DateStart. Если в месяце меньше дней, берётся последний.
	DayOfMonth int `json:"day_of_month,omitempty"`

	// Expr — cron-выражение для Type == cron.
	Expr string `json:"expr,omitempty"`
}

// ParseRecurrenceType разбирает строковое имя единицы.
func ParseRecurrenceType(s string) (RecurrenceType, error) {
	switch t := RecurrenceType(s); t {
	case RecurMinute, RecurHour, RecurDay, RecurWeek, RecurMonth, RecurYear, RecurCron:
		return t, nil
	}
	return "", fmt.Errorf("%w: unknown type %q", ErrInvalidRecurrence, s)
}

// Validate проверяет поля шаблона.
// Синтаксис cron-выражения проверяется планировщиком.
func (p *RecurrencePattern) Validate() error {
	if _, err := ParseRecurrenceType(string(p.Type)); err != nil {
		return err
	}
	if p.Type == RecurCron {
		if p.Expr == "" {
			return fmt.Errorf("%w: cron type requires expr", ErrInvalidRecurrence)
		}
		return nil
	}
	if p.Interval < 1 {
		return fmt.Errorf("%w: interval must be >= 1, got %d", ErrInvalidRecurrence, p.Interval)
	}
	if p.DayOfMonth < 0 || p.DayOfMonth > 31 {
		return fmt.Errorf("%w: day_of_month out of range: %d", ErrInvalidRecurrence, p.DayOfMonth)
	}
	if p.DateEnd != nil && p.DateEnd.Before(p.DateStart) {
		return fmt.Errorf("%w: date_end before date_start", ErrInvalidRecurrence)
	}
	return nil
}

// Ended проверяет, закончилось ли повторение к моменту t.
func (p *RecurrencePattern) Ended(t time.Time) bool {
	return p.DateEnd != nil && t.After(*p.DateEnd)
}

// Step возвращает фиксированную длительность шага.
// Для месяцев, лет и cron возвращает 0: их шаг зависит от календаря.
func (p *RecurrencePattern) Step() time.Duration {
	n := time.Duration(p.Interval)
	switch p.Type {
	case RecurMinute:
		return n * time.Minute
	case RecurHour:
		return n * time.Hour
	case RecurDay:
		return n * 24 * time.Hour
	case RecurWeek:
		return n * 7 * 24 * time.Hour
	}
	return 0
}
