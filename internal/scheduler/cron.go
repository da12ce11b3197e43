package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/Workman/internal/domain"
)

// cronParser — парсер cron-выражений.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateCronExpr проверяет валидность cron-выражения.
func ValidateCronExpr(cronExpr string) error {
	_, err := cronParser.Parse(cronExpr)
	if err != nil {
		return fmt.Errorf("%w: invalid cron expression %q: %v", domain.ErrInvalidRecurrence, cronExpr, err)
	}
	return nil
}

// ValidatePattern проверяет шаблон повторения, включая cron-выражение.
func ValidatePattern(p *domain.RecurrencePattern) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.Type == domain.RecurCron {
		return ValidateCronExpr(p.Expr)
	}
	return nil
}

// NextOccurrence вычисляет первое вхождение шаблона строго после after.
//
// Вхождения выровнены по DateStart: DateStart + k*Interval единиц.
// Если after раньше DateStart, возвращается DateStart.
// Результат в UTC; окончание повторения (DateEnd) проверяет вызывающий.
func NextOccurrence(p *domain.RecurrencePattern, after time.Time) (time.Time, error) {
	if err := ValidatePattern(p); err != nil {
		return time.Time{}, err
	}

	start := p.DateStart.UTC()
	after = after.UTC()

	if p.Type == domain.RecurCron {
		return nextCron(p.Expr, start, after)
	}

	if after.Before(start) {
		return start, nil
	}

	if step := p.Step(); step > 0 {
		k := after.Sub(start)/step + 1
		return start.Add(k * step), nil
	}

	months := p.Interval
	if p.Type == domain.RecurYear {
		months *= 12
	}
	return nextByMonths(start, after, months, p.DayOfMonth), nil
}

// nextCron вычисляет следующее время по cron-выражению.
func nextCron(expr string, start, after time.Time) (time.Time, error) {
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", expr, err)
	}

	from := after
	if start.After(from) {
		// Вхождение ровно в start тоже подходит
		from = start.Add(-time.Second)
	}
	return schedule.Next(from).UTC(), nil
}

// nextByMonths ищет первое start + k*step месяцев после after.
func nextByMonths(start, after time.Time, step, dayOfMonth int) time.Time {
	elapsed := (after.Year()-start.Year())*12 + int(after.Month()-start.Month())
	k := elapsed/step - 1
	if k < 0 {
		k = 0
	}

	for {
		candidate := addMonths(start, k*step, dayOfMonth)
		if candidate.After(after) {
			return candidate
		}
		k++
	}
}

// addMonths сдвигает t на n месяцев.
// День берётся из dayOfMonth (или из t, если 0) и ограничивается длиной месяца.
func addMonths(t time.Time, n, dayOfMonth int) time.Time {
	year, month := t.Year(), t.Month()+time.Month(n)
	first := time.Date(year, month, 1, t.Hour(), t.Minute(), t.Second(), 0, time.UTC)

	day := dayOfMonth
	if day == 0 {
		day = t.Day()
	}
	if last := daysIn(first.Year(), first.Month()); day > last {
		day = last
	}
	return first.AddDate(0, 0, day-1)
}

// daysIn возвращает количество дней в месяце.
func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
