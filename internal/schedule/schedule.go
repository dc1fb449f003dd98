package schedule

import (
	"fmt"
	"time"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Коды нарушений правил записи. Попадают в ValidationError сервисного слоя.
const (
	RuleInvalidDate   = "invalid-date"
	RuleInvalidTime   = "invalid-time"
	RulePastDate      = "past-date"
	RuleWeekend       = "weekend-not-allowed"
	RuleOutsideHours  = "outside-working-hours"
	RuleAdvanceNotice = "advance-notice"
)

// Violation - одно нарушенное правило с human-readable пояснением.
type Violation struct {
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// Rules описывает рабочую сетку и ограничения на запись.
type Rules struct {
	WorkStart     string // начало рабочего дня, "15:04"
	WorkEnd       string // конец рабочего дня, "15:04"
	Duration      int    // длительность слота в минутах
	AdvanceHours  int    // минимальный запас до начала слота в часах
	AllowWeekends bool
}

// ParseDate разбирает дату формата "2006-01-02" в указанной таймзоне.
func ParseDate(date string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", date, err)
	}
	return d, nil
}

// ParseTimeOfDay разбирает время формата "15:04" в минуты от полуночи.
func ParseTimeOfDay(timeOfDay string) (int, error) {
	t, err := time.Parse(TimeLayout, timeOfDay)
	if err != nil {
		return 0, fmt.Errorf("parse time of day %q: %w", timeOfDay, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// FormatTimeOfDay форматирует минуты от полуночи обратно в "15:04".
func FormatTimeOfDay(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// SlotStart собирает дату и время в момент начала слота в указанной таймзоне.
func SlotStart(date, timeOfDay string, loc *time.Location) (time.Time, error) {
	start, err := time.ParseInLocation(DateLayout+" "+TimeLayout, date+" "+timeOfDay, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse slot start %q %q: %w", date, timeOfDay, err)
	}
	return start, nil
}

// EndTime возвращает время конца слота, начавшегося в start и длящегося duration минут.
func EndTime(start string, duration int) (string, error) {
	startMin, err := ParseTimeOfDay(start)
	if err != nil {
		return "", err
	}
	return FormatTimeOfDay(startMin + duration), nil
}

// Grid строит полную сетку офсетов рабочего дня: каждый шаг duration
// минут в полуинтервале [workStart, workEnd).
func Grid(workStart, workEnd string, duration int) ([]string, error) {
	if duration <= 0 {
		return nil, fmt.Errorf("slot duration must be positive, got %d", duration)
	}
	startMin, err := ParseTimeOfDay(workStart)
	if err != nil {
		return nil, err
	}
	endMin, err := ParseTimeOfDay(workEnd)
	if err != nil {
		return nil, err
	}
	if startMin >= endMin {
		return nil, fmt.Errorf("work start %s must be before work end %s", workStart, workEnd)
	}

	var offsets []string
	for m := startMin; m < endMin; m += duration {
		offsets = append(offsets, FormatTimeOfDay(m))
	}
	return offsets, nil
}

// IsToday проверяет, что дата совпадает с календарным днём момента now.
func IsToday(date string, now time.Time) bool {
	return now.Format(DateLayout) == date
}

// IsPastDate проверяет, что дата целиком в прошлом относительно now.
// Сегодняшний день прошедшим не считается.
func IsPastDate(date string, now time.Time) bool {
	day, err := time.ParseInLocation(DateLayout, date, now.Location())
	if err != nil {
		return false
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return day.Before(today)
}

// IsWeekend проверяет, что дата приходится на субботу или воскресенье.
func IsWeekend(date string) bool {
	day, err := time.Parse(DateLayout, date)
	if err != nil {
		return false
	}
	return day.Weekday() == time.Saturday || day.Weekday() == time.Sunday
}

// MeetsAdvanceNotice проверяет, что до начала слота остаётся строго больше
// minHours часов. Слот ровно на границе окна уже недоступен.
func MeetsAdvanceNotice(date, timeOfDay string, now time.Time, minHours int) bool {
	start, err := SlotStart(date, timeOfDay, now.Location())
	if err != nil {
		return false
	}
	return start.After(now.Add(time.Duration(minHours) * time.Hour))
}

// Validate прогоняет координаты слота через все правила записи и возвращает
// полный список нарушений. Пустой список означает, что запись допустима.
func Validate(date, timeOfDay string, now time.Time, rules Rules) []Violation {
	var violations []Violation

	_, dateErr := ParseDate(date, now.Location())
	if dateErr != nil {
		violations = append(violations, Violation{
			Rule:    RuleInvalidDate,
			Message: fmt.Sprintf("date %q is not in format %s", date, DateLayout),
		})
	}
	startMin, todErr := ParseTimeOfDay(timeOfDay)
	if todErr != nil {
		violations = append(violations, Violation{
			Rule:    RuleInvalidTime,
			Message: fmt.Sprintf("time %q is not in format %s", timeOfDay, TimeLayout),
		})
	}
	if dateErr != nil || todErr != nil {
		return violations
	}

	if IsPastDate(date, now) {
		violations = append(violations, Violation{
			Rule:    RulePastDate,
			Message: fmt.Sprintf("date %s is in the past", date),
		})
	}
	if !rules.AllowWeekends && IsWeekend(date) {
		violations = append(violations, Violation{
			Rule:    RuleWeekend,
			Message: fmt.Sprintf("date %s falls on a weekend", date),
		})
	}
	if !withinWorkingHours(startMin, rules) {
		violations = append(violations, Violation{
			Rule:    RuleOutsideHours,
			Message: fmt.Sprintf("time %s is outside working hours %s-%s", timeOfDay, rules.WorkStart, rules.WorkEnd),
		})
	}
	if !MeetsAdvanceNotice(date, timeOfDay, now, rules.AdvanceHours) {
		violations = append(violations, Violation{
			Rule:    RuleAdvanceNotice,
			Message: fmt.Sprintf("slot must be booked at least %s in advance", FormatDuration(rules.AdvanceHours*60)),
		})
	}
	return violations
}

// withinWorkingHours проверяет, что офсет попадает в рабочий день и выровнен
// по сетке слотов.
func withinWorkingHours(startMin int, rules Rules) bool {
	workStart, err := ParseTimeOfDay(rules.WorkStart)
	if err != nil {
		return false
	}
	workEnd, err := ParseTimeOfDay(rules.WorkEnd)
	if err != nil {
		return false
	}
	if startMin < workStart || startMin >= workEnd {
		return false
	}
	return (startMin-workStart)%rules.Duration == 0
}

// AvailableOffsets возвращает офсеты сетки, на которые ещё можно записаться
// в указанную дату. Прошедшие даты и выходные (если они запрещены) дают
// пустой результат. Для сегодняшнего дня отсекаются офсеты, не проходящие
// по запасу времени.
func AvailableOffsets(date string, now time.Time, rules Rules) ([]string, error) {
	if _, err := ParseDate(date, now.Location()); err != nil {
		return nil, err
	}
	grid, err := Grid(rules.WorkStart, rules.WorkEnd, rules.Duration)
	if err != nil {
		return nil, err
	}
	if IsPastDate(date, now) {
		return nil, nil
	}
	if !rules.AllowWeekends && IsWeekend(date) {
		return nil, nil
	}
	if !IsToday(date, now) {
		return grid, nil
	}

	var offsets []string
	for _, off := range grid {
		if MeetsAdvanceNotice(date, off, now, rules.AdvanceHours) {
			offsets = append(offsets, off)
		}
	}
	return offsets, nil
}

// FormatDuration форматирует длительность в минутах
func FormatDuration(minutes int) string {
	if minutes < 60 {
		return fmt.Sprintf("%d мин", minutes)
	}
	hours := minutes / 60
	mins := minutes % 60
	if mins == 0 {
		return fmt.Sprintf("%d ч", hours)
	}
	return fmt.Sprintf("%d ч %d мин", hours, mins)
}

// Countdown человекочитаемо описывает, сколько осталось до момента at.
func Countdown(now, at time.Time) string {
	d := at.Sub(now)
	if d <= 0 {
		return "уже наступило"
	}
	if d < time.Minute {
		return "меньше минуты"
	}
	days := int(d / (24 * time.Hour))
	hours := int(d % (24 * time.Hour) / time.Hour)
	minutes := int(d % time.Hour / time.Minute)
	switch {
	case days > 0 && hours > 0:
		return fmt.Sprintf("%d дн %d ч", days, hours)
	case days > 0:
		return fmt.Sprintf("%d дн", days)
	case hours > 0 && minutes > 0:
		return fmt.Sprintf("%d ч %d мин", hours, minutes)
	case hours > 0:
		return fmt.Sprintf("%d ч", hours)
	default:
		return fmt.Sprintf("%d мин", minutes)
	}
}
