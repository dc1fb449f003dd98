package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var defaultRules = Rules{
	WorkStart:     "09:00",
	WorkEnd:       "17:00",
	Duration:      60,
	AdvanceHours:  3,
	AllowWeekends: false,
}

// 2024-02-15 - четверг
func thursdayAt(hhmm string) time.Time {
	t, err := time.Parse("2006-01-02 15:04", "2024-02-15 "+hhmm)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}

func TestGrid(t *testing.T) {
	tests := []struct {
		name      string
		start     string
		end       string
		duration  int
		want      []string
		wantError bool
	}{
		{
			name:     "рабочий день по часу",
			start:    "09:00",
			end:      "17:00",
			duration: 60,
			want:     []string{"09:00", "10:00", "11:00", "12:00", "13:00", "14:00", "15:00", "16:00"},
		},
		{
			name:     "полуинтервал: конец дня не включается",
			start:    "09:00",
			end:      "10:00",
			duration: 30,
			want:     []string{"09:00", "09:30"},
		},
		{
			name:     "шаг не делит день нацело",
			start:    "09:00",
			end:      "10:10",
			duration: 45,
			want:     []string{"09:00", "09:45"},
		},
		{
			name:      "нулевая длительность",
			start:     "09:00",
			end:       "17:00",
			duration:  0,
			wantError: true,
		},
		{
			name:      "отрицательная длительность",
			start:     "09:00",
			end:       "17:00",
			duration:  -30,
			wantError: true,
		},
		{
			name:      "начало позже конца",
			start:     "17:00",
			end:       "09:00",
			duration:  60,
			wantError: true,
		},
		{
			name:      "начало равно концу",
			start:     "09:00",
			end:       "09:00",
			duration:  60,
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Grid(tt.start, tt.end, tt.duration)
			if tt.wantError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseTimeOfDay(t *testing.T) {
	minutes, err := ParseTimeOfDay("09:30")
	require.NoError(t, err)
	assert.Equal(t, 9*60+30, minutes)

	_, err = ParseTimeOfDay("25:00")
	assert.Error(t, err)

	_, err = ParseTimeOfDay("9:30 AM")
	assert.Error(t, err)
}

func TestFormatTimeOfDay(t *testing.T) {
	assert.Equal(t, "09:30", FormatTimeOfDay(9*60+30))
	assert.Equal(t, "00:00", FormatTimeOfDay(0))
	assert.Equal(t, "23:59", FormatTimeOfDay(23*60+59))
}

func TestEndTime(t *testing.T) {
	end, err := EndTime("14:00", 60)
	require.NoError(t, err)
	assert.Equal(t, "15:00", end)

	end, err = EndTime("09:30", 45)
	require.NoError(t, err)
	assert.Equal(t, "10:15", end)
}

func TestIsPastDate(t *testing.T) {
	now := thursdayAt("10:00")

	assert.True(t, IsPastDate("2024-02-14", now))
	// Сегодняшний день прошедшим не считается
	assert.False(t, IsPastDate("2024-02-15", now))
	assert.False(t, IsPastDate("2024-02-16", now))
}

func TestIsWeekend(t *testing.T) {
	assert.True(t, IsWeekend("2024-02-10")) // суббота
	assert.True(t, IsWeekend("2024-02-11")) // воскресенье
	assert.False(t, IsWeekend("2024-02-15"))
	assert.False(t, IsWeekend("2024-02-12")) // понедельник
}

func TestMeetsAdvanceNotice(t *testing.T) {
	now := thursdayAt("10:00")

	assert.True(t, MeetsAdvanceNotice("2024-02-15", "14:00", now, 3))
	assert.False(t, MeetsAdvanceNotice("2024-02-15", "12:00", now, 3))
	// Ровно на границе окна - уже недоступен
	assert.False(t, MeetsAdvanceNotice("2024-02-15", "13:00", now, 3))
	// Другой день проходит всегда при нулевом запасе
	assert.True(t, MeetsAdvanceNotice("2024-02-16", "09:00", now, 0))
}

func TestValidate(t *testing.T) {
	now := thursdayAt("10:00")

	tests := []struct {
		name      string
		date      string
		timeOfDay string
		rules     Rules
		wantRules []string
	}{
		{
			name:      "допустимая запись",
			date:      "2024-02-15",
			timeOfDay: "14:00",
			rules:     defaultRules,
			wantRules: nil,
		},
		{
			name:      "прошедшая суббота при запрете выходных",
			date:      "2024-02-10",
			timeOfDay: "14:00",
			rules:     defaultRules,
			wantRules: []string{RulePastDate, RuleWeekend, RuleAdvanceNotice},
		},
		{
			name:      "будущая суббота: выходной независимо от времени и запаса",
			date:      "2024-02-17",
			timeOfDay: "09:00",
			rules:     defaultRules,
			wantRules: []string{RuleWeekend},
		},
		{
			name:      "суббота при разрешённых выходных проходит",
			date:      "2024-02-17",
			timeOfDay: "09:00",
			rules: Rules{
				WorkStart: "09:00", WorkEnd: "17:00", Duration: 60,
				AdvanceHours: 3, AllowWeekends: true,
			},
			wantRules: nil,
		},
		{
			name:      "вне рабочего дня",
			date:      "2024-02-16",
			timeOfDay: "18:00",
			rules:     defaultRules,
			wantRules: []string{RuleOutsideHours},
		},
		{
			name:      "конец рабочего дня не слот",
			date:      "2024-02-16",
			timeOfDay: "17:00",
			rules:     defaultRules,
			wantRules: []string{RuleOutsideHours},
		},
		{
			name:      "офсет мимо сетки",
			date:      "2024-02-16",
			timeOfDay: "14:30",
			rules:     defaultRules,
			wantRules: []string{RuleOutsideHours},
		},
		{
			name:      "мало запаса времени",
			date:      "2024-02-15",
			timeOfDay: "12:00",
			rules:     defaultRules,
			wantRules: []string{RuleAdvanceNotice},
		},
		{
			name:      "нарушения собираются все, а не первое",
			date:      "2024-02-10",
			timeOfDay: "20:00",
			rules:     defaultRules,
			wantRules: []string{RulePastDate, RuleWeekend, RuleOutsideHours, RuleAdvanceNotice},
		},
		{
			name:      "кривая дата",
			date:      "15-02-2024",
			timeOfDay: "14:00",
			rules:     defaultRules,
			wantRules: []string{RuleInvalidDate},
		},
		{
			name:      "кривое время",
			date:      "2024-02-15",
			timeOfDay: "2pm",
			rules:     defaultRules,
			wantRules: []string{RuleInvalidTime},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			violations := Validate(tt.date, tt.timeOfDay, now, tt.rules)

			var got []string
			for _, v := range violations {
				got = append(got, v.Rule)
			}
			assert.Equal(t, tt.wantRules, got)
		})
	}
}

func TestAvailableOffsets(t *testing.T) {
	now := thursdayAt("10:00")

	t.Run("сегодня отсекаются офсеты без запаса", func(t *testing.T) {
		offsets, err := AvailableOffsets("2024-02-15", now, defaultRules)
		require.NoError(t, err)
		// 13:00 ровно на границе now+3h и не проходит
		assert.Equal(t, []string{"14:00", "15:00", "16:00"}, offsets)
	})

	t.Run("будущий день отдаёт полную сетку", func(t *testing.T) {
		offsets, err := AvailableOffsets("2024-02-16", now, defaultRules)
		require.NoError(t, err)
		assert.Equal(t, []string{"09:00", "10:00", "11:00", "12:00", "13:00", "14:00", "15:00", "16:00"}, offsets)
	})

	t.Run("прошедшая дата пуста", func(t *testing.T) {
		offsets, err := AvailableOffsets("2024-02-14", now, defaultRules)
		require.NoError(t, err)
		assert.Empty(t, offsets)
	})

	t.Run("выходной пуст при запрете", func(t *testing.T) {
		offsets, err := AvailableOffsets("2024-02-17", now, defaultRules)
		require.NoError(t, err)
		assert.Empty(t, offsets)
	})

	t.Run("кривая дата это ошибка", func(t *testing.T) {
		_, err := AvailableOffsets("not-a-date", now, defaultRules)
		assert.Error(t, err)
	})
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "45 мин", FormatDuration(45))
	assert.Equal(t, "1 ч", FormatDuration(60))
	assert.Equal(t, "1 ч 30 мин", FormatDuration(90))
	assert.Equal(t, "3 ч", FormatDuration(180))
}

func TestCountdown(t *testing.T) {
	now := thursdayAt("10:00")

	assert.Equal(t, "уже наступило", Countdown(now, now))
	assert.Equal(t, "меньше минуты", Countdown(now, now.Add(30*time.Second)))
	assert.Equal(t, "45 мин", Countdown(now, now.Add(45*time.Minute)))
	assert.Equal(t, "3 ч", Countdown(now, now.Add(3*time.Hour)))
	assert.Equal(t, "3 ч 15 мин", Countdown(now, now.Add(3*time.Hour+15*time.Minute)))
	assert.Equal(t, "2 дн", Countdown(now, now.Add(48*time.Hour)))
	assert.Equal(t, "2 дн 5 ч", Countdown(now, now.Add(53*time.Hour)))
}
