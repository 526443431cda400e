package core

import "time"

// Advance returns the next execution date after d for the given frequency.
//
// Month-based frequencies keep the day-of-month and clamp to the last day
// of the target month when it is shorter (Jan 31 + monthly = Feb 28/29).
// Rolling into the following month would drift the anchor day forever, so
// clamping is applied consistently for monthly, quarterly and yearly steps.
//
// The result is strictly after d for every valid frequency.
func Advance(d Date, f Frequency) (Date, error) {
	switch f {
	case Daily:
		return Date{Time: d.AddDate(0, 0, 1)}, nil
	case Weekly:
		return Date{Time: d.AddDate(0, 0, 7)}, nil
	case Biweekly:
		return Date{Time: d.AddDate(0, 0, 14)}, nil
	case Monthly:
		return addMonthsClamped(d, 1), nil
	case Quarterly:
		return addMonthsClamped(d, 3), nil
	case Yearly:
		return addMonthsClamped(d, 12), nil
	default:
		return Date{}, ErrInvalidFrequency
	}
}

// addMonthsClamped adds months without the AddDate rollover (Jan 31 + 1
// month must not become Mar 3).
func addMonthsClamped(d Date, months int) Date {
	year, month, day := d.Date()
	m := int(month) + months
	y := year + (m-1)/12
	m = (m-1)%12 + 1

	if last := lastDayOfMonth(y, m); day > last {
		day = last
	}
	return NewDate(y, m, day)
}

// lastDayOfMonth returns the number of days in the given month.
func lastDayOfMonth(year, month int) int {
	// Day zero of the following month.
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
