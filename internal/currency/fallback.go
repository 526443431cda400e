package currency

// fallbackINRRates is the built-in last-resort rate table, expressed as
// 1 INR = rate units of each currency. Approximate values; they only serve
// when neither a live fetch nor a cached snapshot is available, so the app
// is never without a usable rate.
var fallbackINRRates = map[string]float64{
	"INR": 1.0,
	"USD": 0.012,
	"EUR": 0.011,
	"GBP": 0.0094,
	"JPY": 1.80,
	"AUD": 0.018,
	"CAD": 0.016,
	"CHF": 0.0106,
	"CNY": 0.086,
	"SGD": 0.016,
	"AED": 0.044,
	"SAR": 0.045,
	"HKD": 0.094,
	"NZD": 0.020,
	"ZAR": 0.21,
	"SEK": 0.13,
	"THB": 0.42,
}

// fallbackRates rebases the built-in table onto the configured base
// currency. An unknown base keeps the INR-relative values and pins the
// base itself to 1.0, which degrades accuracy but never leaves a gap.
func fallbackRates(base string) map[string]float64 {
	baseRate, ok := fallbackINRRates[base]
	if !ok || baseRate == 0 {
		baseRate = 1.0
	}

	out := make(map[string]float64, len(fallbackINRRates))
	for code, r := range fallbackINRRates {
		out[code] = r / baseRate
	}
	out[base] = 1.0
	return out
}
