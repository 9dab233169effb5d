package service

import (
	"strings"
)

const rainAdvisory = "Rain is expected. Consider rescheduling your hike."

// HKO weather icon codes for the current-conditions report.
var iconLabels = map[int]string{
	50: "Sunny",
	51: "Sunny intervals",
	52: "Sunny periods",
	60: "Cloudy",
	61: "Overcast",
	62: "Mist",
	63: "Rainy",
	64: "Heavy rain",
	65: "Thunderstorms",
	70: "Hazy",
	71: "Very hot",
	72: "Cold",
	73: "Dry",
	74: "Humid",
}

// ConditionLabel maps the first icon code to its label.
func ConditionLabel(codes []int) string {
	if len(codes) == 0 {
		return "Unknown"
	}
	if label, ok := iconLabels[codes[0]]; ok {
		return label
	}
	return "Weather condition unknown"
}

// CurrentAdvisory returns the rain advisory when any warning mentions rain or
// the reported rainfall maximum is positive.
func CurrentAdvisory(warnings []string, rainfallMax *float64) string {
	if strings.Contains(strings.ToLower(strings.Join(warnings, " ")), "rain") {
		return rainAdvisory
	}
	if rainfallMax != nil && *rainfallMax > 0 {
		return rainAdvisory
	}
	return ""
}

// ForecastAdvisory returns the rain advisory when the forecast text mentions rain or showers.
func ForecastAdvisory(forecast string) string {
	text := strings.ToLower(forecast)
	if strings.Contains(text, "rain") || strings.Contains(text, "showers") {
		return rainAdvisory
	}
	return ""
}
