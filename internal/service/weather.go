package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/kjstillabower/trail-transit-service/internal/client"
	"github.com/kjstillabower/trail-transit-service/internal/models"
)

const (
	todayLabel       = "Today"
	dateLabelLayout  = "Monday, 2006-01-02"
	forecastDateForm = "20060102"
	unknownTemp      = "?°C"
)

// WeatherAPI is the subset of client.HKOClient the resolver calls.
type WeatherAPI interface {
	CurrentConditions(ctx context.Context) (client.CurrentConditions, error)
	Forecast(ctx context.Context) ([]client.ForecastDay, error)
}

// WeatherResolver turns a free-text prompt into a WeatherResult for the date it mentions.
type WeatherResolver struct {
	api   WeatherAPI
	dates DateParser
	loc   *time.Location
	now   func() time.Time
}

// NewWeatherResolver returns a resolver that interprets dates in loc.
func NewWeatherResolver(api WeatherAPI, dates DateParser, loc *time.Location) *WeatherResolver {
	if loc == nil {
		loc = time.Local
	}
	return &WeatherResolver{api: api, dates: dates, loc: loc, now: time.Now}
}

// Resolve always returns a well-formed result. A non-nil error means the
// result is degraded and carries the failure in its alert text.
func (r *WeatherResolver) Resolve(ctx context.Context, prompt string) (models.WeatherResult, error) {
	now := r.now().In(r.loc)
	date, ok := r.dates.Parse(prompt, now)
	if !ok || sameDay(now, date) {
		return r.current(ctx)
	}
	return r.forecast(ctx, date.In(r.loc))
}

func (r *WeatherResolver) current(ctx context.Context) (models.WeatherResult, error) {
	cond, err := r.api.CurrentConditions(ctx)
	if err != nil {
		return models.WeatherResult{
			Date:      todayLabel,
			Condition: "Unable to fetch current weather",
			Temp:      unknownTemp,
			Alert:     fmt.Sprintf("Weather data fetch error: %v", err),
		}, err
	}

	temp := unknownTemp
	if cond.Temperature != nil {
		temp = formatNumber(*cond.Temperature) + "°C"
	}
	return models.WeatherResult{
		Date:      todayLabel,
		Condition: ConditionLabel(cond.IconCodes),
		Temp:      temp,
		Alert:     CurrentAdvisory(cond.Warnings, cond.RainfallMax),
	}, nil
}

func (r *WeatherResolver) forecast(ctx context.Context, date time.Time) (models.WeatherResult, error) {
	label := date.Format(dateLabelLayout)

	days, err := r.api.Forecast(ctx)
	if err != nil {
		return models.WeatherResult{
			Date:      label,
			Condition: "Forecast unavailable",
			Temp:      unknownTemp,
			Alert:     fmt.Sprintf("Weather forecast error: %v", err),
		}, err
	}

	want := date.Format(forecastDateForm)
	for _, d := range days {
		if d.Date != want {
			continue
		}
		humidity := fmt.Sprintf("%s–%s%%", formatNumber(d.MinHumidity), formatNumber(d.MaxHumidity))
		return models.WeatherResult{
			Date:      label,
			Condition: d.Weather,
			Temp:      fmt.Sprintf("%s–%s°C", formatNumber(d.MinTemp), formatNumber(d.MaxTemp)),
			Humidity:  &humidity,
			Alert:     ForecastAdvisory(d.Weather),
		}, nil
	}

	return models.WeatherResult{
		Date:      label,
		Condition: "Forecast not found",
		Temp:      unknownTemp,
	}, nil
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
