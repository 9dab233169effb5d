package models

type WeatherResult struct {
	Date      string  `json:"date"`
	Condition string  `json:"condition"`
	Temp      string  `json:"temp"`
	Humidity  *string `json:"humidity"`
	Alert     string  `json:"alert"`
}
