package units

import "math"

// Поддерживаемые коды единиц измерения.
const (
	TempCelsius    = "celsius"
	TempFahrenheit = "fahrenheit"
	TempKelvin     = "kelvin"

	PressureMmHg = "mmhg"
	PressureHPa  = "hpa"
	PressurePSI  = "psi"

	WindMS  = "ms"
	WindKMH = "kmh"
)

// Temperature переводит температуру из °C в запрошенную единицу.
// Неизвестный код единицы оставляет значение в °C.
func Temperature(celsius float64, unit string) float64 {
	switch unit {
	case TempFahrenheit:
		return round1(celsius*9/5 + 32)
	case TempKelvin:
		return round1(celsius + 273.15)
	default:
		return round1(celsius)
	}
}

// Pressure переводит давление из гПа в запрошенную единицу.
func Pressure(hpa float64, unit string) float64 {
	switch unit {
	case PressureMmHg:
		return round1(hpa * 0.750062)
	case PressurePSI:
		return round1(hpa * 0.0145038)
	default:
		return round1(hpa)
	}
}

// WindSpeed переводит скорость ветра из м/с в запрошенную единицу.
func WindSpeed(ms float64, unit string) float64 {
	switch unit {
	case WindKMH:
		return round1(ms * 3.6)
	default:
		return round1(ms)
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

var labels = map[string]map[string]string{
	TempCelsius:    {"ru": "°C", "en": "°C"},
	TempFahrenheit: {"ru": "°F", "en": "°F"},
	TempKelvin:     {"ru": "K", "en": "K"},
	PressureMmHg:   {"ru": "мм рт. ст.", "en": "mmHg"},
	PressureHPa:    {"ru": "гПа", "en": "hPa"},
	PressurePSI:    {"ru": "psi", "en": "psi"},
	WindMS:         {"ru": "м/с", "en": "m/s"},
	WindKMH:        {"ru": "км/ч", "en": "km/h"},
}

// Label возвращает подпись единицы для языка. Порядок запасных вариантов:
// запрошенный язык, русский, сам код единицы.
func Label(unit, lang string) string {
	byLang, ok := labels[unit]
	if !ok {
		return unit
	}
	if label, ok := byLang[lang]; ok {
		return label
	}
	if label, ok := byLang["ru"]; ok {
		return label
	}
	return unit
}
