package units

import "testing"

func TestTemperature(t *testing.T) {
	if got := Temperature(20, TempFahrenheit); got != 68.0 {
		t.Fatalf("ожидали 68.0 °F, получили %v", got)
	}
	if got := Temperature(20, TempKelvin); got != 293.2 {
		t.Fatalf("ожидали 293.2 K, получили %v", got)
	}
	if got := Temperature(20.04, TempCelsius); got != 20.0 {
		t.Fatalf("ожидали округление до 20.0, получили %v", got)
	}
	if got := Temperature(-3.27, "unknown"); got != -3.3 {
		t.Fatalf("неизвестная единица должна оставлять °C, получили %v", got)
	}
}

func TestPressure(t *testing.T) {
	if got := Pressure(1013.25, PressureMmHg); got != 760.0 {
		t.Fatalf("ожидали 760.0 мм рт. ст., получили %v", got)
	}
	if got := Pressure(1013.25, PressurePSI); got != 14.7 {
		t.Fatalf("ожидали 14.7 psi, получили %v", got)
	}
	if got := Pressure(1013.25, PressureHPa); got != 1013.3 {
		t.Fatalf("ожидали 1013.3 гПа, получили %v", got)
	}
}

func TestWindSpeed(t *testing.T) {
	if got := WindSpeed(5, WindKMH); got != 18.0 {
		t.Fatalf("ожидали 18.0 км/ч, получили %v", got)
	}
	if got := WindSpeed(5.55, WindMS); got != 5.6 {
		t.Fatalf("ожидали 5.6 м/с, получили %v", got)
	}
}

func TestLabelFallback(t *testing.T) {
	if got := Label(PressureMmHg, "en"); got != "mmHg" {
		t.Fatalf("ожидали английскую подпись, получили %q", got)
	}
	if got := Label(PressureMmHg, "de"); got != "мм рт. ст." {
		t.Fatalf("ожидали русскую подпись для неизвестного языка, получили %q", got)
	}
	if got := Label("furlongs", "ru"); got != "furlongs" {
		t.Fatalf("ожидали сырой код для неизвестной единицы, получили %q", got)
	}
}
