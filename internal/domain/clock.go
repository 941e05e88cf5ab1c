package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidTime возвращается для времени вне формата ЧЧ:ММ.
var ErrInvalidTime = errors.New("invalid time")

var clockPattern = regexp.MustCompile(`^([01]?\d|2[0-3]):([0-5]\d)$`)

// NormalizeClock проверяет время суток и приводит его к виду ЧЧ:ММ
// с ведущим нулём. Допускается ввод без ведущего нуля, минуты — строго
// две цифры.
func NormalizeClock(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	m := clockPattern.FindStringSubmatch(trimmed)
	if m == nil {
		return "", ErrInvalidTime
	}
	hour, err := strconv.Atoi(m[1])
	if err != nil {
		return "", ErrInvalidTime
	}
	return fmt.Sprintf("%02d:%s", hour, m[2]), nil
}
