package bot

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"clanrpg/service"
)

// FormatBalance formats a coin amount with thousand separators
func FormatBalance(balance int64) string {
	str := strconv.FormatInt(balance, 10)

	negative := strings.HasPrefix(str, "-")
	if negative {
		str = str[1:]
	}

	n := len(str)
	if n > 3 {
		var result strings.Builder
		for i, digit := range str {
			if i > 0 && (n-i)%3 == 0 {
				result.WriteRune(',')
			}
			result.WriteRune(digit)
		}
		str = result.String()
	}

	if negative {
		return "-" + str
	}
	return str
}

// ParseAmount parses a user-supplied amount: plain digits, "all"/"tudo",
// or shorthand like "2k" and "1.5m".
func ParseAmount(input string) (int64, error) {
	s := strings.ToLower(strings.TrimSpace(input))
	if s == "" {
		return 0, fmt.Errorf("no amount given")
	}
	if s == "all" || s == "tudo" {
		return service.AmountAll, nil
	}

	multiplier := int64(1)
	switch {
	case strings.HasSuffix(s, "k"):
		multiplier = 1_000
		s = strings.TrimSuffix(s, "k")
	case strings.HasSuffix(s, "m"):
		multiplier = 1_000_000
		s = strings.TrimSuffix(s, "m")
	}

	if multiplier > 1 {
		value, err := strconv.ParseFloat(s, 64)
		if err != nil || value < 0 {
			return 0, fmt.Errorf("invalid amount: %s", input)
		}
		return int64(value * float64(multiplier)), nil
	}

	value, err := strconv.ParseInt(strings.ReplaceAll(s, ",", ""), 10, 64)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("invalid amount: %s", input)
	}
	return value, nil
}

// FormatDuration renders a millisecond span as a compact countdown, e.g.
// "1h 05m" or "42s".
func FormatDuration(millis int64) string {
	if millis < 0 {
		millis = 0
	}
	d := time.Duration(millis) * time.Millisecond
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %02dm", int(d.Hours()), int(d.Minutes())%60)
}

// Mention renders a user id as a chat mention.
func Mention(userID string) string {
	return "<@" + userID + ">"
}
