package schema

import (
	"fmt"
	"strconv"
	"strings"
)

const maxScale = 18

// ParseScaled converts a decimal string into a scaled integer with the given
// number of decimal places. Fractional digits beyond the scale are truncated.
func ParseScaled(text string, scale Scale) (int64, error) {
	if scale < 0 || scale > maxScale {
		return 0, fmt.Errorf("scale out of range: %d", scale)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, fmt.Errorf("empty number")
	}

	negative := false
	switch text[0] {
	case '-':
		negative = true
		text = text[1:]
	case '+':
		text = text[1:]
	}
	if text == "" {
		return 0, fmt.Errorf("missing digits")
	}

	intPart := text
	fracPart := ""
	if dot := strings.IndexByte(text, '.'); dot >= 0 {
		intPart = text[:dot]
		fracPart = text[dot+1:]
	}
	if intPart == "" {
		intPart = "0"
	}
	if len(fracPart) > int(scale) {
		fracPart = fracPart[:scale]
	}
	for len(fracPart) < int(scale) {
		fracPart += "0"
	}

	digits := intPart + fracPart
	value, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", text, err)
	}
	if negative {
		value = -value
	}
	return value, nil
}

// FormatScaled renders a scaled integer as a decimal string with exactly
// scale fractional digits.
func FormatScaled(value int64, scale Scale) string {
	if scale <= 0 {
		return strconv.FormatInt(value, 10)
	}
	sign := ""
	if value < 0 {
		sign = "-"
		value = -value
	}
	digits := strconv.FormatInt(value, 10)
	if len(digits) <= int(scale) {
		digits = strings.Repeat("0", int(scale)-len(digits)+1) + digits
	}
	cut := len(digits) - int(scale)
	return sign + digits[:cut] + "." + digits[cut:]
}

// ParsePrice converts a price string using the symbol's price scale.
func (s ScaleSpec) ParsePrice(text string) (int64, error) {
	return ParseScaled(text, s.PriceScale)
}

// ParseQuantity converts a quantity string using the symbol's quantity scale.
func (s ScaleSpec) ParseQuantity(text string) (int64, error) {
	return ParseScaled(text, s.QuantityScale)
}

// FormatPrice renders a scaled price.
func (s ScaleSpec) FormatPrice(value int64) string {
	return FormatScaled(value, s.PriceScale)
}

// FormatQuantity renders a scaled quantity.
func (s ScaleSpec) FormatQuantity(value int64) string {
	return FormatScaled(value, s.QuantityScale)
}
