package helpers

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

var priceCleaner = regexp.MustCompile(`[^0-9.]`)

// ParsePrice extracts a numeric price from retailer markup text such as
// "$1,299.00" or "AUD 899". Returns an error when no digits are present.
func ParsePrice(raw string) (float64, error) {
	cleaned := priceCleaner.ReplaceAllString(raw, "")
	if cleaned == "" {
		return 0, errors.New("no numeric price in " + strconv.Quote(raw))
	}
	// Guard against thousands separators parsed as extra dots ("1.299.00").
	if parts := strings.Split(cleaned, "."); len(parts) > 2 {
		cleaned = strings.Join(parts[:len(parts)-1], "") + "." + parts[len(parts)-1]
	}
	price, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, err
	}
	return price, nil
}

// GetSplitPart splits target by separate and returns the part at index.
func GetSplitPart(target string, separate string, index int) (string, error) {
	parts := strings.Split(target, separate)
	if index >= len(parts) {
		return "", errors.New("index out of range")
	}
	return parts[index], nil
}
