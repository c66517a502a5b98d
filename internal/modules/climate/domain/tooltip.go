package domain

import "fmt"

// TooltipText is the hover text for a region.
func TooltipText(regionID string, temp float64) string {
	return fmt.Sprintf("Postcode: %s\nTemperature: %.1f°C", regionID, temp)
}
