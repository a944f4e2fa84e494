package helpers

const (
	memoryFraction = 0.75
	memoryFloorMB  = 512
)

// GetRecommendedMemoryLimit sizes the process soft memory limit from
// physical RAM: three quarters of the total, never below 512MB unless
// the machine itself has less. Falls back to the floor when the total
// cannot be determined.
func GetRecommendedMemoryLimit() int {
	totalMB := GetTotalSystemMemoryMB()
	if totalMB == 0 {
		return memoryFloorMB
	}
	if totalMB < memoryFloorMB {
		return totalMB
	}

	limit := int(float64(totalMB) * memoryFraction)
	if limit < memoryFloorMB {
		return memoryFloorMB
	}
	return limit
}
