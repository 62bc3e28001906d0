package database

// AddValue adds two output values and reports false when the sum overflows
// an int64.
func AddValue(a, b int64) (int64, bool) {
	c := a + b
	if (c > a) == (b > 0) {
		return c, true
	}
	return c, false
}
