package utils

// MustBeTrue panics with msg when condition does not hold. Reserved for
// constructor contracts a caller cannot recover from.
func MustBeTrue(condition bool, msg string) {
	if !condition {
		panic(msg)
	}
}
