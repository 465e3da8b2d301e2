package utils

// Roundup rounds x up to the nearest multiple of align. align must be a power of two.
func Roundup(x, align int) int {
	return (x + (align - 1)) &^ (align - 1)
}
