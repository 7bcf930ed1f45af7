package util

// Calculate clamps page/size to sane bounds and returns the query offset.
func Calculate(page, size int) (offset, limit int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 10
	}
	offset = (page - 1) * size
	return offset, size
}
