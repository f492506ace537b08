package models

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// PageBounds resolves page/size into LIMIT/OFFSET values using the given
// default and maximum sizes.
func PageBounds(page, size, defaultSize, maxSize int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if defaultSize <= 0 {
		defaultSize = 20
	}
	if maxSize < defaultSize {
		maxSize = defaultSize
	}
	if size <= 0 || size > maxSize {
		size = defaultSize
	}
	return page, size, (page - 1) * size
}
