package pagination

type Pagination struct {
	Limit  int `form:"limit"`
	Offset int `form:"offset"`
}

type PageInfo struct {
	HasMore    bool `json:"has_more"`
	Limit      int  `json:"limit"`
	Offset     int  `json:"offset"`
	NextOffset int  `json:"next_offset,omitempty"`
}

// Normalize applies the default limit when unset. Range checks belong to callers.
func (p Pagination) Normalize(defaultLimit int) Pagination {
	if p.Limit <= 0 {
		p.Limit = defaultLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// FetchLimit is the row count to request so HasMore can be detected without a COUNT.
func (p Pagination) FetchLimit() int {
	return p.Limit + 1
}

// Trim drops the look-ahead row fetched by FetchLimit.
func Trim[T any](data []T, p Pagination) ([]T, *PageInfo) {
	info := &PageInfo{Limit: p.Limit, Offset: p.Offset}
	if len(data) > p.Limit {
		data = data[:p.Limit]
		info.HasMore = true
		info.NextOffset = p.Offset + p.Limit
	}
	return data, info
}
