package query

import "sort"

// Page is one slice of a filtered record set. Total and TotalPages are
// computed from the filtered set, not the underlying files.
type Page struct {
	Entries    []Record `json:"entries"`
	Total      int      `json:"total"`
	Page       int      `json:"page"`
	PageSize   int      `json:"page_size"`
	TotalPages int      `json:"total_pages"`
}

// SortDescending orders records newest first by string comparison of the
// ISO-8601 timestamps. Stable, so equal timestamps keep input order.
func SortDescending(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp() > records[j].Timestamp()
	})
}

// SortAscending orders records oldest first.
func SortAscending(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp() < records[j].Timestamp()
	})
}

// Paginate clamps page to >= 1 and pageSize to [1, maxPageSize]
// (zero pageSize selects defaultPageSize), then slices.
func Paginate(records []Record, page, pageSize, defaultPageSize, maxPageSize int) Page {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	if page < 1 {
		page = 1
	}

	total := len(records)
	totalPages := (total + pageSize - 1) / pageSize

	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	return Page{
		Entries:    records[start:end],
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}
}
