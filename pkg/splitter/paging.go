package splitter

import (
	"github.com/buildbarn/bb-splitter/pkg/manifest"
)

// DefaultPageSize is the number of summaries shown per page of a
// listing.
const DefaultPageSize = 8

// Page of a listing of summaries.
type Page struct {
	Summaries []manifest.Summary
	// Page number, starting at 1.
	Number int
	Count  int
}

// GetPage returns a page of a listing of summaries. Page numbers that
// are out of range yield the first page. An empty listing consists of
// a single empty page.
func GetPage(summaries []manifest.Summary, number, pageSize int) Page {
	count := max(1, (len(summaries)+pageSize-1)/pageSize)
	if number < 1 || number > count {
		number = 1
	}
	start := (number - 1) * pageSize
	end := min(start+pageSize, len(summaries))
	return Page{
		Summaries: summaries[start:end],
		Number:    number,
		Count:     count,
	}
}
