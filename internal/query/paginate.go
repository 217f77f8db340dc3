// internal/query/paginate.go
package query

import "math"

const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100

	// MaxPage keeps (page-1)*limit well inside the int range so the row
	// offset never wraps negative.
	MaxPage = math.MaxInt32
)

// Page is a bounds-checked page/limit pair for offset pagination.
type Page struct {
	Number int
	Limit  int
}

// NewPage applies the defaults and clamps limit to [1, MaxLimit] and number
// to [1, MaxPage]. Zero values mean "not supplied".
func NewPage(number, limit int) Page {
	if number < 1 {
		number = DefaultPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if number > MaxPage {
		number = MaxPage
	}
	return Page{Number: number, Limit: limit}
}

// Offset returns the row offset for the page.
func (p Page) Offset() int {
	return (p.Number - 1) * p.Limit
}

// TotalPages computes ceil(total/limit), 0 when total is 0.
func TotalPages(total, limit int) int {
	if total <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}
