package catalog

// Page is one page of a product listing.
type Page struct {
	Products      []Product `json:"products"`
	TotalPages    int       `json:"totalPages"`
	TotalProducts int       `json:"totalProducts"`
	CurrentPage   int       `json:"currentPage"`
}

// paginate slices all for a 1-based page. Pages below 1 start at offset 0.
func paginate(all []Product, page, perPage int) Page {
	total := len(all)
	skip := 0
	if page > 0 {
		skip = (page - 1) * perPage
	}
	start := min(skip, total)
	end := min(start+perPage, total)

	products := make([]Product, end-start)
	copy(products, all[start:end])

	return Page{
		Products:      products,
		TotalPages:    (total + perPage - 1) / perPage,
		TotalProducts: total,
		CurrentPage:   page,
	}
}
