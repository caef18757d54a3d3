package domain

// Product is the catalog entry shown on the product detail page.
type Product struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Image      string            `json:"image"`
	CompanyID  string            `json:"companyId"`
	CategoryID string            `json:"categoryId"`
	Material   string            `json:"material,omitempty"`
	Details    map[string]string `json:"details,omitempty"`
	Usage      []UsageRow        `json:"usage,omitempty"`
}

// UsageRow is one line of the crop / pest / dose table.
type UsageRow struct {
	Crops  []string `json:"crops"`
	Pests  []string `json:"pests"`
	Dose   string   `json:"dose"`
	Method string   `json:"method"`
}

type GalleryItem struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image"`
}

type ProductDetails struct {
	Product Product       `json:"product"`
	Related []GalleryItem `json:"related"`
}

// RelatedGallery keeps the products of the same company and category, excluding current.
func RelatedGallery(current Product, all []Product) []GalleryItem {
	items := make([]GalleryItem, 0)
	for _, p := range all {
		if p.ID == current.ID {
			continue
		}
		if p.CompanyID != current.CompanyID || p.CategoryID != current.CategoryID {
			continue
		}
		items = append(items, GalleryItem{ID: p.ID, Name: p.Name, Image: p.Image})
	}
	return items
}
