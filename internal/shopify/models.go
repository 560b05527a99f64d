package shopify

// RemoteProduct is a product payload from the Admin API.
type RemoteProduct struct {
	ID          int64           `json:"id"`
	Title       string          `json:"title"`
	Handle      string          `json:"handle"`
	BodyHTML    string          `json:"body_html"`
	Vendor      string          `json:"vendor"`
	ProductType string          `json:"product_type"`
	CreatedAt   string          `json:"created_at"`
	UpdatedAt   string          `json:"updated_at"`
	PublishedAt string          `json:"published_at"`
	Status      string          `json:"status"`
	Tags        string          `json:"tags"`
	Variants    []RemoteVariant `json:"variants"`
	Images      []RemoteImage   `json:"images"`
}

// RemoteVariant is a variant payload from the Admin API. Prices arrive as
// decimal strings.
type RemoteVariant struct {
	ID                int64  `json:"id"`
	ProductID         int64  `json:"product_id"`
	Title             string `json:"title"`
	Price             string `json:"price"`
	CompareAtPrice    string `json:"compare_at_price"`
	SKU               string `json:"sku"`
	Position          int    `json:"position"`
	Option1           string `json:"option1"`
	Option2           string `json:"option2"`
	Option3           string `json:"option3"`
	Barcode           string `json:"barcode"`
	Grams             int    `json:"grams"`
	Weight            float64 `json:"weight"`
	WeightUnit        string `json:"weight_unit"`
	InventoryQuantity int    `json:"inventory_quantity"`
	RequiresShipping  bool   `json:"requires_shipping"`
}

// RemoteImage is an image payload from the Admin API.
type RemoteImage struct {
	ID        int64  `json:"id"`
	ProductID int64  `json:"product_id"`
	Position  int    `json:"position"`
	Src       string `json:"src"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Alt       string `json:"alt"`
}

// Shop is the remote shop profile returned by shop.json.
type Shop struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Domain   string `json:"domain"`
	Currency string `json:"currency"`
	Plan     string `json:"plan_name"`
}

type productsResponse struct {
	Products []RemoteProduct `json:"products"`
}

type countResponse struct {
	Count int `json:"count"`
}

type shopResponse struct {
	Shop Shop `json:"shop"`
}

// ConnectionResult is the outcome of a credential probe.
type ConnectionResult struct {
	Success bool   `json:"success"`
	Shop    *Shop  `json:"shop,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}
