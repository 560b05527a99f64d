package service

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"shopify-feed-service/internal/models"
)

// rowLabels holds the five derived merchandising labels for one feed row.
type rowLabels struct {
	L0 string
	L1 string
	L2 string
	L3 string
	L4 string
}

type priceCohort struct {
	count int
	sum   float64
	min   float64
}

func (c *priceCohort) add(price float64) {
	c.count++
	c.sum += price
	if c.count == 1 || price < c.min {
		c.min = price
	}
}

func (c *priceCohort) average() float64 {
	if c.count == 0 {
		return 0
	}
	return c.sum / float64(c.count)
}

// feedAnalysis carries the single-pass aggregates the label derivations
// read from.
type feedAnalysis struct {
	groups      map[string][]int
	groupMin    map[string]float64
	cohorts     map[string]*priceCohort
	vendors     map[string]*priceCohort
	globalMin   float64
	globalMax   float64
	stockQ1     int
	stockQ3     int
	hasRows     bool
}

func groupKey(row models.FeedRow) string {
	return strings.ToLower(strings.TrimSpace(row.Title)) + "_" + strings.ToLower(strings.TrimSpace(row.Vendor))
}

func cohortKey(row models.FeedRow) string {
	return strings.ToLower(row.ProductType) + "|" + strings.ToLower(row.Vendor)
}

func analyzeRows(rows []models.FeedRow) *feedAnalysis {
	a := &feedAnalysis{
		groups:   make(map[string][]int),
		groupMin: make(map[string]float64),
		cohorts:  make(map[string]*priceCohort),
		vendors:  make(map[string]*priceCohort),
	}

	quantities := make([]int, 0, len(rows))
	for i, row := range rows {
		key := groupKey(row)
		a.groups[key] = append(a.groups[key], i)
		if row.Price > 0 {
			if min, ok := a.groupMin[key]; !ok || row.Price < min {
				a.groupMin[key] = row.Price
			}
		}

		ck := cohortKey(row)
		if a.cohorts[ck] == nil {
			a.cohorts[ck] = &priceCohort{}
		}
		a.cohorts[ck].add(row.Price)

		vk := strings.ToLower(row.Vendor)
		if a.vendors[vk] == nil {
			a.vendors[vk] = &priceCohort{}
		}
		a.vendors[vk].add(row.Price)

		if !a.hasRows || row.Price < a.globalMin {
			a.globalMin = row.Price
		}
		if !a.hasRows || row.Price > a.globalMax {
			a.globalMax = row.Price
		}
		a.hasRows = true

		quantities = append(quantities, row.InventoryQuantity)
	}

	sort.Ints(quantities)
	if n := len(quantities); n > 0 {
		a.stockQ1 = quantities[(n-1)/4]
		a.stockQ3 = quantities[3*(n-1)/4]
	}

	return a
}

// deriveLabels computes the five labels for every row.
// higherVariantLabels controls whether higher-priced group members get an
// explicit percentage label or an empty string.
func deriveLabels(rows []models.FeedRow, higherVariantLabels bool) []rowLabels {
	a := analyzeRows(rows)
	labels := make([]rowLabels, len(rows))

	for i, row := range rows {
		labels[i] = rowLabels{
			L0: a.lowestVariantLabel(row, higherVariantLabels),
			L1: a.competitiveLabel(row),
			L2: a.stockLabel(row),
			L3: a.brandLabel(row),
			L4: a.promotionalLabel(row),
		}
	}
	return labels
}

// lowestVariantLabel tags each row with its position inside its
// (title, vendor) group. Rows that cannot be grouped fall back to an
// equal-width price tier.
func (a *feedAnalysis) lowestVariantLabel(row models.FeedRow, higherVariantLabels bool) string {
	key := groupKey(row)
	if key == "_" {
		return a.priceTierLabel(row.Price)
	}

	group := a.groups[key]
	if len(group) == 1 {
		return "Single_Variant"
	}

	min, ok := a.groupMin[key]
	if !ok {
		return a.priceTierLabel(row.Price)
	}
	if row.Price == min {
		return "Lowest_Variant"
	}
	if !higherVariantLabels {
		return ""
	}
	pct := int(math.Round((row.Price - min) / min * 100))
	return fmt.Sprintf("Higher_Variant_+%d%%", pct)
}

// priceTierLabel buckets a price into one of 5 equal-width bands between
// the global minimum and maximum.
func (a *feedAnalysis) priceTierLabel(price float64) string {
	if !a.hasRows || a.globalMax <= a.globalMin {
		return "Price_Tier_1"
	}
	band := int((price - a.globalMin) / (a.globalMax - a.globalMin) * 5)
	if band > 4 {
		band = 4
	}
	if band < 0 {
		band = 0
	}
	return fmt.Sprintf("Price_Tier_%d", band+1)
}

func (a *feedAnalysis) competitiveLabel(row models.FeedRow) string {
	cohort := a.cohorts[cohortKey(row)]
	if cohort == nil || cohort.count <= 1 {
		return "Unique_Product"
	}

	avg := cohort.average()
	if avg <= 0 {
		return "Market_Rate"
	}

	// Price leadership is a cohort property: when the cohort minimum
	// undercuts the average by more than 10%, every member carries it.
	if cohort.min < 0.9*avg {
		return "Price_Leader"
	}
	if row.Price < avg {
		return "Below_Average"
	}
	if row.Price > 1.1*avg {
		return "Premium_Priced"
	}
	return "Market_Rate"
}

func (a *feedAnalysis) stockLabel(row models.FeedRow) string {
	qty := row.InventoryQuantity
	if qty <= 0 {
		return "Out_of_Stock"
	}
	if qty <= 5 {
		return "Critical_Stock"
	}
	if qty <= a.stockQ1 {
		return "Low_Stock"
	}
	if qty <= a.stockQ3 {
		return "Medium_Stock"
	}
	return "High_Stock"
}

func (a *feedAnalysis) brandLabel(row models.FeedRow) string {
	vendor := a.vendors[strings.ToLower(row.Vendor)]

	tier := "Boutique_Brand"
	if vendor != nil {
		switch {
		case vendor.count >= 50:
			tier = "Major_Brand"
		case vendor.count >= 10:
			tier = "Regular_Brand"
		}
	}

	if vendor != nil && vendor.count > 1 {
		avg := vendor.average()
		if avg > 0 {
			if row.Price > 1.2*avg {
				return tier + "_Premium"
			}
			if row.Price < 0.8*avg {
				return tier + "_Value"
			}
		}
	}
	return tier
}

// promotionalKeywords is scanned in order against the row's text; the
// first match wins.
var promotionalKeywords = []struct {
	keyword string
	label   string
}{
	{"christmas", "Holiday_Season"},
	{"xmas", "Holiday_Season"},
	{"holiday", "Holiday_Season"},
	{"halloween", "Halloween_Season"},
	{"summer", "Summer_Season"},
	{"winter", "Winter_Season"},
	{"spring", "Spring_Season"},
	{"autumn", "Fall_Season"},
	{"fall", "Fall_Season"},
	{"clearance", "Clearance"},
	{"closeout", "Clearance"},
	{"trending", "Trending"},
	{"popular", "Trending"},
}

func (a *feedAnalysis) promotionalLabel(row models.FeedRow) string {
	text := strings.ToLower(row.Title + " " + row.Tags + " " + row.ProductType)

	for _, entry := range promotionalKeywords {
		if strings.Contains(text, entry.keyword) {
			return entry.label
		}
	}

	if row.CompareAtPrice.Valid && row.CompareAtPrice.Float64 > row.Price {
		return "On_Sale"
	}

	tags := strings.ToLower(row.Tags)
	if strings.Contains(tags, "new") {
		return "New_Arrival"
	}
	if strings.Contains(tags, "bestseller") {
		return "Bestseller"
	}
	if a.priceTierLabel(row.Price) == "Price_Tier_5" {
		return "Luxury_Item"
	}
	return "Standard"
}
