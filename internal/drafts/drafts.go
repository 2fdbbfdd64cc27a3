package drafts

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-catalog/internal/csvimport"
	"github.com/angelmondragon/packfinderz-catalog/pkg/enums"
)

// VariantDraft is one priced row of a parsed product.
type VariantDraft struct {
	Line        int             `json:"line"`
	Size        string          `json:"size"`
	Finish      string          `json:"finish"`
	PackingSize string          `json:"packingSize,omitempty"`
	HSNCode     string          `json:"hsnCode,omitempty"`
	Material    string          `json:"material,omitempty"`
	Notes       string          `json:"notes,omitempty"`
	Price       decimal.Decimal `json:"price"`
	SKU         string          `json:"sku"`
}

// ExistingMatch references the stored product a draft collides with.
type ExistingMatch struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	UpdatedAt time.Time       `json:"updatedAt"`
	MatchType enums.MatchType `json:"matchType"`
}

// ProductDraft is one logical product folded from every row sharing a product code.
type ProductDraft struct {
	// Ref is the draft's position in the grouped output and stays stable for the session.
	Ref              int                `json:"ref"`
	ProductCode      string             `json:"productCode"`
	Name             string             `json:"name"`
	RawCategory      string             `json:"rawCategory"`
	CategoryID       *uuid.UUID         `json:"categoryId,omitempty"`
	ShortDescription string             `json:"shortDescription,omitempty"`
	FullDescription  string             `json:"fullDescription,omitempty"`
	ImageURL         string             `json:"imageUrl,omitempty"`
	Variants         []VariantDraft     `json:"variants"`
	Action           enums.ImportAction `json:"action"`
	Existing         *ExistingMatch     `json:"existing,omitempty"`
}

// Label names the draft in reports.
func (p ProductDraft) Label() string {
	switch {
	case p.ProductCode != "" && p.Name != "":
		return p.ProductCode + " " + p.Name
	case p.ProductCode != "":
		return p.ProductCode
	case p.Name != "":
		return p.Name
	}
	return "(ungrouped)"
}

// Group folds rows into drafts ordered by first appearance of each product code.
// The first row of a code supplies the product fields; every row adds a variant.
// Rows with an empty code share one draft.
func Group(rows []csvimport.Row) []ProductDraft {
	out := make([]ProductDraft, 0)
	byCode := make(map[string]int)

	for _, row := range rows {
		code := strings.TrimSpace(row.Get(csvimport.ColProductCode))
		idx, ok := byCode[code]
		if !ok {
			idx = len(out)
			byCode[code] = idx
			out = append(out, ProductDraft{
				Ref:              idx,
				ProductCode:      code,
				Name:             strings.TrimSpace(row.Get(csvimport.ColProductName)),
				RawCategory:      strings.TrimSpace(row.Get(csvimport.ColCategory)),
				ShortDescription: strings.TrimSpace(row.Get(csvimport.ColShortDescription)),
				FullDescription:  strings.TrimSpace(row.Get(csvimport.ColFullDescription)),
				ImageURL:         strings.TrimSpace(row.Get(csvimport.ColImageURL)),
				Action:           enums.ImportActionCreate,
			})
		}
		out[idx].Variants = append(out[idx].Variants, variantFromRow(code, row))
	}
	return out
}

func variantFromRow(code string, row csvimport.Row) VariantDraft {
	size := strings.TrimSpace(row.Get(csvimport.ColSize))
	finish := strings.TrimSpace(row.Get(csvimport.ColFinish))
	sku := strings.TrimSpace(row.Get(csvimport.ColVariantCode))
	if sku == "" {
		sku = DeriveSKU(code, size, finish)
	}
	return VariantDraft{
		Line:        row.Line,
		Size:        size,
		Finish:      finish,
		PackingSize: strings.TrimSpace(row.Get(csvimport.ColPackingSize)),
		HSNCode:     strings.TrimSpace(row.Get(csvimport.ColHSNCode)),
		Material:    strings.TrimSpace(row.Get(csvimport.ColMaterial)),
		Notes:       strings.TrimSpace(row.Get(csvimport.ColNotes)),
		Price:       ParsePrice(row.Get(csvimport.ColPrice)),
		SKU:         sku,
	}
}

var (
	priceNoise  = regexp.MustCompile(`[^0-9.]`)
	pricePrefix = regexp.MustCompile(`^[0-9]*\.?[0-9]*`)
)

// ParsePrice reads a currency formatted price such as "₹1,320.00".
// Everything except digits and dots is dropped and the longest numeric prefix
// is used, so "1.2.3" reads as 1.2. Precision is kept as written. Unparseable
// input is zero.
func ParsePrice(raw string) decimal.Decimal {
	cleaned := priceNoise.ReplaceAllString(raw, "")
	num := pricePrefix.FindString(cleaned)
	if num == "" || num == "." {
		return decimal.Zero
	}
	if strings.HasPrefix(num, ".") {
		num = "0" + num
	}
	num = strings.TrimSuffix(num, ".")
	d, err := decimal.NewFromString(num)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// DeriveSKU joins the non-empty parts of code, size and finish with "-".
func DeriveSKU(code, size, finish string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{code, size, finish} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "-")
}

// VariantCount sums variants across drafts.
func VariantCount(products []ProductDraft) int {
	total := 0
	for _, p := range products {
		total += len(p.Variants)
	}
	return total
}
