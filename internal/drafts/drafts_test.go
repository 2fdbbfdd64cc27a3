package drafts

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-catalog/internal/csvimport"
	"github.com/angelmondragon/packfinderz-catalog/pkg/enums"
)

func row(line int, code, name string, extra ...string) csvimport.Row {
	values := map[csvimport.Column]string{
		csvimport.ColProductCode: code,
		csvimport.ColProductName: name,
	}
	for i := 0; i+1 < len(extra); i += 2 {
		values[csvimport.Column(extra[i])] = extra[i+1]
	}
	return csvimport.NewRow(line, values)
}

func TestGroupFoldsRowsByCode(t *testing.T) {
	rows := []csvimport.Row{
		row(2, "S-106", "Slim Handle", string(csvimport.ColSize), "96MM", string(csvimport.ColFinish), "Matt", string(csvimport.ColPrice), "132"),
		row(3, "S-107", "Knob", string(csvimport.ColPrice), "₹45"),
		row(4, " S-106 ", "Ignored Name", string(csvimport.ColSize), "128MM", string(csvimport.ColFinish), "Matt", string(csvimport.ColPrice), "168"),
	}

	got := Group(rows)
	if len(got) != 2 {
		t.Fatalf("expected 2 products, got %d", len(got))
	}
	first := got[0]
	if first.ProductCode != "S-106" || first.Name != "Slim Handle" || first.Ref != 0 {
		t.Fatalf("unexpected first draft %+v", first)
	}
	if len(first.Variants) != 2 {
		t.Fatalf("expected 2 variants, got %d", len(first.Variants))
	}
	if first.Variants[1].SKU != "S-106-128MM-Matt" {
		t.Fatalf("unexpected derived sku %q", first.Variants[1].SKU)
	}
	if !first.Variants[1].Price.Equal(decimal.NewFromInt(168)) {
		t.Fatalf("unexpected price %s", first.Variants[1].Price)
	}
	if first.Action != enums.ImportActionCreate {
		t.Fatalf("expected default create, got %s", first.Action)
	}
	if got[1].Ref != 1 || !got[1].Variants[0].Price.Equal(decimal.NewFromInt(45)) {
		t.Fatalf("unexpected second draft %+v", got[1])
	}
}

func TestGroupCountsMatchInput(t *testing.T) {
	codes := []string{"A", "B", "", "A", "C", "", "B", "A"}
	rows := make([]csvimport.Row, len(codes))
	distinct := map[string]struct{}{}
	for i, c := range codes {
		rows[i] = row(i+2, c, "n"+c)
		distinct[c] = struct{}{}
	}

	got := Group(rows)
	if len(got) != len(distinct) {
		t.Fatalf("expected %d products, got %d", len(distinct), len(got))
	}
	if VariantCount(got) != len(rows) {
		t.Fatalf("expected %d variants, got %d", len(rows), VariantCount(got))
	}
	if got[2].ProductCode != "" || len(got[2].Variants) != 2 {
		t.Fatalf("empty code rows should collapse into one draft: %+v", got[2])
	}
}

func TestGroupUsesExplicitVariantCode(t *testing.T) {
	got := Group([]csvimport.Row{
		row(2, "S-1", "x", string(csvimport.ColVariantCode), " SKU-9 ", string(csvimport.ColHSNCode), "8302"),
	})
	v := got[0].Variants[0]
	if v.SKU != "SKU-9" || v.HSNCode != "8302" || v.Line != 2 {
		t.Fatalf("unexpected variant %+v", v)
	}
}

func TestParsePrice(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"132", "132"},
		{"₹1,320.00", "1320"},
		{"Rs 99.5", "99.5"},
		{"1.2.3", "1.2"},
		{".75", "0.75"},
		{"12.", "12"},
		{"", "0"},
		{"n/a", "0"},
		{"10.129", "10.129"},
		{"132.456", "132.456"},
	}
	for _, tc := range cases {
		got := ParsePrice(tc.in)
		if !got.Equal(decimal.RequireFromString(tc.want)) {
			t.Fatalf("ParsePrice(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestDeriveSKU(t *testing.T) {
	if got := DeriveSKU("S-106", "", "Matt"); got != "S-106-Matt" {
		t.Fatalf("unexpected sku %q", got)
	}
	if got := DeriveSKU("", "", ""); got != "" {
		t.Fatalf("expected empty sku, got %q", got)
	}
}

func TestLabel(t *testing.T) {
	if got := (ProductDraft{}).Label(); got != "(ungrouped)" {
		t.Fatalf("unexpected label %q", got)
	}
	if got := (ProductDraft{ProductCode: "S-1", Name: "Handle"}).Label(); got != "S-1 Handle" {
		t.Fatalf("unexpected label %q", got)
	}
}
