package pricing

import (
	"errors"
	"testing"
	"time"

	"eventsnow-bot/internal/models"
)

func testTable() Table {
	return Table{
		models.CategoryConcert: {
			Name:  "Концерт",
			Model: models.PricingDaily,
			Packages: map[string]float64{
				"1_post":   100,
				"3_posts":  250,
				"5_posts":  400,
				"10_posts": 700,
			},
		},
		models.CategoryExhibition: {
			Name:            "Выставка",
			Model:           models.PricingPeriod,
			BasePricePerDay: 150,
			Packages: map[string]float64{
				"1_day":  1799,
				"7_days": 4999,
			},
		},
	}
}

func TestCalculateDailyTierSelection(t *testing.T) {
	tests := []struct {
		posts   int
		wantPkg string
		want    float64
	}{
		{1, "1_post", 100},
		{2, "3_posts", 250},
		{3, "3_posts", 250},
		{4, "5_posts", 400},
		{5, "5_posts", 400},
		{6, "10_posts", 700},
		{10, "10_posts", 700},
	}
	for _, tt := range tests {
		res, err := Calculate(testTable(), models.CategoryConcert, Posts(tt.posts))
		if err != nil {
			t.Fatalf("posts=%d: %v", tt.posts, err)
		}
		if res.PackageName != tt.wantPkg || res.TotalPrice != tt.want {
			t.Errorf("posts=%d: got %s/%v; want %s/%v", tt.posts, res.PackageName, res.TotalPrice, tt.wantPkg, tt.want)
		}
		if res.Count != tt.posts || res.Model != models.PricingDaily {
			t.Errorf("posts=%d: unexpected result %+v", tt.posts, res)
		}
	}
}

func TestCalculateDailyOverflow(t *testing.T) {
	res, err := Calculate(testTable(), models.CategoryConcert, Posts(11))
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if res.TotalPrice < 700 {
		t.Fatalf("overflow total %v is below the largest package", res.TotalPrice)
	}
	if res.TotalPrice != 770 || res.PackageName != "custom_11_posts" {
		t.Fatalf("got %+v", res)
	}

	tbl := testTable()
	cfg := tbl[models.CategoryConcert]
	extra := 90.0
	cfg.PricePerExtraItem = &extra
	tbl[models.CategoryConcert] = cfg
	res, err = Calculate(tbl, models.CategoryConcert, Posts(12))
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if res.TotalPrice != 1080 {
		t.Fatalf("flat extra: got %v", res.TotalPrice)
	}
}

func TestCalculatePeriodInclusiveDays(t *testing.T) {
	d := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	res, err := Calculate(testTable(), models.CategoryExhibition, Period(d, d))
	if err != nil {
		t.Fatalf("single day: %v", err)
	}
	if res.Count != 1 || res.PackageName != "1_day" {
		t.Fatalf("single day: got %+v", res)
	}

	res, err = Calculate(testTable(), models.CategoryExhibition, Period(d, d.AddDate(0, 0, 6)))
	if err != nil {
		t.Fatalf("week: %v", err)
	}
	if res.Count != 7 || res.PackageName != "7_days" {
		t.Fatalf("week: got %+v", res)
	}

	res, err = Calculate(testTable(), models.CategoryExhibition, Period(d, d.AddDate(0, 0, 9)))
	if err != nil {
		t.Fatalf("custom: %v", err)
	}
	if res.Count != 10 || res.TotalPrice != 150*10*0.85 {
		t.Fatalf("custom: got %+v", res)
	}
}

func TestCalculatePeriodDefaultBasePrice(t *testing.T) {
	table := testTable()
	cfg := table[models.CategoryExhibition]
	cfg.BasePricePerDay = 0
	table[models.CategoryExhibition] = cfg

	d := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	res, err := Calculate(table, models.CategoryExhibition, Period(d, d.AddDate(0, 0, 9)))
	if err != nil {
		t.Fatalf("custom: %v", err)
	}
	if res.TotalPrice != 150*10*0.85 {
		t.Fatalf("unset base price must fall back to 150/day, got %+v", res)
	}

	cfg.BasePricePerDay = -1
	table[models.CategoryExhibition] = cfg
	if err := table.Validate(); !errors.Is(err, ErrPricing) {
		t.Fatalf("negative base price: %v", err)
	}
}

func TestCalculateErrors(t *testing.T) {
	d := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		cat  models.Category
		u    Usage
	}{
		{"zero posts", models.CategoryConcert, Posts(0)},
		{"range for daily", models.CategoryConcert, Period(d, d)},
		{"posts for period", models.CategoryExhibition, Posts(3)},
		{"inverted range", models.CategoryExhibition, Period(d.AddDate(0, 0, 1), d)},
		{"unconfigured", models.CategoryLecture, Posts(1)},
	}
	for _, tt := range tests {
		if _, err := Calculate(testTable(), tt.cat, tt.u); !errors.Is(err, ErrPricing) {
			t.Errorf("%s: got %v; want ErrPricing", tt.name, err)
		}
	}
}

func TestFirstPackage(t *testing.T) {
	name, price, err := FirstPackage(testTable(), models.CategoryConcert)
	if err != nil {
		t.Fatalf("first package: %v", err)
	}
	if name != "1_post" || price != 100 {
		t.Fatalf("got %s/%v", name, price)
	}
	if _, _, err := FirstPackage(testTable(), models.CategoryOther); !errors.Is(err, ErrPricing) {
		t.Fatalf("want ErrPricing, got %v", err)
	}
}

func TestTableValidate(t *testing.T) {
	if err := testTable().Validate(); err != nil {
		t.Fatalf("valid table: %v", err)
	}
	bad := Table{models.CategoryConcert: {Model: models.PricingDaily, Packages: map[string]float64{"many": 10}}}
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for package key without capacity")
	}
}
