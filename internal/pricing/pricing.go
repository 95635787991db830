package pricing

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"time"

	"eventsnow-bot/internal/models"
)

var ErrPricing = errors.New("pricing error")

// periodDiscount applies to custom periods longer than the largest package.
const periodDiscount = 0.85

// defaultBasePricePerDay is used when a period category leaves base_price_per_day unset.
const defaultBasePricePerDay = 150

type CategoryConfig struct {
	Name              string              `json:"name"`
	Model             models.PricingModel `json:"model"`
	Packages          map[string]float64  `json:"packages"`
	BasePricePerDay   float64             `json:"base_price_per_day,omitempty"`
	PricePerExtraItem *float64            `json:"base_price_per_item,omitempty"`
}

// Table maps every category to its pricing configuration.
type Table map[models.Category]CategoryConfig

// Usage is either a post count (daily model) or an inclusive date range (period model).
type Usage struct {
	NumPosts int
	Start    time.Time
	End      time.Time
}

func Posts(n int) Usage { return Usage{NumPosts: n} }

func Period(start, end time.Time) Usage { return Usage{Start: start, End: end} }

func (u Usage) isPeriod() bool { return !u.Start.IsZero() || !u.End.IsZero() }

type Result struct {
	PackageName string
	UnitPrice   float64
	// Count is the number of posts for the daily model or days for the period model.
	Count      int
	Model      models.PricingModel
	TotalPrice float64
}

type pkg struct {
	capacity int
	name     string
	price    float64
}

var capacityPrefix = regexp.MustCompile(`^\s*(\d+)`)

func capacityOf(key string) (int, error) {
	m := capacityPrefix.FindStringSubmatch(key)
	if m == nil {
		return 0, fmt.Errorf("%w: bad package key %q", ErrPricing, key)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: bad package key %q", ErrPricing, key)
	}
	return n, nil
}

// sortedPackages returns packages in ascending capacity order.
func sortedPackages(cfg CategoryConfig) ([]pkg, error) {
	if len(cfg.Packages) == 0 {
		return nil, fmt.Errorf("%w: no packages configured", ErrPricing)
	}
	out := make([]pkg, 0, len(cfg.Packages))
	for name, price := range cfg.Packages {
		n, err := capacityOf(name)
		if err != nil {
			return nil, err
		}
		out = append(out, pkg{capacity: n, name: name, price: price})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].capacity == out[j].capacity {
			return out[i].name < out[j].name
		}
		return out[i].capacity < out[j].capacity
	})
	return out, nil
}

func (t Table) Validate() error {
	for cat, cfg := range t {
		if !cat.IsValid() {
			return fmt.Errorf("%w: unknown category %q", ErrPricing, cat)
		}
		if !cfg.Model.IsValid() {
			return fmt.Errorf("%w: %s: unknown model %q", ErrPricing, cat, cfg.Model)
		}
		pkgs, err := sortedPackages(cfg)
		if err != nil {
			return fmt.Errorf("%s: %w", cat, err)
		}
		for _, p := range pkgs {
			if p.price < 0 {
				return fmt.Errorf("%w: %s: negative price for %s", ErrPricing, cat, p.name)
			}
		}
		if cfg.BasePricePerDay < 0 {
			return fmt.Errorf("%w: %s: negative base_price_per_day", ErrPricing, cat)
		}
	}
	return nil
}

// Calculate selects the smallest package that covers the usage, or extrapolates
// past the largest one.
func Calculate(t Table, category models.Category, u Usage) (Result, error) {
	cfg, ok := t[category]
	if !ok {
		return Result{}, fmt.Errorf("%w: category %q is not configured", ErrPricing, category)
	}
	switch cfg.Model {
	case models.PricingDaily:
		if u.isPeriod() {
			return Result{}, fmt.Errorf("%w: %s is priced per post, got a date range", ErrPricing, category)
		}
		if u.NumPosts < 1 {
			return Result{}, fmt.Errorf("%w: num_posts must be >= 1", ErrPricing)
		}
		return daily(cfg, u.NumPosts)
	case models.PricingPeriod:
		if !u.isPeriod() || u.NumPosts != 0 {
			return Result{}, fmt.Errorf("%w: %s is priced per period, got a post count", ErrPricing, category)
		}
		if u.Start.IsZero() || u.End.IsZero() {
			return Result{}, fmt.Errorf("%w: period needs both start and end", ErrPricing)
		}
		if u.Start.After(u.End) {
			return Result{}, fmt.Errorf("%w: start date is after end date", ErrPricing)
		}
		return period(cfg, u.Start, u.End)
	}
	return Result{}, fmt.Errorf("%w: unknown model %q", ErrPricing, cfg.Model)
}

func daily(cfg CategoryConfig, n int) (Result, error) {
	pkgs, err := sortedPackages(cfg)
	if err != nil {
		return Result{}, err
	}
	for _, p := range pkgs {
		if n <= p.capacity {
			return Result{PackageName: p.name, UnitPrice: p.price, Count: n, Model: models.PricingDaily, TotalPrice: p.price}, nil
		}
	}

	var total float64
	if cfg.PricePerExtraItem != nil {
		total = math.Round(*cfg.PricePerExtraItem * float64(n))
	} else {
		largest := pkgs[len(pkgs)-1]
		total = math.Round(largest.price / float64(largest.capacity) * float64(n))
	}
	return Result{
		PackageName: fmt.Sprintf("custom_%d_posts", n),
		UnitPrice:   total,
		Count:       n,
		Model:       models.PricingDaily,
		TotalPrice:  total,
	}, nil
}

func period(cfg CategoryConfig, start, end time.Time) (Result, error) {
	days := DaysInclusive(start, end)
	pkgs, err := sortedPackages(cfg)
	if err != nil {
		return Result{}, err
	}
	for _, p := range pkgs {
		if days <= p.capacity {
			return Result{PackageName: p.name, UnitPrice: p.price, Count: days, Model: models.PricingPeriod, TotalPrice: p.price}, nil
		}
	}

	base := cfg.BasePricePerDay
	if base == 0 {
		base = defaultBasePricePerDay
	}
	total := base * float64(days) * periodDiscount
	return Result{
		PackageName: fmt.Sprintf("custom_%dd", days),
		UnitPrice:   total,
		Count:       days,
		Model:       models.PricingPeriod,
		TotalPrice:  total,
	}, nil
}

// DaysInclusive counts calendar days in [start, end].
func DaysInclusive(start, end time.Time) int {
	s := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	e := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	return int(e.Sub(s).Hours()/24) + 1
}

// FirstPackage is the smallest-capacity package of a category; payments charge it.
func FirstPackage(t Table, category models.Category) (name string, price float64, err error) {
	cfg, ok := t[category]
	if !ok {
		return "", 0, fmt.Errorf("%w: category %q is not configured", ErrPricing, category)
	}
	pkgs, err := sortedPackages(cfg)
	if err != nil {
		return "", 0, err
	}
	return pkgs[0].name, pkgs[0].price, nil
}
