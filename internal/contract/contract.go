// Package contract holds the product catalog and parses mark-price keys and
// bulk mark imports.
package contract

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/pnl-engine/internal/model"
)

// Supported products.
const (
	ProductBrent    = "Brent"
	ProductHenryHub = "Henry Hub"
	ProductJKM      = "JKM"
	ProductTTF      = "TTF"
)

var monthly = []string{
	"2602", "2603", "2604", "2605", "2606", "2607", "2608", "2609",
	"2610", "2611", "2612", "2701", "2702", "2703", "26Q4", "27Q1",
}

// Contracts lists the contract codes offered per product.
var Contracts = map[string][]string{
	ProductBrent:    monthly,
	ProductHenryHub: {"HH2511", "HH2512", "HH2601", "HH2607"},
	ProductJKM:      monthly,
	ProductTTF:      monthly,
}

// Traders lists the desk's trader identifiers.
var Traders = []string{"W", "L", "Z", "D"}

// contractRegex matches monthly (2605), quarterly (26Q4) and HH-prefixed
// (HH2511) contract codes.
var contractRegex = regexp.MustCompile(`^(HH)?\d{2}(\d{2}|Q[1-4])$`)

var (
	ErrInvalidMarkKey  = errors.New("contract: invalid mark key")
	ErrInvalidContract = errors.New("contract: invalid contract code")
	ErrInvalidPrice    = errors.New("contract: invalid price")
)

// IsKnownProduct reports whether the product is in the catalog.
func IsKnownProduct(product string) bool {
	_, ok := Contracts[product]
	return ok
}

// ValidateContract checks that a contract code is well-formed.
func ValidateContract(code string) error {
	if !contractRegex.MatchString(code) {
		return fmt.Errorf("%w: %q", ErrInvalidContract, code)
	}
	return nil
}

// ParseMarkKey splits a "Product::Contract" key. A key without the separator
// is a generic, product-agnostic contract key.
func ParseMarkKey(key string) (product, code string, err error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", "", fmt.Errorf("%w: empty", ErrInvalidMarkKey)
	}
	if !strings.Contains(key, "::") {
		return model.GenericProduct, key, nil
	}
	parts := strings.Split(key, "::")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: %q (expected Product::Contract)", ErrInvalidMarkKey, key)
	}
	return parts[0], parts[1], nil
}

// ParseMarkImport decodes a bulk mark file. Three shapes are accepted and may
// be mixed in one object:
//
//	{"Brent": {"2605": 85.5}}  nested by product
//	{"Brent::2605": 85.5}      scoped key
//	{"2605": 85.5}             generic contract
//
// The result is sorted by key so repeated imports write in the same order.
func ParseMarkImport(data []byte, now time.Time) ([]model.MarkPrice, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode mark import: %w", err)
	}

	var marks []model.MarkPrice
	for key, value := range raw {
		var nested map[string]decimal.Decimal
		if err := json.Unmarshal(value, &nested); err == nil {
			for code, price := range nested {
				if price.IsNegative() {
					return nil, fmt.Errorf("%w: %s::%s", ErrInvalidPrice, key, code)
				}
				marks = append(marks, model.MarkPrice{Product: key, Contract: code, Price: price, UpdatedAt: now})
			}
			continue
		}

		var price decimal.Decimal
		if err := json.Unmarshal(value, &price); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidPrice, key)
		}
		if price.IsNegative() {
			return nil, fmt.Errorf("%w: %s", ErrInvalidPrice, key)
		}
		product, code, err := ParseMarkKey(key)
		if err != nil {
			return nil, err
		}
		marks = append(marks, model.MarkPrice{Product: product, Contract: code, Price: price, UpdatedAt: now})
	}

	sort.Slice(marks, func(i, j int) bool { return marks[i].Key() < marks[j].Key() })
	return marks, nil
}
