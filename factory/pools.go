/*
Package factory builds pool resolvers from JSON.

PURPOSE:
  How a category's hours are split between the general and the annual pool
  is configuration, not code. HR edits a JSON document and the factory
  turns it into a ledger.RatioResolver.

JSON SCHEMA:
  {
    "default":    {"annual_share": "0"},
    "categories": {
      "personal": {"annual_share": "1"},
      "bonus":    {"annual_share": "0.5"}
    }
  }

  annual_share is a decimal string in [0, 1]. The general pool takes the
  rest. Categories not listed use the default.

USAGE:
  resolver, err := factory.LoadPools("pools.json")
  svc := leave.NewService(store, resolver, cal, nil)

SEE ALSO:
  - ledger/resolver.go: RatioResolver
*/
package factory

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/warp/leave-ledger/leave"
	"github.com/warp/leave-ledger/ledger"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

type PoolsJSON struct {
	Default    ShareJSON            `json:"default"`
	Categories map[string]ShareJSON `json:"categories"`
}

type ShareJSON struct {
	AnnualShare string `json:"annual_share" validate:"omitempty,numeric"`
}

// DefaultPoolsJSON charges every category to the general pool.
const DefaultPoolsJSON = `{"default": {"annual_share": "0"}, "categories": {}}`

var validate = validator.New()

// =============================================================================
// PARSING
// =============================================================================

// ParsePools converts a JSON document into a resolver.
func ParsePools(data []byte) (*ledger.RatioResolver, error) {
	var doc PoolsJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid pools JSON: %w", err)
	}
	if err := validate.Struct(doc); err != nil {
		return nil, fmt.Errorf("invalid pools config: %w", err)
	}

	r := ledger.NewRatioResolver()
	def, err := parseShare(doc.Default)
	if err != nil {
		return nil, fmt.Errorf("default: %w", err)
	}
	if err := checkShare(def); err != nil {
		return nil, fmt.Errorf("default: %w", err)
	}
	r.DefaultShare = def

	for name, s := range doc.Categories {
		if !leave.Category(name).Valid() {
			return nil, fmt.Errorf("unknown category %q", name)
		}
		if err := validate.Struct(s); err != nil {
			return nil, fmt.Errorf("category %s: %w", name, err)
		}
		share, err := parseShare(s)
		if err != nil {
			return nil, fmt.Errorf("category %s: %w", name, err)
		}
		if err := r.SetShare(name, share); err != nil {
			return nil, fmt.Errorf("category %s: %w", name, err)
		}
	}
	return r, nil
}

// LoadPools reads a JSON file. An empty path yields the default resolver.
func LoadPools(path string) (*ledger.RatioResolver, error) {
	if path == "" {
		return ParsePools([]byte(DefaultPoolsJSON))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pools file: %w", err)
	}
	return ParsePools(data)
}

func parseShare(s ShareJSON) (decimal.Decimal, error) {
	if s.AnnualShare == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s.AnnualShare)
	if err != nil {
		return decimal.Zero, fmt.Errorf("annual_share %q: %w", s.AnnualShare, err)
	}
	return d, nil
}

func checkShare(d decimal.Decimal) error {
	if d.IsNegative() || d.GreaterThan(decimal.NewFromInt(1)) {
		return ledger.ErrInvalidShare
	}
	return nil
}
