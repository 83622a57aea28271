package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// WelfareServiceSeed is one entry of the welfare service catalog file.
type WelfareServiceSeed struct {
	Code                  string  `yaml:"code"`
	Name                  string  `yaml:"name"`
	Description           string  `yaml:"description"`
	MaxAmount             string  `yaml:"max_amount"`
	MinMembershipMonths   int     `yaml:"min_membership_months"`
	MinConsistencyPercent float64 `yaml:"min_consistency_percent"`
	Active                *bool   `yaml:"active"`
}

type welfareCatalogFile struct {
	Services []WelfareServiceSeed `yaml:"services"`
}

// MaxAmountDecimal parses the catalog's max_amount field.
func (s WelfareServiceSeed) MaxAmountDecimal() (decimal.Decimal, error) {
	return decimal.NewFromString(strings.TrimSpace(s.MaxAmount))
}

// IsActive defaults to true when the catalog omits the flag.
func (s WelfareServiceSeed) IsActive() bool {
	return s.Active == nil || *s.Active
}

// LoadWelfareCatalog reads the YAML welfare service catalog from path.
func LoadWelfareCatalog(path string) ([]WelfareServiceSeed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read welfare catalog '%s': %w", path, err)
	}
	return ParseWelfareCatalog(data)
}

// ParseWelfareCatalog decodes and checks catalog entries.
func ParseWelfareCatalog(data []byte) ([]WelfareServiceSeed, error) {
	var file welfareCatalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse welfare catalog: %w", err)
	}

	seen := make(map[string]bool)
	for i, s := range file.Services {
		code := strings.ToUpper(strings.TrimSpace(s.Code))
		if code == "" || strings.TrimSpace(s.Name) == "" {
			return nil, fmt.Errorf("catalog entry %d: code and name are required", i)
		}
		if seen[code] {
			return nil, fmt.Errorf("catalog entry %d: duplicate code %q", i, code)
		}
		seen[code] = true
		amount, err := s.MaxAmountDecimal()
		if err != nil || !amount.IsPositive() {
			return nil, fmt.Errorf("catalog entry %q: max_amount must be a positive number", code)
		}
		if s.MinMembershipMonths < 0 || s.MinConsistencyPercent < 0 || s.MinConsistencyPercent > 100 {
			return nil, fmt.Errorf("catalog entry %q: thresholds out of range", code)
		}
		file.Services[i].Code = code
	}
	return file.Services, nil
}
