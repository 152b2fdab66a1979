// Package knowledge holds the static rule catalogs (landmines, favorable
// provisions, carrier endorsements, coverage sections, depreciation methods)
// and the matcher that applies them. Catalogs are data, not code: they ship
// as embedded YAML, load once at process start, and are read-only afterward,
// so they are freely shared across concurrent pipeline runs.
package knowledge

import (
	"embed"
	"sort"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed catalogs/*.yaml
var catalogFS embed.FS

// Rule is one named domain rule with matching criteria and explanation text.
type Rule struct {
	ID       string `yaml:"id"`
	Title    string `yaml:"title"`
	Category string `yaml:"category"`
	Severity string `yaml:"severity"`

	// Priority orders matching: lower values are checked first. Keyword
	// overlap between rules is resolved purely by this value, so the
	// priority table is tunable without code changes.
	Priority int `yaml:"priority"`

	// ClaimTypes limits applicability; empty means all claim types.
	ClaimTypes []string `yaml:"claim_types"`
	Keywords   []string `yaml:"keywords"`

	// Template is the explanation interpolated with context values pulled
	// from the extraction; Fallback is used when those values are absent.
	Template string `yaml:"template"`
	Fallback string `yaml:"fallback"`
	Action   string `yaml:"action"`
}

// AppliesTo reports whether the rule is relevant to a claim type.
func (r Rule) AppliesTo(claimType string) bool {
	if len(r.ClaimTypes) == 0 {
		return true
	}
	for _, ct := range r.ClaimTypes {
		if ct == claimType {
			return true
		}
	}
	return false
}

// Endorsement is one carrier endorsement catalog entry.
type Endorsement struct {
	Code       string `yaml:"code"`
	Title      string `yaml:"title"`
	Summary    string `yaml:"summary"`
	Beneficial bool   `yaml:"beneficial"`
}

// CoverageSection is a standard homeowner policy coverage section.
type CoverageSection struct {
	Code        string `yaml:"code"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// DepreciationMethod describes a loss settlement method.
type DepreciationMethod struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// Catalog is the loaded, immutable rule corpus.
type Catalog struct {
	Landmines        []Rule
	Favorable        []Rule
	Endorsements     []Endorsement
	CoverageSections []CoverageSection
	Depreciation     []DepreciationMethod
}

// Load parses the embedded catalogs. Rule identifiers must be unique within
// their catalog; rules come out sorted by (priority, id) so matching order
// is deterministic.
func Load() (*Catalog, error) {
	c := &Catalog{}

	if err := loadYAML("catalogs/landmines.yaml", &c.Landmines); err != nil {
		return nil, err
	}
	if err := loadYAML("catalogs/favorable.yaml", &c.Favorable); err != nil {
		return nil, err
	}
	if err := loadYAML("catalogs/endorsements.yaml", &c.Endorsements); err != nil {
		return nil, err
	}
	if err := loadYAML("catalogs/coverage_sections.yaml", &c.CoverageSections); err != nil {
		return nil, err
	}
	if err := loadYAML("catalogs/depreciation.yaml", &c.Depreciation); err != nil {
		return nil, err
	}

	for name, rules := range map[string][]Rule{"landmines": c.Landmines, "favorable": c.Favorable} {
		if err := checkUniqueIDs(name, rules); err != nil {
			return nil, err
		}
		sortRules(rules)
	}

	return c, nil
}

func loadYAML(path string, out any) error {
	data, err := catalogFS.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "knowledge: read %s", path)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return eris.Wrapf(err, "knowledge: parse %s", path)
	}
	return nil
}

func checkUniqueIDs(catalog string, rules []Rule) error {
	seen := make(map[string]bool, len(rules))
	for _, r := range rules {
		if r.ID == "" {
			return eris.Errorf("knowledge: %s catalog has a rule without an id", catalog)
		}
		if seen[r.ID] {
			return eris.Errorf("knowledge: duplicate rule id %q in %s catalog", r.ID, catalog)
		}
		seen[r.ID] = true
	}
	return nil
}

func sortRules(rules []Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority < rules[j].Priority
		}
		return rules[i].ID < rules[j].ID
	})
}
