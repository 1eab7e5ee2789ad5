// Package rules decodes, validates and normalizes watch configurations.
package rules

// Keys recognised in a watch configuration.
const (
	KeySelectChain = "select-chain"
	KeyPairs       = "filters-actions-pairs"
	KeyFilters     = "filters"
	KeyActions     = "actions"
	KeyFunction    = "function"
	KeyArgs        = "args"
	KeyKwargs      = "kwargs"
)

// FunctionSpec names a registered operation and the arguments bound to it.
// The subject is always passed implicitly as the first argument.
type FunctionSpec struct {
	Name   string
	Args   []any
	Kwargs map[string]any
}

// FilterActionPair gates its actions behind an AND of its filters.
type FilterActionPair struct {
	Filters []FunctionSpec
	Actions []FunctionSpec
}

// TargetSpec is one watch rule for a URL.
type TargetSpec struct {
	Select []FunctionSpec
	Pairs  []FilterActionPair
}

// Config maps normalized URLs to their watch rules. URLs keep the order in
// which they first appear in the source file.
type Config struct {
	order   []string
	targets map[string][]TargetSpec
}

// NewConfig returns an empty Config.
func NewConfig() *Config {
	return &Config{targets: make(map[string][]TargetSpec)}
}

// Add normalizes rawURL and appends targets to the rules already held for it.
func (c *Config) Add(rawURL string, targets ...TargetSpec) {
	url := NormalizeURL(rawURL)
	existing, ok := c.targets[url]
	if !ok {
		c.order = append(c.order, url)
	}
	c.targets[url] = append(existing, targets...)
}

// URLs returns the normalized URLs in first-seen order.
func (c *Config) URLs() []string {
	if c == nil {
		return nil
	}
	return append([]string(nil), c.order...)
}

// Targets returns the rules for a normalized URL.
func (c *Config) Targets(url string) []TargetSpec {
	if c == nil {
		return nil
	}
	return c.targets[url]
}

// Len is the number of distinct URLs.
func (c *Config) Len() int {
	if c == nil {
		return 0
	}
	return len(c.order)
}
