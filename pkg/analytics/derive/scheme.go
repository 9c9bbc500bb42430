package derive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/synaptica-ai/hospital-analytics/pkg/common/models"
	"gopkg.in/yaml.v3"
)

// OpenEnded marks a bucket without an upper bound.
const OpenEnded = -1

type Bucket struct {
	Label   string   `yaml:"label" json:"label"`
	Min     int      `yaml:"min" json:"min"`
	Max     int      `yaml:"max" json:"max"`
	Aliases []string `yaml:"aliases,omitempty" json:"aliases,omitempty"`
}

func (b Bucket) contains(age int) bool {
	if age < b.Min {
		return false
	}
	return b.Max == OpenEnded || age <= b.Max
}

// Scheme is an ordered set of age buckets. Bounds are inclusive.
type Scheme struct {
	Name    string   `yaml:"name" json:"name"`
	Buckets []Bucket `yaml:"buckets" json:"buckets"`
}

var (
	// SchemeStandard places 60 in "46-60" and labels the top bucket "61+".
	SchemeStandard = Scheme{
		Name: "standard",
		Buckets: []Bucket{
			{Label: "0-18", Min: 0, Max: 18},
			{Label: "19-30", Min: 19, Max: 30},
			{Label: "31-45", Min: 31, Max: 45},
			{Label: "46-60", Min: 46, Max: 60},
			{Label: "61+", Min: 61, Max: OpenEnded},
		},
	}

	// SchemeAdmission is used by the admission views: 60 already counts as "60+".
	// The dashboard still sends "46-60" for the fourth bucket, hence the alias.
	SchemeAdmission = Scheme{
		Name: "admission",
		Buckets: []Bucket{
			{Label: "0-18", Min: 0, Max: 18},
			{Label: "19-30", Min: 19, Max: 30},
			{Label: "31-45", Min: 31, Max: 45},
			{Label: "46-59", Min: 46, Max: 59, Aliases: []string{"46-60"}},
			{Label: "60+", Min: 60, Max: OpenEnded},
		},
	}

	ErrUnknownScheme = errors.New("unknown bucket scheme")
)

// AgeBucket maps an age onto the scheme's label. Ages outside every bucket
// map to models.Unknown.
func AgeBucket(age int, scheme Scheme) string {
	for _, b := range scheme.Buckets {
		if b.contains(age) {
			return b.Label
		}
	}
	return models.Unknown
}

func (s Scheme) Labels() []string {
	labels := make([]string, 0, len(s.Buckets))
	for _, b := range s.Buckets {
		labels = append(labels, b.Label)
	}
	return labels
}

// Resolve returns the canonical label for a label or one of its aliases.
func (s Scheme) Resolve(label string) (string, bool) {
	b, ok := s.find(label)
	if !ok {
		return "", false
	}
	return b.Label, true
}

// Range returns the inclusive age bounds of a label. max is OpenEnded for the
// top bucket.
func (s Scheme) Range(label string) (min, max int, ok bool) {
	b, ok := s.find(label)
	if !ok {
		return 0, 0, false
	}
	return b.Min, b.Max, true
}

func (s Scheme) find(label string) (Bucket, bool) {
	label = strings.TrimSpace(label)
	for _, b := range s.Buckets {
		if b.Label == label {
			return b, true
		}
		for _, alias := range b.Aliases {
			if alias == label {
				return b, true
			}
		}
	}
	return Bucket{}, false
}

// Validate checks that the buckets are ascending, contiguous, non-overlapping,
// start at models.MinAge and cover every age up to models.MaxAge.
func (s Scheme) Validate() error {
	if s.Name == "" {
		return errors.New("scheme name required")
	}
	if len(s.Buckets) == 0 {
		return fmt.Errorf("scheme %q has no buckets", s.Name)
	}
	seen := make(map[string]struct{}, len(s.Buckets))
	next := models.MinAge
	for i, b := range s.Buckets {
		if b.Label == "" {
			return fmt.Errorf("scheme %q bucket %d has no label", s.Name, i)
		}
		if _, dup := seen[b.Label]; dup {
			return fmt.Errorf("scheme %q repeats label %q", s.Name, b.Label)
		}
		seen[b.Label] = struct{}{}
		if b.Min != next {
			return fmt.Errorf("scheme %q bucket %q starts at %d, expected %d", s.Name, b.Label, b.Min, next)
		}
		if b.Max == OpenEnded {
			if i != len(s.Buckets)-1 {
				return fmt.Errorf("scheme %q bucket %q is open-ended but not last", s.Name, b.Label)
			}
			return nil
		}
		if b.Max < b.Min {
			return fmt.Errorf("scheme %q bucket %q has max below min", s.Name, b.Label)
		}
		next = b.Max + 1
	}
	if next <= models.MaxAge {
		return fmt.Errorf("scheme %q stops at %d", s.Name, next-1)
	}
	return nil
}

// Registry holds the bucket schemes available to the views by name.
type Registry struct {
	schemes map[string]Scheme
	order   []string
}

func NewRegistry(schemes ...Scheme) *Registry {
	r := &Registry{schemes: make(map[string]Scheme)}
	for _, s := range schemes {
		r.add(s)
	}
	return r
}

// DefaultRegistry contains the standard and admission schemes.
func DefaultRegistry() *Registry {
	return NewRegistry(SchemeStandard, SchemeAdmission)
}

func (r *Registry) add(s Scheme) {
	if _, exists := r.schemes[s.Name]; !exists {
		r.order = append(r.order, s.Name)
	}
	r.schemes[s.Name] = s
}

func (r *Registry) Lookup(name string) (Scheme, error) {
	if name == "" {
		name = SchemeStandard.Name
	}
	s, ok := r.schemes[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Scheme{}, fmt.Errorf("%w: %s", ErrUnknownScheme, name)
	}
	return s, nil
}

func (r *Registry) All() []Scheme {
	out := make([]Scheme, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.schemes[name])
	}
	return out
}

type schemesFile struct {
	Schemes []Scheme `yaml:"schemes"`
}

// LoadSchemes reads additional schemes from a YAML file and returns a registry
// holding the built-in schemes plus the file's. Built-ins can be overridden by
// name. An empty path yields the default registry.
func LoadSchemes(path string) (*Registry, error) {
	registry := DefaultRegistry()
	if path == "" {
		return registry, nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return registry, err
	}

	var file schemesFile
	if err := yaml.Unmarshal(content, &file); err != nil {
		return registry, fmt.Errorf("parsing scheme file: %w", err)
	}
	for _, s := range file.Schemes {
		s.Name = strings.ToLower(strings.TrimSpace(s.Name))
		if err := s.Validate(); err != nil {
			return registry, err
		}
		registry.add(s)
	}
	return registry, nil
}
