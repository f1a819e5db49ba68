// Package dataset loads and validates the static condition graphs that the
// likelihood scorer ranks against.
package dataset

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/symptom-likelihood-server/internal/domain"
)

//go:embed data/conditions.yaml
var defaultDataset []byte

// Format is the serialization of a dataset document.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// Document is the authored form of a dataset.
type Document struct {
	Version    string             `json:"version,omitempty" yaml:"version"`
	Categories []domain.Category  `json:"categories,omitempty" yaml:"categories"`
	Conditions []domain.Condition `json:"conditions" yaml:"conditions"`
}

// Loader reads dataset documents and validates them once.
type Loader struct {
	logger  *logrus.Logger
	lenient bool
}

// Option configures a Loader.
type Option func(*Loader)

// WithLenient makes the loader skip malformed conditions with a warning
// instead of rejecting the whole dataset.
func WithLenient(lenient bool) Option {
	return func(l *Loader) {
		l.lenient = lenient
	}
}

// NewLoader creates a dataset loader.
func NewLoader(logger *logrus.Logger, opts ...Option) *Loader {
	l := &Loader{logger: logger}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LoadDefault loads the embedded dataset.
func (l *Loader) LoadDefault() (*domain.Dataset, error) {
	return l.Load(bytes.NewReader(defaultDataset), FormatYAML, "embedded")
}

// LoadPath loads path, or the embedded dataset when path is empty.
func (l *Loader) LoadPath(path string) (*domain.Dataset, error) {
	if path == "" {
		return l.LoadDefault()
	}
	return l.LoadFile(path)
}

// LoadFile loads a YAML or JSON dataset chosen by file extension.
func (l *Loader) LoadFile(path string) (*domain.Dataset, error) {
	format, err := formatFromPath(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening dataset: %w", err)
	}
	defer f.Close()

	return l.Load(f, format, path)
}

// Load decodes, validates and indexes a dataset document.
func (l *Loader) Load(r io.Reader, format Format, source string) (*domain.Dataset, error) {
	doc, err := Decode(r, format)
	if err != nil {
		return nil, fmt.Errorf("decoding dataset %s: %w", source, err)
	}

	valid, problems := l.validate(doc)
	if problems.HasProblems() {
		problems.Source = source
		return nil, problems
	}

	version, err := fingerprint(doc.Version, doc.Categories, valid)
	if err != nil {
		return nil, fmt.Errorf("fingerprinting dataset: %w", err)
	}

	ds := domain.NewDataset(version, doc.Categories, valid)
	if l.logger != nil {
		l.logger.WithFields(logrus.Fields{
			"source":     source,
			"version":    version,
			"categories": len(doc.Categories),
			"conditions": ds.Len(),
		}).Info("Condition dataset loaded")
	}
	return ds, nil
}

// validate returns the conditions to keep and the problems that must reject
// the dataset. In lenient mode condition-level problems are logged and the
// offending condition is dropped.
func (l *Loader) validate(doc *Document) ([]domain.Condition, *domain.MalformedDatasetError) {
	fatal := &domain.MalformedDatasetError{}
	categories := validateCategories(doc.Categories, fatal)

	seen := make(map[string]map[string]bool)
	valid := make([]domain.Condition, 0, len(doc.Conditions))
	for _, c := range doc.Conditions {
		problems := ValidateCondition(c, categories)
		if len(problems) == 0 {
			byName := seen[c.Category]
			if byName == nil {
				byName = make(map[string]bool)
				seen[c.Category] = byName
			}
			if byName[c.Name] {
				problems = append(problems, domain.DatasetProblem{
					Condition: c.Name,
					Message:   fmt.Sprintf("duplicate condition name in category %q", c.Category),
				})
			} else {
				byName[c.Name] = true
			}
		}

		if len(problems) == 0 {
			valid = append(valid, c)
			continue
		}
		if l.lenient {
			for _, p := range problems {
				if l.logger != nil {
					l.logger.WithFields(logrus.Fields{
						"condition": c.Name,
						"problem":   p.Message,
					}).Warn("Skipping malformed condition")
				}
			}
			continue
		}
		fatal.Problems = append(fatal.Problems, problems...)
	}

	if len(valid) == 0 && !fatal.HasProblems() {
		fatal.Problems = append(fatal.Problems, domain.DatasetProblem{Message: "dataset contains no valid conditions"})
	}
	return valid, fatal
}

// Decode parses a dataset document without validating it. Unknown fields are
// rejected so authoring typos surface at load time.
func Decode(r io.Reader, format Format) (*Document, error) {
	doc := &Document{}
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(doc); err != nil {
			if err == io.EOF {
				return doc, nil
			}
			return nil, err
		}
	case FormatJSON:
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(doc); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported dataset format %q", format)
	}
	return doc, nil
}

func formatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported dataset file extension %q", filepath.Ext(path))
	}
}

// fingerprint derives a content version so caches never serve results for
// an edited dataset under an unchanged authored version string.
func fingerprint(authored string, categories []domain.Category, conditions []domain.Condition) (string, error) {
	payload, err := json.Marshal(struct {
		Categories []domain.Category  `json:"categories"`
		Conditions []domain.Condition `json:"conditions"`
	}{categories, conditions})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	digest := hex.EncodeToString(sum[:])[:12]
	if authored == "" {
		return digest, nil
	}
	return authored + "+" + digest, nil
}
