package knowledge

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/template"
	"unicode"

	"github.com/bytedance/sonic"
	"gopkg.in/yaml.v3"
)

//go:embed data/bakery.yaml
var defaultRaw []byte

type Config struct {
	Path     string `split_words:"true"`
	Phone    string `split_words:"true"`
	Location string `split_words:"true"`
	Website  string `split_words:"true"`
}

type Contact struct {
	Phone    string `yaml:"phone" json:"phone"`
	Location string `yaml:"location" json:"location"`
	Website  string `yaml:"website,omitempty" json:"website,omitempty"`
}

type Product struct {
	Name        string `yaml:"name" json:"name"`
	Price       string `yaml:"price" json:"price"`
	Time        string `yaml:"time" json:"time"`
	Description string `yaml:"description" json:"description"`
}

type Delivery struct {
	Areas string `yaml:"areas" json:"areas"`
	Cost  string `yaml:"cost" json:"cost"`
	Time  string `yaml:"time" json:"time"`
}

type Pickup struct {
	Location string `yaml:"location" json:"location"`
	Cost     string `yaml:"cost" json:"cost"`
	Hours    string `yaml:"hours" json:"hours"`
}

type Wholesale struct {
	Minimum  string `yaml:"minimum" json:"minimum"`
	Discount string `yaml:"discount" json:"discount"`
	Time     string `yaml:"time" json:"time"`
}

type Services struct {
	Delivery  Delivery  `yaml:"delivery" json:"delivery"`
	Pickup    Pickup    `yaml:"pickup" json:"pickup"`
	Wholesale Wholesale `yaml:"wholesale" json:"wholesale"`
}

type Topic struct {
	Name     string   `yaml:"name" json:"name"`
	Keys     []string `yaml:"keys" json:"keys"`
	Template string   `yaml:"template" json:"-"`
}

type Document struct {
	Contact         Contact   `yaml:"contact" json:"contact"`
	Products        []Product `yaml:"products" json:"products"`
	Services        Services  `yaml:"services" json:"services"`
	ProductTemplate string    `yaml:"product_template" json:"-"`
	Topics          []Topic   `yaml:"topics" json:"-"`
}

type entry struct {
	name string
	keys []string
	tmpl *template.Template
	data any
}

// Base answers messages from a fixed, ordered table. Lookups are read-only
// and safe for concurrent use.
type Base struct {
	doc     Document
	entries []entry
}

var funcs = template.FuncMap{
	"title": func(s string) string {
		if s == "" {
			return s
		}
		r := []rune(s)
		r[0] = unicode.ToUpper(r[0])
		return string(r)
	},
}

// Load reads the table from cfg.Path, or the embedded default when empty,
// then applies contact overrides.
func Load(cfg Config) (*Base, error) {
	raw := defaultRaw
	if path := strings.TrimSpace(cfg.Path); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read knowledge file: %w", err)
		}
		raw = b
	}

	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse knowledge yaml: %w", err)
	}
	if v := strings.TrimSpace(cfg.Phone); v != "" {
		doc.Contact.Phone = v
	}
	if v := strings.TrimSpace(cfg.Location); v != "" {
		doc.Contact.Location = v
	}
	if v := strings.TrimSpace(cfg.Website); v != "" {
		doc.Contact.Website = v
	}
	return New(doc)
}

// Default returns the embedded table and panics if it does not parse.
func Default() *Base {
	b, err := Load(Config{})
	if err != nil {
		panic(err)
	}
	return b
}

func New(doc Document) (*Base, error) {
	if len(doc.Products) > 0 && strings.TrimSpace(doc.ProductTemplate) == "" {
		return nil, errors.New("knowledge: product_template is required when products are listed")
	}

	b := &Base{doc: doc}
	if len(doc.Products) > 0 {
		productTmpl, err := template.New("product").Funcs(funcs).Parse(doc.ProductTemplate)
		if err != nil {
			return nil, fmt.Errorf("knowledge: parse product template: %w", err)
		}
		for _, p := range doc.Products {
			name := strings.ToLower(strings.TrimSpace(p.Name))
			if name == "" {
				return nil, errors.New("knowledge: product name is empty")
			}
			b.entries = append(b.entries, entry{name: name, keys: []string{name}, tmpl: productTmpl, data: p})
		}
	}

	for _, t := range doc.Topics {
		tmpl, err := template.New(t.Name).Funcs(funcs).Parse(t.Template)
		if err != nil {
			return nil, fmt.Errorf("knowledge: parse topic %q: %w", t.Name, err)
		}
		keys := make([]string, 0, len(t.Keys))
		for _, k := range t.Keys {
			if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
				keys = append(keys, k)
			}
		}
		if len(keys) == 0 {
			return nil, fmt.Errorf("knowledge: topic %q has no keys", t.Name)
		}
		b.entries = append(b.entries, entry{name: t.Name, keys: keys, tmpl: tmpl, data: doc})
	}
	return b, nil
}

// Match returns the rendered reply of the first entry, in declared order,
// with a key contained in message. Matching is case-insensitive.
func (b *Base) Match(message string) (string, string, bool) {
	if b == nil {
		return "", "", false
	}
	lower := strings.ToLower(message)
	for _, e := range b.entries {
		for _, k := range e.keys {
			if !strings.Contains(lower, k) {
				continue
			}
			var buf bytes.Buffer
			if err := e.tmpl.Execute(&buf, e.data); err != nil {
				continue
			}
			return buf.String(), e.name, true
		}
	}
	return "", "", false
}

func (b *Base) Contact() Contact {
	return b.doc.Contact
}

// JSON serializes the factual part of the table for prompts.
func (b *Base) JSON() string {
	out, err := sonic.ConfigStd.MarshalIndent(b.doc, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(out)
}
