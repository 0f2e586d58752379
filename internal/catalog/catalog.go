package catalog

import (
	"fmt"
	"regexp"
	"strings"
)

// Translation describes one Bible edition the app knows how to fetch.
// Descriptors are immutable once the catalog is built.
type Translation struct {
	ID         string
	Name       string
	Language   string
	DBFileName string
}

// TablePrefix returns the identifier prefix used by the translation's
// books/verses tables inside its database file.
func (t Translation) TablePrefix() string {
	return strings.ToLower(t.ID)
}

// prefixPattern is the shape a table prefix must have before it may be
// interpolated into a schema-qualified identifier.
var prefixPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// UnknownTranslationError is returned when an id is not in the catalog.
type UnknownTranslationError struct {
	ID string
}

func (e *UnknownTranslationError) Error() string {
	return fmt.Sprintf("unknown translation %q", e.ID)
}

// Catalog is the registry of available translations, keyed by id.
type Catalog struct {
	byID  map[string]Translation
	order []Translation
}

func New(translations ...Translation) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]Translation, len(translations))}

	for _, t := range translations {
		if t.ID == "" || t.DBFileName == "" {
			return nil, fmt.Errorf("translation %q is missing an id or file name", t.ID)
		}

		if !prefixPattern.MatchString(t.TablePrefix()) {
			return nil, fmt.Errorf("translation %q has an invalid table prefix %q", t.ID, t.TablePrefix())
		}

		if _, exists := c.byID[t.ID]; exists {
			return nil, fmt.Errorf("duplicate translation id %q", t.ID)
		}

		c.byID[t.ID] = t
		c.order = append(c.order, t)
	}

	return c, nil
}

// Default returns the built-in registry of public domain translations.
func Default() *Catalog {
	c, err := New(
		Translation{ID: "KJV", Name: "King James Version", Language: "en", DBFileName: "KJV.db"},
		Translation{ID: "ASV", Name: "American Standard Version", Language: "en", DBFileName: "ASV.db"},
		Translation{ID: "WEB", Name: "World English Bible", Language: "en", DBFileName: "WEB.db"},
		Translation{ID: "YLT", Name: "Young's Literal Translation", Language: "en", DBFileName: "YLT.db"},
		Translation{ID: "BBE", Name: "Bible in Basic English", Language: "en", DBFileName: "BBE.db"},
	)
	if err != nil {
		panic("catalog: invalid built-in registry: " + err.Error())
	}

	return c
}

// Get returns the descriptor for id.
func (c *Catalog) Get(id string) (Translation, error) {
	t, ok := c.byID[id]
	if !ok {
		return Translation{}, &UnknownTranslationError{ID: id}
	}

	return t, nil
}

// All returns every descriptor in registration order.
func (c *Catalog) All() []Translation {
	out := make([]Translation, len(c.order))
	copy(out, c.order)

	return out
}

// ByFileName returns the descriptor whose database file matches filename.
func (c *Catalog) ByFileName(filename string) (Translation, bool) {
	for _, t := range c.order {
		if t.DBFileName == filename {
			return t, true
		}
	}

	return Translation{}, false
}
