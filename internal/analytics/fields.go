package analytics

import (
	"github.com/pariz/gountries"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"bloglytics/internal/filters"
)

// viewFieldColumns is the filter-path allowlist for queries over raw views.
// Dotted paths map to the columns of the joined view query; anything absent
// here is rejected at compile time, so field names never reach SQL verbatim.
var viewFieldColumns = map[string]string{
	"blog.id":           "b.id",
	"blog.title":        "b.title",
	"blog.created_at":   "b.created_at",
	"author.id":         "a.id",
	"author.username":   "a.username",
	"blog.author.id":    "a.id",
	"country.id":        "c.id",
	"country.code":      "c.code",
	"country.name":      "c.name",
	"country.continent": "c.continent",
	"blog.country.code": "c.code",
	"user_id":           "v.user_id",
	"viewed_at":         "v.viewed_at",
	"created_at":        "v.viewed_at",
}

// ViewFieldResolver resolves filter paths against the joined view query.
var ViewFieldResolver = filters.MapResolver(viewFieldColumns)

// compileViewFilters lowers an optional filter tree for the view query.
func compileViewFilters(node *filters.Node) (*filters.Predicate, error) {
	if node == nil {
		return nil, nil
	}
	pred, err := filters.Compile(node, ViewFieldResolver)
	if err != nil {
		return nil, err
	}
	return &pred, nil
}

// countryLabel resolves a country display label: stored name first, then the
// gountries lookup for the code, then the upper-cased code itself.
func countryLabel(name, code string) string {
	if name != "" {
		return name
	}
	if country, err := gountries.New().FindCountryByAlpha(code); err == nil {
		return country.Name.Common
	}
	return cases.Upper(language.AmericanEnglish).String(code)
}
