package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Category is the closed set of notification categories.
type Category string

const (
	CategoryWork     Category = "Work"
	CategoryPersonal Category = "Personal"
	CategoryJunk     Category = "Junk"
)

// Categories lists every category in table iteration order.
// Learned-pattern lookup and score ranking depend on this order.
var Categories = []Category{CategoryWork, CategoryPersonal, CategoryJunk}

// CategoryDescriptions is served by GET /categories.
var CategoryDescriptions = map[Category]string{
	CategoryWork:     "Business, professional, and work-related notifications",
	CategoryPersonal: "Personal messages, social media, and general notifications",
	CategoryJunk:     "Promotional, spam, and unwanted notifications",
}

// ErrInvalidCategory is the sentinel wrapped by InvalidCategoryError.
var ErrInvalidCategory = errors.New("invalid category")

// InvalidCategoryError reports an identifier that is not one of Categories.
type InvalidCategoryError struct {
	Value string
}

func (e *InvalidCategoryError) Error() string {
	return fmt.Sprintf("%q is not a valid category (expected one of %s)", e.Value, categoryList())
}

func (e *InvalidCategoryError) Unwrap() error {
	return ErrInvalidCategory
}

// ParseCategory converts an identifier into a Category. Matching is exact.
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", &InvalidCategoryError{Value: s}
}

// IsValid reports whether c is one of Categories.
func (c Category) IsValid() bool {
	_, err := ParseCategory(string(c))
	return err == nil
}

func (c Category) String() string {
	return string(c)
}

// Lower returns the lowercase form used in reasoning strings.
func (c Category) Lower() string {
	return strings.ToLower(string(c))
}

func categoryList() string {
	names := make([]string, len(Categories))
	for i, c := range Categories {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}
