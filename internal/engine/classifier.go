package engine

import (
	"net/url"
	"strings"
)

// PageType labels a page by its apparent role on the site.
type PageType string

// Supported page types. Classification falls back to PageTypeGeneric.
const (
	PageTypeHome      PageType = "home"
	PageTypeAbout     PageType = "about"
	PageTypeContact   PageType = "contact"
	PageTypeProduct   PageType = "product"
	PageTypeService   PageType = "service"
	PageTypeBlog      PageType = "blog"
	PageTypeNews      PageType = "news"
	PageTypeDashboard PageType = "dashboard"
	PageTypeGeneric   PageType = "generic"
)

// classifierRule matches a page type by path or title substring. Rules are
// evaluated in order; the first hit wins.
type classifierRule struct {
	pageType PageType
	paths    []string
	titles   []string
}

var classifierRules = []classifierRule{
	{PageTypeAbout, []string{"about", "team", "company"}, []string{"about"}},
	{PageTypeContact, []string{"contact", "support"}, []string{"contact"}},
	{PageTypeProduct, []string{"product", "shop", "store", "pricing"}, []string{"product", "pricing"}},
	{PageTypeService, []string{"service"}, []string{"service"}},
	{PageTypeBlog, []string{"blog", "article", "post"}, []string{"blog"}},
	{PageTypeNews, []string{"news", "press"}, []string{"news"}},
	{PageTypeDashboard, []string{"dashboard", "admin", "account"}, []string{"dashboard"}},
}

// Classify maps a URL and title to a PageType. It is a pure function: the
// same inputs always produce the same label, with no side effects.
func Classify(rawURL, title string) PageType {
	path := "/"
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		path = strings.ToLower(u.Path)
	}
	lowerTitle := strings.ToLower(title)

	if path == "/" || path == "" {
		return PageTypeHome
	}
	for _, rule := range classifierRules {
		for _, p := range rule.paths {
			if strings.Contains(path, p) {
				return rule.pageType
			}
		}
		for _, t := range rule.titles {
			if t != "" && strings.Contains(lowerTitle, t) {
				return rule.pageType
			}
		}
	}
	if strings.Contains(lowerTitle, "home") || strings.Contains(lowerTitle, "welcome") {
		return PageTypeHome
	}
	return PageTypeGeneric
}

// Color returns the fixed display color for the page type. The switch is
// exhaustive over the enum; unknown values get the generic color.
func (t PageType) Color() string {
	switch t {
	case PageTypeHome:
		return "#4f46e5"
	case PageTypeAbout:
		return "#0ea5e9"
	case PageTypeContact:
		return "#10b981"
	case PageTypeProduct:
		return "#f59e0b"
	case PageTypeService:
		return "#8b5cf6"
	case PageTypeBlog:
		return "#ec4899"
	case PageTypeNews:
		return "#ef4444"
	case PageTypeDashboard:
		return "#14b8a6"
	case PageTypeGeneric:
		return "#6b7280"
	default:
		return "#6b7280"
	}
}
