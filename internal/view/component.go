// Package view holds the page components that navigation paths bind to.
//
// A Component is a reference to a page template under web/templates. The
// template itself is owned and rendered by the HTML renderer; this package
// only names it.
package view

// Group classifies a component by the interface it belongs to.
type Group string

const (
	GroupShared  Group = "shared"
	GroupBank    Group = "bank"
	GroupCompany Group = "company"
)

// Component is a page rendered for a route.
type Component struct {
	Name     string
	Template string
	Title    string
	Group    Group
}

// String returns the component name.
func (c *Component) String() string {
	if c == nil {
		return "<nil>"
	}
	return c.Name
}
