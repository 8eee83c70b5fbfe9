// internal/browser/dom/locate.go
package dom

import (
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/wdatoms/internal/errcode"
)

// Locator strategies. Both the camel-case atom names and the W3C spellings
// are accepted.
const (
	ByID              = "id"
	ByName            = "name"
	ByClassName       = "className"
	ByCSS             = "css"
	ByTagName         = "tagName"
	ByLinkText        = "linkText"
	ByPartialLinkText = "partialLinkText"
	ByXPath           = "xpath"
)

var strategyAliases = map[string]string{
	"id":                ByID,
	"name":              ByName,
	"classname":         ByClassName,
	"class name":        ByClassName,
	"css":               ByCSS,
	"css selector":      ByCSS,
	"tagname":           ByTagName,
	"tag name":          ByTagName,
	"linktext":          ByLinkText,
	"link text":         ByLinkText,
	"partiallinktext":   ByPartialLinkText,
	"partial link text": ByPartialLinkText,
	"xpath":             ByXPath,
}

// NormalizeStrategy maps a strategy spelling to its canonical name.
func NormalizeStrategy(strategy string) (string, bool) {
	s, ok := strategyAliases[strings.ToLower(strings.TrimSpace(strategy))]
	return s, ok
}

// Find returns the first element under root matching the locator, or nil.
func Find(root *html.Node, strategy, target string) (*html.Node, error) {
	nodes, err := FindAll(root, strategy, target)
	if err != nil || len(nodes) == 0 {
		return nil, err
	}
	return nodes[0], nil
}

// FindAll returns every element under root matching the locator, in document
// order. root may be a document or an element; an element root is never
// matched itself.
func FindAll(root *html.Node, strategy, target string) ([]*html.Node, error) {
	canonical, ok := NormalizeStrategy(strategy)
	if !ok {
		return nil, errcode.New(errcode.InvalidSelector, "Unsupported locator strategy: %s", strategy)
	}
	if root == nil {
		return nil, nil
	}

	switch canonical {
	case ByLinkText, ByPartialLinkText:
		return findLinks(root, target, canonical == ByPartialLinkText)
	case ByXPath:
		return queryElements(root, target)
	case ByCSS:
		return queryCSS(root, target)
	}

	expr, err := locatorXPath(canonical, target)
	if err != nil {
		return nil, err
	}
	return queryElements(root, expr)
}

func locatorXPath(strategy, target string) (string, error) {
	switch strategy {
	case ByID:
		return ".//*[@id=" + xpathLiteral(target) + "]", nil
	case ByName:
		return ".//*[@name=" + xpathLiteral(target) + "]", nil
	case ByClassName:
		target = strings.TrimSpace(target)
		if target == "" {
			return "", errcode.New(errcode.InvalidSelector, "Class name must not be empty")
		}
		if strings.ContainsAny(target, " \t\n") {
			return "", errcode.New(errcode.InvalidSelector, "Compound class names not permitted")
		}
		return ".//*" + classPredicate(target), nil
	case ByTagName:
		if !isIdent(target) {
			return "", errcode.New(errcode.InvalidSelector, "Invalid tag name: %s", target)
		}
		return ".//" + strings.ToLower(target), nil
	}
	return "", errcode.New(errcode.InvalidSelector, "Unsupported locator strategy: %s", strategy)
}

// queryElements evaluates an XPath expression relative to root. Syntax errors
// are XPath lookup failures; results that are not elements are rejected.
func queryElements(root *html.Node, expr string) ([]*html.Node, error) {
	nodes, err := htmlquery.QueryAll(root, expr)
	if err != nil {
		return nil, errcode.Wrap(errcode.XPathLookup, err, "Unable to locate an element with the xpath expression %s because of the following error: %v", expr, err)
	}
	for _, n := range nodes {
		if n.Type != html.ElementNode {
			return nil, errcode.New(errcode.InvalidSelector, "The result of the xpath expression %q is not an element.", expr)
		}
	}
	return nodes, nil
}

func findLinks(root *html.Node, text string, partial bool) ([]*html.Node, error) {
	links, err := htmlquery.QueryAll(root, ".//a")
	if err != nil {
		return nil, errcode.Wrap(errcode.UnknownError, err, "")
	}
	var out []*html.Node
	for _, a := range links {
		visible := strings.TrimSpace(VisibleText(a))
		if (partial && strings.Contains(visible, text)) || (!partial && visible == strings.TrimSpace(text)) {
			out = append(out, a)
		}
	}
	return out, nil
}

// queryCSS matches a selector group below root with cascadia. root itself is
// never a match.
func queryCSS(root *html.Node, selector string) ([]*html.Node, error) {
	if strings.TrimSpace(selector) == "" {
		return nil, errcode.New(errcode.InvalidSelector, "An invalid or illegal selector was specified")
	}
	group, err := cascadia.ParseGroup(selector)
	if err != nil {
		return nil, errcode.Wrap(errcode.InvalidSelector, err, "An invalid or illegal selector was specified: %s: %v", selector, err)
	}
	return cascadia.QueryAll(root, group), nil
}

func classPredicate(name string) string {
	return "[contains(concat(' ', normalize-space(@class), ' '), " + xpathLiteral(" "+name+" ") + ")]"
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

// xpathLiteral quotes s for use in an XPath expression, falling back to
// concat() when it contains both quote characters.
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		quoted = append(quoted, "'"+p+"'")
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}

// XPathOf builds an absolute XPath that selects n, anchored on the nearest
// ancestor id when there is one. Used to describe elements in logs.
func XPathOf(n *html.Node) string {
	if n == nil {
		return ""
	}
	var steps []string
	for cur := n; cur != nil && cur.Type != html.DocumentNode; cur = cur.Parent {
		if cur.Type != html.ElementNode {
			continue
		}
		tag := TagName(cur)
		if id, ok := Attr(cur, "id"); ok && id != "" {
			steps = append(steps, "//*[@id="+xpathLiteral(id)+"]")
			break
		}
		index := 1
		for prev := cur.PrevSibling; prev != nil; prev = prev.PrevSibling {
			if TagName(prev) == tag {
				index++
			}
		}
		steps = append(steps, fmt.Sprintf("%s[%d]", tag, index))
	}
	if len(steps) == 0 {
		return "/"
	}
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
	path := strings.Join(steps, "/")
	if !strings.HasPrefix(path, "//") {
		path = "/" + path
	}
	return path
}
