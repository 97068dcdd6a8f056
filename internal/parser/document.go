package parser

import (
	"fmt"
	"io"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/IshaanNene/boxharvest/internal/types"
)

// Document is a read-only parsed listing page.
type Document struct {
	root *html.Node
	url  string
}

// NewDocument wraps an already parsed goquery document.
func NewDocument(doc *goquery.Document, sourceURL string) *Document {
	var root *html.Node
	if len(doc.Nodes) > 0 {
		root = doc.Nodes[0]
	}
	return &Document{root: root, url: sourceURL}
}

// ParseDocument parses HTML from r.
func ParseDocument(r io.Reader, sourceURL string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, &types.ParseError{URL: sourceURL, Err: fmt.Errorf("parse html: %w", err)}
	}
	return NewDocument(doc, sourceURL), nil
}

// DocumentFromResponse parses the body of a fetched page.
func DocumentFromResponse(resp *types.Response) (*Document, error) {
	doc, err := resp.Document()
	if err != nil {
		return nil, &types.ParseError{URL: resp.Request.URLString(), Err: fmt.Errorf("parse html: %w", err)}
	}
	return NewDocument(doc, resp.Request.URLString()), nil
}

// Root returns the document node.
func (d *Document) Root() *html.Node { return d.root }

// URL returns the page the document was parsed from.
func (d *Document) URL() string { return d.url }

// Element is a matched node. It is only valid while its Document is.
type Element struct {
	Node *html.Node
}

// Tag returns the element name.
func (e Element) Tag() string { return e.Node.Data }

// Attr returns the value of the named attribute.
func (e Element) Attr(name string) (string, bool) {
	return attrValue(e.Node, name)
}

// Text returns the concatenated text of all descendants.
func (e Element) Text() string {
	return goquery.NewDocumentFromNode(e.Node).Text()
}
