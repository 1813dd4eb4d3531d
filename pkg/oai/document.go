// Package oai navigates OAI-PMH response documents. The harvester only
// needs four things from an XML library: parse a document, find elements
// by namespaced tag, read an attribute, and serialize a subtree back to
// text. All four are provided here on top of etree so the rest of the
// code never touches XML directly.
package oai

import (
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/oaiharvest/oaiharvest/pkg/errors"
)

// Namespace is the OAI-PMH 2.0 XML namespace.
const Namespace = "http://www.openarchives.org/OAI/2.0/"

// Protocol error codes embedded in HTTP-success responses.
const (
	ErrCodeCannotDisseminateFormat = "cannotDisseminateFormat"
	ErrCodeIDDoesNotExist          = "idDoesNotExist"
)

// Verbs of the protocol requests the harvester issues.
const (
	VerbListSets        = "ListSets"
	VerbListIdentifiers = "ListIdentifiers"
	VerbListRecords     = "ListRecords"
	VerbGetRecord       = "GetRecord"
)

// Document is a parsed OAI-PMH response.
type Document struct {
	doc *etree.Document
}

// Parse parses a response body into a Document.
func Parse(data []byte) (*Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeProtocol, "failed to parse response document")
	}
	if doc.Root() == nil {
		return nil, errors.New(errors.ErrorTypeProtocol, "response document has no root element")
	}
	return &Document{doc: doc}, nil
}

// FindAll returns all descendant elements with the given local tag in the
// OAI-PMH namespace, in document order.
func (d *Document) FindAll(tag string) []*etree.Element {
	var found []*etree.Element
	walk(d.doc.Root(), func(el *etree.Element) {
		if el.Tag == tag && el.NamespaceURI() == Namespace {
			found = append(found, el)
		}
	})
	return found
}

// Find returns the first matching element or nil.
func (d *Document) Find(tag string) *etree.Element {
	all := d.FindAll(tag)
	if len(all) == 0 {
		return nil
	}
	return all[0]
}

// ResumptionToken returns the continuation cursor and the advertised
// complete list size. ok is false when the response carries no
// resumptionToken element at all. A token that decodes to an empty string
// is returned as "" and is treated by callers exactly like an absent one.
func (d *Document) ResumptionToken() (token string, completeListSize int, ok bool) {
	el := d.Find("resumptionToken")
	if el == nil {
		return "", 0, false
	}
	token = strings.TrimSpace(el.Text())
	if v := el.SelectAttrValue("completeListSize", ""); v != "" {
		// Some servers advertise approximate or even non-numeric sizes;
		// an unparseable attribute counts as absent.
		if n, err := strconv.Atoi(v); err == nil {
			completeListSize = n
		}
	}
	return token, completeListSize, true
}

// Identifiers returns the text of every identifier element.
func (d *Document) Identifiers() []string {
	els := d.FindAll("identifier")
	ids := make([]string, 0, len(els))
	for _, el := range els {
		if text := strings.TrimSpace(el.Text()); text != "" {
			ids = append(ids, text)
		}
	}
	return ids
}

// Records returns every record element of a ListRecords page.
func (d *Document) Records() []*etree.Element {
	return d.FindAll("record")
}

// ErrorCode returns the protocol error code embedded in the response, if
// any. An HTTP success carrying one of these is an application-level
// failure, not a transport failure.
func (d *Document) ErrorCode() (string, bool) {
	el := d.Find("error")
	if el == nil {
		return "", false
	}
	return el.SelectAttrValue("code", ""), true
}

// HasProtocolError reports whether a raw response body embeds one of the
// given protocol error codes. Unparseable bodies report no error; they
// are the transport layer's problem.
func HasProtocolError(data []byte, codes ...string) (string, bool) {
	doc, err := Parse(data)
	if err != nil {
		return "", false
	}
	code, ok := doc.ErrorCode()
	if !ok {
		return "", false
	}
	if len(codes) == 0 {
		return code, true
	}
	for _, c := range codes {
		if code == c {
			return code, true
		}
	}
	return "", false
}

// Serialize renders an element subtree back to indented XML. The copy
// gets an explicit namespace declaration when the source document carried
// it on an ancestor, so the fragment stays namespace-qualified on its own.
func Serialize(el *etree.Element) (string, error) {
	cp := el.Copy()
	if cp.Space == "" && cp.SelectAttr("xmlns") == nil && el.NamespaceURI() != "" {
		cp.CreateAttr("xmlns", el.NamespaceURI())
	}
	out := etree.NewDocument()
	out.SetRoot(cp)
	out.Indent(2)
	s, err := out.WriteToString()
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeProtocol, "failed to serialize element")
	}
	return s, nil
}

// ElementIdentifier returns the text of the first identifier descendant
// of an element, typically a record header.
func ElementIdentifier(el *etree.Element) string {
	var id string
	walk(el, func(e *etree.Element) {
		if id == "" && e.Tag == "identifier" && e.NamespaceURI() == Namespace {
			id = strings.TrimSpace(e.Text())
		}
	})
	return id
}

func walk(el *etree.Element, fn func(*etree.Element)) {
	if el == nil {
		return
	}
	fn(el)
	for _, child := range el.ChildElements() {
		walk(child, fn)
	}
}
