package store

import (
	"bytes"
	"encoding/xml"
	"fmt"

	"capcache/pkg/caps"
)

// Codec serializes capability sets for the dataset tiers. The store treats
// the on-disk representation as opaque; the only requirement is that a value
// round-trips through the same codec.
type Codec interface {
	Encode(set *caps.Set) ([]byte, error)
	Decode(data []byte) (*caps.Set, error)
}

// XMLCodec reads and writes the disco#info query document used by dataset
// files: identities and feature vars in the disco#info namespace, extension
// forms as jabber:x:data elements.
type XMLCodec struct{}

type xmlQuery struct {
	XMLName    xml.Name      `xml:"http://jabber.org/protocol/disco#info query"`
	Node       string        `xml:"node,attr,omitempty"`
	Identities []xmlIdentity `xml:"identity"`
	Features   []xmlFeature  `xml:"feature"`
	Forms      []xmlForm     `xml:"jabber:x:data x"`
}

type xmlIdentity struct {
	Category string `xml:"category,attr"`
	Type     string `xml:"type,attr"`
	Lang     string `xml:"lang,attr,omitempty"`
	Name     string `xml:"name,attr,omitempty"`
}

type xmlFeature struct {
	Var string `xml:"var,attr"`
}

type xmlForm struct {
	Type   string     `xml:"type,attr,omitempty"`
	Fields []xmlField `xml:"field"`
}

type xmlField struct {
	Var    string   `xml:"var,attr"`
	Type   string   `xml:"type,attr,omitempty"`
	Values []string `xml:"value"`
}

// Encode serializes the set as a disco#info query document.
func (XMLCodec) Encode(set *caps.Set) ([]byte, error) {
	doc := xmlQuery{Node: set.Node}
	for _, id := range set.Identities {
		doc.Identities = append(doc.Identities, xmlIdentity{
			Category: id.Category,
			Type:     id.Type,
			Lang:     id.Lang,
			Name:     id.Name,
		})
	}
	for _, feature := range set.Features {
		doc.Features = append(doc.Features, xmlFeature{Var: feature})
	}
	for _, form := range set.Forms {
		xf := xmlForm{Type: "result"}
		for _, field := range form.Fields {
			fieldType := ""
			if field.Var == caps.FormTypeVar {
				fieldType = "hidden"
			}
			xf.Fields = append(xf.Fields, xmlField{
				Var:    field.Var,
				Type:   fieldType,
				Values: field.Values,
			})
		}
		doc.Forms = append(doc.Forms, xf)
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to encode capability set: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses a disco#info query document into a capability set.
func (XMLCodec) Decode(data []byte) (*caps.Set, error) {
	var doc xmlQuery
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse capability set: %w", err)
	}

	set := &caps.Set{Node: doc.Node}
	for _, id := range doc.Identities {
		set.Identities = append(set.Identities, caps.Identity{
			Category: id.Category,
			Type:     id.Type,
			Lang:     id.Lang,
			Name:     id.Name,
		})
	}
	for _, feature := range doc.Features {
		set.Features = append(set.Features, feature.Var)
	}
	for _, xf := range doc.Forms {
		form := caps.DataForm{}
		for _, field := range xf.Fields {
			form.Fields = append(form.Fields, caps.FormField{
				Var:    field.Var,
				Values: field.Values,
			})
		}
		set.Forms = append(set.Forms, form)
	}
	return set, nil
}
