package jsonapi

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MaxPageSize is the largest page the remote collections accept.
const MaxPageSize = 200

// Identifier references a resource by type and id.
type Identifier struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Relationship is the linkage of one named relationship. Data holds zero or
// one identifier for to-one relationships.
type Relationship struct {
	Data []Identifier
	Many bool
}

// NewToOne builds a to-one relationship.
func NewToOne(typ, id string) Relationship {
	return Relationship{Data: []Identifier{{Type: typ, ID: id}}}
}

// NewToMany builds a to-many relationship. An empty id list encodes as [].
func NewToMany(typ string, ids ...string) Relationship {
	data := make([]Identifier, 0, len(ids))
	for _, id := range ids {
		data = append(data, Identifier{Type: typ, ID: id})
	}
	return Relationship{Data: data, Many: true}
}

// ID returns the first linked id, or "" when the relationship is empty.
func (r Relationship) ID() string {
	if len(r.Data) == 0 {
		return ""
	}
	return r.Data[0].ID
}

// IDs returns every linked id.
func (r Relationship) IDs() []string {
	ids := make([]string, 0, len(r.Data))
	for _, d := range r.Data {
		ids = append(ids, d.ID)
	}
	return ids
}

func (r Relationship) MarshalJSON() ([]byte, error) {
	if r.Many {
		data := r.Data
		if data == nil {
			data = []Identifier{}
		}
		return json.Marshal(struct {
			Data []Identifier `json:"data"`
		}{data})
	}
	if len(r.Data) == 0 {
		return []byte(`{"data":null}`), nil
	}
	return json.Marshal(struct {
		Data Identifier `json:"data"`
	}{r.Data[0]})
}

func (r *Relationship) UnmarshalJSON(b []byte) error {
	var raw struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	*r = Relationship{}
	data := bytes.TrimSpace(raw.Data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		return nil
	case data[0] == '[':
		r.Many = true
		return json.Unmarshal(data, &r.Data)
	default:
		var id Identifier
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		r.Data = []Identifier{id}
		return nil
	}
}

// Resource is a single JSON:API resource object.
type Resource struct {
	Type          string                  `json:"type"`
	ID            string                  `json:"id,omitempty"`
	Attributes    json.RawMessage         `json:"attributes,omitempty"`
	Relationships map[string]Relationship `json:"relationships,omitempty"`

	// Related holds side-loaded resources merged in by relationship name.
	// It is filled by the Paginator and Client from the document's included array.
	Related map[string][]Resource `json:"-"`
}

// NewResource builds a resource, encoding attrs as its attributes object.
func NewResource(typ, id string, attrs any, rels map[string]Relationship) (Resource, error) {
	r := Resource{Type: typ, ID: id, Relationships: rels}
	if attrs != nil {
		raw, err := json.Marshal(attrs)
		if err != nil {
			return Resource{}, fmt.Errorf("encode %s attributes: %w", typ, err)
		}
		r.Attributes = raw
	}
	return r, nil
}

// Key identifies the resource by type and id.
func (r Resource) Key() string {
	return r.Type + "/" + r.ID
}

// Decode unmarshals the attributes object into v.
func (r Resource) Decode(v any) error {
	if len(r.Attributes) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Attributes, v); err != nil {
		return fmt.Errorf("decode %s %s attributes: %w", r.Type, r.ID, err)
	}
	return nil
}

// RelationshipID returns the first id linked under name.
func (r Resource) RelationshipID(name string) string {
	return r.Relationships[name].ID()
}

// RelatedOne returns the first side-loaded resource for name.
func (r Resource) RelatedOne(name string) (Resource, bool) {
	related := r.Related[name]
	if len(related) == 0 {
		return Resource{}, false
	}
	return related[0], true
}

// Links holds document-level links.
type Links struct {
	Self string `json:"self,omitempty"`
	Next string `json:"next,omitempty"`
}

// Paging is the paging block of the document meta.
type Paging struct {
	Total int `json:"total"`
	Limit int `json:"limit"`
}

// Meta holds document-level metadata.
type Meta struct {
	Paging *Paging `json:"paging,omitempty"`
}

// Document is a JSON:API top-level document.
type Document struct {
	Data     json.RawMessage `json:"data,omitempty"`
	Included []Resource      `json:"included,omitempty"`
	Links    *Links          `json:"links,omitempty"`
	Meta     *Meta           `json:"meta,omitempty"`
	Errors   []ErrorObject   `json:"errors,omitempty"`
}

// Payload is a mutation request body.
type Payload struct {
	Data Resource `json:"data"`
}

// NewCollection builds a document whose primary data is a list.
func NewCollection(data, included []Resource, next string) (*Document, error) {
	if data == nil {
		data = []Resource{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	doc := &Document{Data: raw, Included: included}
	if next != "" {
		doc.Links = &Links{Next: next}
	}
	return doc, nil
}

// NewSingle builds a document whose primary data is one resource.
func NewSingle(r Resource, included []Resource) (*Document, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return &Document{Data: raw, Included: included}, nil
}

// NextLink returns the continuation reference, or "" on the last page.
func (d *Document) NextLink() string {
	if d.Links == nil {
		return ""
	}
	return d.Links.Next
}

// Resources decodes the primary data as a list, accepting a single object
// or null as well. Included resources are attached to each record.
func (d *Document) Resources() ([]Resource, error) {
	data := bytes.TrimSpace(d.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}

	var records []Resource
	if data[0] == '[' {
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("decode primary data: %w", err)
		}
	} else {
		var single Resource
		if err := json.Unmarshal(data, &single); err != nil {
			return nil, fmt.Errorf("decode primary data: %w", err)
		}
		records = []Resource{single}
	}

	d.attachIncluded(records)
	return records, nil
}

// Resource decodes the primary data as a single resource.
func (d *Document) Resource() (Resource, error) {
	records, err := d.Resources()
	if err != nil {
		return Resource{}, err
	}
	if len(records) == 0 {
		return Resource{}, fmt.Errorf("document has no primary data")
	}
	return records[0], nil
}

// attachIncluded merges side-loaded resources into each record by
// relationship name, matching on type+id.
func (d *Document) attachIncluded(records []Resource) {
	if len(d.Included) == 0 {
		return
	}

	index := make(map[string]Resource, len(d.Included))
	for _, inc := range d.Included {
		index[inc.Key()] = inc
	}

	for i := range records {
		for name, rel := range records[i].Relationships {
			for _, ref := range rel.Data {
				inc, ok := index[ref.Type+"/"+ref.ID]
				if !ok {
					continue
				}
				if records[i].Related == nil {
					records[i].Related = make(map[string][]Resource)
				}
				records[i].Related[name] = append(records[i].Related[name], inc)
			}
		}
	}
}
