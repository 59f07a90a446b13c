package jsonapi

import (
	"context"
	"fmt"
	"iter"
	"net/url"
	"strconv"
	"strings"
)

// PageOptions shapes the first page request of a collection.
type PageOptions struct {
	// Limit is the page size hint, capped at MaxPageSize.
	Limit int
	// Include lists relationships to side-load.
	Include []string
	// Filter adds filter[key]=value parameters.
	Filter map[string]string
}

func (o PageOptions) query() url.Values {
	q := url.Values{}
	limit := o.Limit
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}
	q.Set("limit", strconv.Itoa(limit))
	if len(o.Include) > 0 {
		q.Set("include", strings.Join(o.Include, ","))
	}
	for key, value := range o.Filter {
		q.Set("filter["+key+"]", value)
	}
	return q
}

// Paginator walks a remote collection page by page following links.next.
type Paginator struct {
	client *Client
	ref    string
	opts   PageOptions
}

// Paginate returns a Paginator over the collection at ref.
func (c *Client) Paginate(ref string, opts PageOptions) *Paginator {
	return &Paginator{client: c, ref: ref, opts: opts}
}

type page struct {
	records []Resource
	err     error
}

// All returns a lazy sequence of every record. Each call restarts from the
// first page. While the consumer works through one page the next one is
// fetched, and no further fetch starts until that page is handed over.
// A failed page yields a *PageError and ends the sequence.
func (p *Paginator) All(ctx context.Context) iter.Seq2[Resource, error] {
	return func(yield func(Resource, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		pages := make(chan page)
		done := make(chan struct{})
		go func() {
			defer close(done)
			p.fetch(ctx, pages)
		}()
		defer func() {
			cancel()
			<-done
		}()

		for pg := range pages {
			if pg.err != nil {
				yield(Resource{}, pg.err)
				return
			}
			for _, record := range pg.records {
				if !yield(record, nil) {
					return
				}
			}
		}
	}
}

// Collect drains the sequence into a slice.
func (p *Paginator) Collect(ctx context.Context) ([]Resource, error) {
	var records []Resource
	for record, err := range p.All(ctx) {
		if err != nil {
			return records, err
		}
		records = append(records, record)
	}
	return records, nil
}

func (p *Paginator) fetch(ctx context.Context, out chan<- page) {
	defer close(out)

	send := func(pg page) bool {
		select {
		case out <- pg:
			return true
		case <-ctx.Done():
			return false
		}
	}

	next := p.ref
	query := p.opts.query()
	seen := make(map[string]struct{})
	index, offset := 0, 0

	for next != "" {
		resolved, err := p.client.Resolve(next)
		if err != nil {
			send(page{err: &PageError{Page: index, Offset: offset, Err: err}})
			return
		}
		key := resolved.String()
		if _, dup := seen[key]; dup && query == nil {
			send(page{err: &PageError{Page: index, Offset: offset, Err: fmt.Errorf("next link %s repeats a fetched page", key)}})
			return
		}
		seen[key] = struct{}{}

		doc, err := p.client.Get(ctx, next, query)
		if err != nil {
			send(page{err: &PageError{Page: index, Offset: offset, Err: err}})
			return
		}
		records, err := doc.Resources()
		if err != nil {
			send(page{err: &PageError{Page: index, Offset: offset, Err: err}})
			return
		}
		if !send(page{records: records}) {
			return
		}

		index++
		offset += len(records)
		// The continuation link carries its own query.
		next = doc.NextLink()
		query = nil
	}
}
