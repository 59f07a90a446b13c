// Package jsonapi is a small client for JSON:API shaped services such as
// App Store Connect.
//
// It covers the parts of the format the reconciliation engine relies on:
// documents with primary data, side-loaded included resources, continuation
// links and error objects, plus mutation payloads with to-one and to-many
// relationships.
//
// # Client
//
// Client resolves references against the configured base URL (relative,
// host-relative and absolute references all work), attaches the bearer token
// and sends every request through a ratelimit.Controller. Non-2xx responses
// come back as *APIError carrying the remote error codes and the Retry-After
// hint; connection and decoding failures come back as *TransportError.
//
// # Pagination
//
// Paginator yields the records of a collection lazily as an iter.Seq2. It
// fetches at most one page ahead of the consumer and merges included
// resources into each record by relationship name:
//
//	p := client.Paginate("subscriptionPricePoints/"+id+"/equalizations", jsonapi.PageOptions{
//	    Limit:   200,
//	    Include: []string{"territory"},
//	})
//	for record, err := range p.All(ctx) {
//	    if err != nil {
//	        return err // *PageError with page index and offset
//	    }
//	    territory, _ := record.RelatedOne("territory")
//	    ...
//	}
package jsonapi
