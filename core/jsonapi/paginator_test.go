package jsonapi

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"testing"

	"asc-manager/core/ratelimit"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type linkStyle int

const (
	absoluteLinks linkStyle = iota
	hostRelativeLinks
	pathRelativeLinks
)

// collectionApp serves total synthetic records under /v1/items with
// limit/offset paging. failPage makes that page answer 500.
func collectionApp(total int, style linkStyle, failPage int, hits *atomic.Int32) *fiber.App {
	app := fiber.New()
	app.Get("/v1/items", func(c *fiber.Ctx) error {
		hits.Add(1)
		limit := c.QueryInt("limit", 50)
		offset := c.QueryInt("offset", 0)
		if failPage >= 0 && offset/limit == failPage {
			return c.Status(fiber.StatusInternalServerError).JSON(Document{Errors: []ErrorObject{{Status: "500", Code: "UNEXPECTED_ERROR"}}})
		}

		var data, included []Resource
		for i := offset; i < offset+limit && i < total; i++ {
			territory := fmt.Sprintf("T%03d", i%7)
			data = append(data, Resource{
				Type: "items",
				ID:   strconv.Itoa(i),
				Relationships: map[string]Relationship{
					"territory": NewToOne("territories", territory),
				},
			})
			included = append(included, Resource{Type: "territories", ID: territory, Attributes: []byte(`{"currency":"USD"}`)})
		}

		next := ""
		if offset+limit < total {
			query := fmt.Sprintf("items?limit=%d&offset=%d", limit, offset+limit)
			switch style {
			case absoluteLinks:
				next = testBase + query
			case hostRelativeLinks:
				next = "/v1/" + query
			case pathRelativeLinks:
				next = query
			}
		}

		doc, err := NewCollection(data, included, next)
		if err != nil {
			return err
		}
		return c.JSON(doc)
	})
	return app
}

func TestPaginator_Completeness(t *testing.T) {
	for _, style := range []linkStyle{absoluteLinks, hostRelativeLinks, pathRelativeLinks} {
		t.Run(fmt.Sprintf("style-%d", style), func(t *testing.T) {
			var hits atomic.Int32
			client := newTestClient(t, collectionApp(437, style, -1, &hits), ratelimit.Config{})

			records, err := client.Paginate("items", PageOptions{Limit: 200}).Collect(context.Background())
			require.NoError(t, err)

			require.Len(t, records, 437)
			seen := make(map[string]bool, len(records))
			for i, r := range records {
				assert.Equal(t, strconv.Itoa(i), r.ID, "records must arrive in order with no gaps")
				assert.False(t, seen[r.ID], "duplicate record %s", r.ID)
				seen[r.ID] = true
			}
			assert.Equal(t, int32(3), hits.Load())
		})
	}
}

func TestPaginator_Restartable(t *testing.T) {
	var hits atomic.Int32
	client := newTestClient(t, collectionApp(250, absoluteLinks, -1, &hits), ratelimit.Config{})
	p := client.Paginate("items", PageOptions{Limit: 200})

	first, err := p.Collect(context.Background())
	require.NoError(t, err)
	second, err := p.Collect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(4), hits.Load())
}

func TestPaginator_MergesIncluded(t *testing.T) {
	var hits atomic.Int32
	client := newTestClient(t, collectionApp(10, absoluteLinks, -1, &hits), ratelimit.Config{})

	records, err := client.Paginate("items", PageOptions{Include: []string{"territory"}}).Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 10)

	territory, ok := records[3].RelatedOne("territory")
	require.True(t, ok)
	assert.Equal(t, "T003", territory.ID)

	var attrs struct {
		Currency string `json:"currency"`
	}
	require.NoError(t, territory.Decode(&attrs))
	assert.Equal(t, "USD", attrs.Currency)
}

func TestPaginator_PageFailureIsSurfaced(t *testing.T) {
	var hits atomic.Int32
	client := newTestClient(t, collectionApp(437, absoluteLinks, 1, &hits), ratelimit.Config{MaxAttempts: 1})

	var yielded int
	var pageErr *PageError
	for _, err := range client.Paginate("items", PageOptions{Limit: 200}).All(context.Background()) {
		if err != nil {
			require.ErrorAs(t, err, &pageErr)
			break
		}
		yielded++
	}

	require.NotNil(t, pageErr, "a failed page must not truncate silently")
	assert.Equal(t, 200, yielded)
	assert.Equal(t, 1, pageErr.Page)
	assert.Equal(t, 200, pageErr.Offset)

	var apiErr *APIError
	require.ErrorAs(t, pageErr, &apiErr)
	assert.Equal(t, 500, apiErr.StatusCode)
}

func TestPaginator_ReadsAtMostOnePageAhead(t *testing.T) {
	var hits atomic.Int32
	client := newTestClient(t, collectionApp(1000, absoluteLinks, -1, &hits), ratelimit.Config{})

	count := 0
	for _, err := range client.Paginate("items", PageOptions{Limit: 100}).All(context.Background()) {
		require.NoError(t, err)
		count++
		if count == 5 {
			break
		}
	}

	assert.Equal(t, 5, count)
	assert.LessOrEqual(t, hits.Load(), int32(2))
}

func TestPageOptions_Query(t *testing.T) {
	q := PageOptions{Limit: 500, Include: []string{"territory", "subscription"}, Filter: map[string]string{"territory": "USA"}}.query()

	assert.Equal(t, "200", q.Get("limit"))
	assert.Equal(t, "territory,subscription", q.Get("include"))
	assert.Equal(t, "USA", q.Get("filter[territory]"))
}
