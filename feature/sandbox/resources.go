package sandbox

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"asc-manager/core/appstore"
	"asc-manager/core/jsonapi"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// defaultLimit is the page size when the request names none.
const defaultLimit = 50

func resource(typ, id string, attrs any, rels map[string]jsonapi.Relationship) jsonapi.Resource {
	r, err := jsonapi.NewResource(typ, id, attrs, rels)
	if err != nil {
		// Attribute structs in this file always encode.
		panic(err)
	}
	return r
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func appResource(a appstore.App) jsonapi.Resource {
	return resource(appstore.TypeApps, a.ID, struct {
		BundleID string `json:"bundleId"`
		Name     string `json:"name"`
	}{a.BundleID, a.Name}, nil)
}

func groupResource(g appstore.Group) jsonapi.Resource {
	return resource(appstore.TypeSubscriptionGroups, g.ID, struct {
		ReferenceName string `json:"referenceName"`
	}{g.ReferenceName}, nil)
}

func subscriptionResource(sub appstore.Subscription) jsonapi.Resource {
	return resource(appstore.TypeSubscriptions, sub.ID, struct {
		Name               string         `json:"name"`
		ProductID          string         `json:"productId"`
		SubscriptionPeriod *string        `json:"subscriptionPeriod"`
		State              appstore.State `json:"state"`
		GroupLevel         int            `json:"groupLevel"`
	}{sub.Name, sub.ProductID, optional(string(sub.Period)), sub.State, sub.GroupLevel},
		map[string]jsonapi.Relationship{
			"group": jsonapi.NewToOne(appstore.TypeSubscriptionGroups, sub.GroupID),
		})
}

func territoryResource(t appstore.Territory) jsonapi.Resource {
	return resource(appstore.TypeTerritories, t.Code, struct {
		Currency string `json:"currency"`
	}{t.Currency}, nil)
}

func pricePointResource(pp appstore.PricePoint) jsonapi.Resource {
	return resource(appstore.TypePricePoints, pp.ID, struct {
		CustomerPrice decimal.Decimal `json:"customerPrice"`
		Proceeds      decimal.Decimal `json:"proceeds"`
	}{pp.CustomerPrice, pp.Proceeds},
		map[string]jsonapi.Relationship{
			"territory": jsonapi.NewToOne(appstore.TypeTerritories, pp.Territory),
		})
}

func priceResource(p appstore.Price) jsonapi.Resource {
	return resource(appstore.TypePrices, p.ID, struct {
		StartDate *string `json:"startDate"`
		Preserved bool    `json:"preserved"`
	}{optional(p.StartDate), p.Preserved},
		map[string]jsonapi.Relationship{
			"territory":              jsonapi.NewToOne(appstore.TypeTerritories, p.Territory),
			"subscriptionPricePoint": jsonapi.NewToOne(appstore.TypePricePoints, p.PricePointID),
		})
}

func availabilityResource(a appstore.Availability) jsonapi.Resource {
	return resource(appstore.TypeAvailabilities, a.ID, struct {
		AvailableInNewTerritories bool `json:"availableInNewTerritories"`
	}{a.AvailableInNewTerritories}, nil)
}

func offerResource(o appstore.IntroductoryOffer) jsonapi.Resource {
	rels := map[string]jsonapi.Relationship{
		"territory": jsonapi.NewToOne(appstore.TypeTerritories, o.Territory),
	}
	if o.PricePointID != "" {
		rels["subscriptionPricePoint"] = jsonapi.NewToOne(appstore.TypePricePoints, o.PricePointID)
	}
	return resource(appstore.TypeIntroductoryOffers, o.ID, struct {
		StartDate       *string            `json:"startDate"`
		EndDate         *string            `json:"endDate"`
		Duration        appstore.Duration  `json:"duration"`
		OfferMode       appstore.OfferMode `json:"offerMode"`
		NumberOfPeriods int                `json:"numberOfPeriods"`
	}{optional(o.StartDate), optional(o.EndDate), o.Duration, o.Mode, o.NumberOfPeriods}, rels)
}

func localizationResource(l appstore.Localization) jsonapi.Resource {
	return resource(appstore.TypeLocalizations, l.ID, struct {
		Locale      string `json:"locale"`
		Name        string `json:"name"`
		Description string `json:"description,omitempty"`
	}{l.Locale, l.Name, l.Description}, nil)
}

// entry is one collection record with the resources it can side-load,
// keyed by relationship name.
type entry struct {
	res      jsonapi.Resource
	included map[string][]jsonapi.Resource
}

func plain(records []jsonapi.Resource) []entry {
	entries := make([]entry, 0, len(records))
	for _, r := range records {
		entries = append(entries, entry{res: r})
	}
	return entries
}

// sendPage answers with the limit/offset window of entries, side-loading the
// relationships named in the include parameter. The next link is absolute
// and keeps every other query parameter.
func sendPage(c *fiber.Ctx, entries []entry) error {
	limit := c.QueryInt("limit", defaultLimit)
	if limit < 1 || limit > jsonapi.MaxPageSize {
		return sendError(c, fiber.StatusBadRequest, "PARAMETER_ERROR.INVALID",
			"A parameter has an invalid value", fmt.Sprintf("'%d' is not a valid value for the limit parameter", limit))
	}
	offset := max(c.QueryInt("offset", 0), 0)
	start := min(offset, len(entries))
	end := min(start+limit, len(entries))

	var includes []string
	if raw := c.Query("include"); raw != "" {
		includes = strings.Split(raw, ",")
	}

	data := make([]jsonapi.Resource, 0, end-start)
	var included []jsonapi.Resource
	seen := make(map[string]bool)
	for _, e := range entries[start:end] {
		data = append(data, e.res)
		for _, name := range includes {
			for _, inc := range e.included[name] {
				if !seen[inc.Key()] {
					seen[inc.Key()] = true
					included = append(included, inc)
				}
			}
		}
	}

	next := ""
	if end < len(entries) {
		next = nextLink(c, end)
	}
	doc, err := jsonapi.NewCollection(data, included, next)
	if err != nil {
		return err
	}
	doc.Meta = &jsonapi.Meta{Paging: &jsonapi.Paging{Total: len(entries), Limit: limit}}
	return c.JSON(doc)
}

func nextLink(c *fiber.Ctx, offset int) string {
	q := url.Values{}
	c.Context().QueryArgs().VisitAll(func(k, v []byte) {
		q.Add(string(k), string(v))
	})
	q.Set("offset", strconv.Itoa(offset))
	return c.BaseURL() + c.Path() + "?" + q.Encode()
}

func sendSingle(c *fiber.Ctx, status int, r jsonapi.Resource) error {
	doc, err := jsonapi.NewSingle(r, nil)
	if err != nil {
		return err
	}
	return c.Status(status).JSON(doc)
}

func sendError(c *fiber.Ctx, status int, code, title, detail string) error {
	return c.Status(status).JSON(jsonapi.Document{Errors: []jsonapi.ErrorObject{{
		ID:     uuid.NewString(),
		Status: strconv.Itoa(status),
		Code:   code,
		Title:  title,
		Detail: detail,
	}}})
}

func notFound(c *fiber.Ctx, typ, id string) error {
	return sendError(c, fiber.StatusNotFound, jsonapi.CodeNotFound,
		"The specified resource does not exist", fmt.Sprintf("There is no resource of type '%s' with id '%s'", typ, id))
}
