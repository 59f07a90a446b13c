package sandbox

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"time"

	"asc-manager/core/appstore"
	"asc-manager/core/jsonapi"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Handler serves the simulated endpoints.
type Handler struct {
	sim *Simulator
}

// NewHandler creates a handler over sim.
func NewHandler(sim *Simulator) *Handler {
	return &Handler{sim: sim}
}

// RegisterRoutes registers the /v1 routes behind the request budget.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	v1 := app.Group("/v1", h.throttle)

	v1.Get("/apps", h.HandleListApps)
	v1.Get("/apps/:id/subscriptionGroups", h.HandleListGroups)
	v1.Get("/subscriptionGroups/:id/subscriptions", h.HandleListSubscriptions)
	v1.Get("/subscriptions/:id", h.HandleGetSubscription)
	v1.Patch("/subscriptions/:id", h.HandleUpdateSubscription)
	v1.Get("/territories", h.HandleListTerritories)

	v1.Get("/subscriptions/:id/pricePoints", h.HandleListPricePoints)
	v1.Get("/subscriptionPricePoints/:id/equalizations", h.HandleEqualizations)
	v1.Get("/subscriptions/:id/prices", h.HandleListPrices)
	v1.Post("/subscriptionPrices", h.HandleCreatePrice)

	v1.Get("/subscriptions/:id/subscriptionAvailability", h.HandleGetAvailability)
	v1.Get("/subscriptionAvailabilities/:id/availableTerritories", h.HandleListAvailableTerritories)
	v1.Post("/subscriptionAvailabilities", h.HandleCreateAvailability)

	v1.Get("/subscriptions/:id/introductoryOffers", h.HandleListOffers)
	v1.Post("/subscriptionIntroductoryOffers", h.HandleCreateOffer)
	v1.Delete("/subscriptionIntroductoryOffers/:id", h.HandleDeleteOffer)

	v1.Get("/subscriptions/:id/subscriptionLocalizations", h.HandleListLocalizations)
}

// throttle answers 429 with a whole-second Retry-After once the rolling
// budget is spent.
func (h *Handler) throttle(c *fiber.Ctx) error {
	wait, ok := h.sim.budget.admit()
	if !ok {
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfterSeconds(wait)))
		return sendError(c, fiber.StatusTooManyRequests, jsonapi.CodeRateLimitExceeded,
			"The request rate limit has been reached.",
			"We've received too many requests for this API. Please wait and try again or slow down your request rate.")
	}
	return c.Next()
}

func (h *Handler) HandleListApps(c *fiber.Ctx) error {
	st := h.sim.state
	st.mu.RLock()
	defer st.mu.RUnlock()

	var records []jsonapi.Resource
	if bundleID := c.Query("filter[bundleId]"); bundleID == "" || bundleID == st.app.BundleID {
		records = append(records, appResource(st.app))
	}
	return sendPage(c, plain(records))
}

func (h *Handler) HandleListGroups(c *fiber.Ctx) error {
	st := h.sim.state
	st.mu.RLock()
	defer st.mu.RUnlock()

	if c.Params("id") != st.app.ID {
		return notFound(c, appstore.TypeApps, c.Params("id"))
	}
	records := make([]jsonapi.Resource, 0, len(st.groups))
	for _, g := range st.groups {
		records = append(records, groupResource(g))
	}
	return sendPage(c, plain(records))
}

func (h *Handler) HandleListSubscriptions(c *fiber.Ctx) error {
	st := h.sim.state
	st.mu.RLock()
	defer st.mu.RUnlock()

	id := c.Params("id")
	if !slices.ContainsFunc(st.groups, func(g appstore.Group) bool { return g.ID == id }) {
		return notFound(c, appstore.TypeSubscriptionGroups, id)
	}
	var records []jsonapi.Resource
	for _, sub := range st.subscriptionsOf(id) {
		records = append(records, subscriptionResource(sub))
	}
	return sendPage(c, plain(records))
}

func (h *Handler) HandleGetSubscription(c *fiber.Ctx) error {
	st := h.sim.state
	st.mu.RLock()
	defer st.mu.RUnlock()

	rec, ok := st.subs[c.Params("id")]
	if !ok {
		return notFound(c, appstore.TypeSubscriptions, c.Params("id"))
	}
	return sendSingle(c, fiber.StatusOK, subscriptionResource(rec.sub))
}

// HandleUpdateSubscription accepts a period only while none is set, or when
// it repeats the current one.
func (h *Handler) HandleUpdateSubscription(c *fiber.Ctx) error {
	payload, prob := decodePayload(c, appstore.TypeSubscriptions)
	if prob != nil {
		return prob.send(c)
	}
	var attrs struct {
		SubscriptionPeriod string `json:"subscriptionPeriod"`
	}
	if err := payload.Data.Decode(&attrs); err != nil {
		return invalidBody(c, err)
	}

	st := h.sim.state
	st.mu.Lock()
	defer st.mu.Unlock()

	id := c.Params("id")
	rec, ok := st.subs[id]
	if !ok {
		return notFound(c, appstore.TypeSubscriptions, id)
	}
	if payload.Data.ID != id {
		return sendError(c, fiber.StatusConflict, jsonapi.CodeEntityError+".INVALID_ID",
			"The provided entity id is invalid", fmt.Sprintf("The resource id '%s' does not match the URL", payload.Data.ID))
	}

	if attrs.SubscriptionPeriod != "" {
		period, err := appstore.ParsePeriod(attrs.SubscriptionPeriod)
		if err != nil {
			return attributeInvalid(c, "subscriptionPeriod", fmt.Sprintf("'%s' is not a valid subscription period", attrs.SubscriptionPeriod))
		}
		switch {
		case rec.sub.Period == period:
		case rec.sub.Period != "":
			return attributeInvalid(c, "subscriptionPeriod", "The subscription period cannot be changed once it has been set.")
		default:
			rec.sub.Period = period
			h.sim.recordMutation(fiber.MethodPatch, appstore.TypeSubscriptions, id)
		}
	}
	return sendSingle(c, fiber.StatusOK, subscriptionResource(rec.sub))
}

func (h *Handler) HandleListTerritories(c *fiber.Ctx) error {
	st := h.sim.state
	records := make([]jsonapi.Resource, 0, len(st.territories))
	for _, t := range st.territories {
		records = append(records, territoryResource(t))
	}
	return sendPage(c, plain(records))
}

func (h *Handler) pricePointEntry(pp appstore.PricePoint) entry {
	st := h.sim.state
	t := st.territories[st.territoryIdx[pp.Territory]]
	return entry{
		res:      pricePointResource(pp),
		included: map[string][]jsonapi.Resource{"territory": {territoryResource(t)}},
	}
}

func (h *Handler) HandleListPricePoints(c *fiber.Ctx) error {
	st := h.sim.state
	st.mu.RLock()
	defer st.mu.RUnlock()

	if _, ok := st.subs[c.Params("id")]; !ok {
		return notFound(c, appstore.TypeSubscriptions, c.Params("id"))
	}

	territories := st.territories
	if code := c.Query("filter[territory]"); code != "" {
		if !st.territoryKnown(code) {
			return sendPage(c, nil)
		}
		territories = []appstore.Territory{st.territories[st.territoryIdx[code]]}
	}

	var entries []entry
	for _, t := range territories {
		for _, pp := range st.pricePointsIn(t.Code) {
			entries = append(entries, h.pricePointEntry(pp))
		}
	}
	return sendPage(c, entries)
}

func (h *Handler) HandleEqualizations(c *fiber.Ctx) error {
	st := h.sim.state
	st.mu.RLock()
	defer st.mu.RUnlock()

	points, ok := st.equalizations(c.Params("id"))
	if !ok {
		return notFound(c, appstore.TypePricePoints, c.Params("id"))
	}
	entries := make([]entry, 0, len(points))
	for _, pp := range points {
		entries = append(entries, h.pricePointEntry(pp))
	}
	return sendPage(c, entries)
}

func (h *Handler) HandleListPrices(c *fiber.Ctx) error {
	st := h.sim.state
	st.mu.RLock()
	defer st.mu.RUnlock()

	rec, ok := st.subs[c.Params("id")]
	if !ok {
		return notFound(c, appstore.TypeSubscriptions, c.Params("id"))
	}
	entries := make([]entry, 0, len(rec.prices))
	for _, p := range rec.prices {
		e := h.pricePointEntry(st.pricePoints[p.PricePointID])
		entries = append(entries, entry{
			res: priceResource(p),
			included: map[string][]jsonapi.Resource{
				"territory":              e.included["territory"],
				"subscriptionPricePoint": {e.res},
			},
		})
	}
	return sendPage(c, entries)
}

// HandleCreatePrice schedules a price. The territory must already be in the
// subscription's availability.
func (h *Handler) HandleCreatePrice(c *fiber.Ctx) error {
	payload, prob := decodePayload(c, appstore.TypePrices)
	if prob != nil {
		return prob.send(c)
	}
	var attrs struct {
		StartDate            *string `json:"startDate"`
		PreserveCurrentPrice bool    `json:"preserveCurrentPrice"`
	}
	if err := payload.Data.Decode(&attrs); err != nil {
		return invalidBody(c, err)
	}

	st := h.sim.state
	st.mu.Lock()
	defer st.mu.Unlock()

	subID := payload.Data.RelationshipID("subscription")
	rec, ok := st.subs[subID]
	if !ok {
		return relationshipInvalid(c, "subscription", fmt.Sprintf("There is no subscription with id '%s'", subID))
	}
	pp, ok := st.pricePoints[payload.Data.RelationshipID("subscriptionPricePoint")]
	if !ok {
		return relationshipInvalid(c, "subscriptionPricePoint", "The price point does not exist")
	}
	if fault, hit := h.sim.faults.match(fiber.MethodPost, appstore.TypePrices, pp.Territory); hit {
		return sendError(c, fault.Status, fault.Code, "The request could not be completed", fault.Detail)
	}
	if !st.available(rec, pp.Territory) {
		return sendError(c, fiber.StatusConflict, jsonapi.CodeStateError, "The resource is not in the expected state",
			fmt.Sprintf("Territory '%s' is not available for this subscription", pp.Territory))
	}

	price := appstore.Price{
		SubscriptionID: subID,
		Territory:      pp.Territory,
		PricePointID:   pp.ID,
		Preserved:      attrs.PreserveCurrentPrice,
	}
	if attrs.StartDate != nil {
		if _, err := time.Parse(time.DateOnly, *attrs.StartDate); err != nil {
			return attributeInvalid(c, "startDate", fmt.Sprintf("'%s' is not a valid date", *attrs.StartDate))
		}
		price.StartDate = *attrs.StartDate
	}
	price = st.addPrice(rec, price)
	h.sim.recordMutation(fiber.MethodPost, appstore.TypePrices, subID, pp.Territory)
	return sendSingle(c, fiber.StatusCreated, priceResource(price))
}

func (h *Handler) HandleGetAvailability(c *fiber.Ctx) error {
	st := h.sim.state
	st.mu.RLock()
	defer st.mu.RUnlock()

	rec, ok := st.subs[c.Params("id")]
	if !ok {
		return notFound(c, appstore.TypeSubscriptions, c.Params("id"))
	}
	if rec.availability == nil {
		return notFound(c, appstore.TypeAvailabilities, c.Params("id"))
	}
	return sendSingle(c, fiber.StatusOK, availabilityResource(*rec.availability))
}

func (h *Handler) HandleListAvailableTerritories(c *fiber.Ctx) error {
	st := h.sim.state
	st.mu.RLock()
	defer st.mu.RUnlock()

	id := c.Params("id")
	for _, subID := range st.subOrder {
		rec := st.subs[subID]
		if rec.availability == nil || rec.availability.ID != id {
			continue
		}
		records := make([]jsonapi.Resource, 0, len(rec.availability.Territories))
		for _, code := range rec.availability.Territories {
			records = append(records, territoryResource(st.territories[st.territoryIdx[code]]))
		}
		return sendPage(c, plain(records))
	}
	return notFound(c, appstore.TypeAvailabilities, id)
}

// HandleCreateAvailability replaces the subscription's territory set.
func (h *Handler) HandleCreateAvailability(c *fiber.Ctx) error {
	payload, prob := decodePayload(c, appstore.TypeAvailabilities)
	if prob != nil {
		return prob.send(c)
	}
	var attrs struct {
		AvailableInNewTerritories bool `json:"availableInNewTerritories"`
	}
	if err := payload.Data.Decode(&attrs); err != nil {
		return invalidBody(c, err)
	}

	st := h.sim.state
	st.mu.Lock()
	defer st.mu.Unlock()

	subID := payload.Data.RelationshipID("subscription")
	rec, ok := st.subs[subID]
	if !ok {
		return relationshipInvalid(c, "subscription", fmt.Sprintf("There is no subscription with id '%s'", subID))
	}
	territories := payload.Data.Relationships["availableTerritories"].IDs()
	for _, code := range territories {
		if !st.territoryKnown(code) {
			return relationshipInvalid(c, "availableTerritories", fmt.Sprintf("'%s' is not a valid territory", code))
		}
	}
	if fault, hit := h.sim.faults.match(fiber.MethodPost, appstore.TypeAvailabilities, ""); hit {
		return sendError(c, fault.Status, fault.Code, "The request could not be completed", fault.Detail)
	}

	avail := st.setAvailability(rec, territories, attrs.AvailableInNewTerritories)
	h.sim.recordMutation(fiber.MethodPost, appstore.TypeAvailabilities, subID, territories...)
	return sendSingle(c, fiber.StatusCreated, availabilityResource(avail))
}

func (h *Handler) HandleListOffers(c *fiber.Ctx) error {
	st := h.sim.state
	st.mu.RLock()
	defer st.mu.RUnlock()

	rec, ok := st.subs[c.Params("id")]
	if !ok {
		return notFound(c, appstore.TypeSubscriptions, c.Params("id"))
	}
	entries := make([]entry, 0, len(rec.offers))
	for _, o := range rec.offers {
		e := entry{res: offerResource(o), included: map[string][]jsonapi.Resource{
			"territory": {territoryResource(st.territories[st.territoryIdx[o.Territory]])},
		}}
		if pp, ok := st.pricePoints[o.PricePointID]; ok {
			e.included["subscriptionPricePoint"] = []jsonapi.Resource{pricePointResource(pp)}
		}
		entries = append(entries, e)
	}
	return sendPage(c, entries)
}

// HandleCreateOffer creates an introductory offer after the checks the
// remote system applies: a period must be set, the duration must suit it,
// paid modes need a price point in the offer's territory, the territory
// must be available and no other offer may overlap the date range.
func (h *Handler) HandleCreateOffer(c *fiber.Ctx) error {
	payload, prob := decodePayload(c, appstore.TypeIntroductoryOffers)
	if prob != nil {
		return prob.send(c)
	}
	var attrs struct {
		StartDate       *string `json:"startDate"`
		EndDate         *string `json:"endDate"`
		Duration        string  `json:"duration"`
		OfferMode       string  `json:"offerMode"`
		NumberOfPeriods int     `json:"numberOfPeriods"`
	}
	if err := payload.Data.Decode(&attrs); err != nil {
		return invalidBody(c, err)
	}

	st := h.sim.state
	st.mu.Lock()
	defer st.mu.Unlock()

	subID := payload.Data.RelationshipID("subscription")
	rec, ok := st.subs[subID]
	if !ok {
		return relationshipInvalid(c, "subscription", fmt.Sprintf("There is no subscription with id '%s'", subID))
	}
	territory := payload.Data.RelationshipID("territory")
	if !st.territoryKnown(territory) {
		return relationshipInvalid(c, "territory", fmt.Sprintf("'%s' is not a valid territory", territory))
	}
	if rec.sub.Period == "" {
		return relationshipInvalid(c, "subscription", "The subscription must have a subscription period before introductory offers can be created.")
	}

	mode, err := appstore.ParseOfferMode(attrs.OfferMode)
	if err != nil {
		return attributeInvalid(c, "offerMode", fmt.Sprintf("'%s' is not a valid offer mode", attrs.OfferMode))
	}
	duration, err := appstore.ParseDuration(attrs.Duration)
	if err != nil || !appstore.Compatible(rec.sub.Period, duration) {
		return attributeInvalid(c, "duration",
			fmt.Sprintf("The duration '%s' is not valid for a subscription with period '%s'", attrs.Duration, rec.sub.Period))
	}

	ppID := payload.Data.RelationshipID("subscriptionPricePoint")
	if mode.RequiresPricePoint() {
		pp, ok := st.pricePoints[ppID]
		if !ok || pp.Territory != territory {
			return relationshipInvalid(c, "subscriptionPricePoint",
				fmt.Sprintf("A price point in territory '%s' is required for offer mode '%s'", territory, mode))
		}
	} else {
		ppID = ""
	}

	if fault, hit := h.sim.faults.match(fiber.MethodPost, appstore.TypeIntroductoryOffers, territory); hit {
		return sendError(c, fault.Status, fault.Code, "The request could not be completed", fault.Detail)
	}
	if !st.available(rec, territory) {
		return sendError(c, fiber.StatusConflict, jsonapi.CodeStateError, "The resource is not in the expected state",
			fmt.Sprintf("Territory '%s' is not available for this subscription", territory))
	}

	offer := appstore.IntroductoryOffer{
		ID:              uuid.NewString(),
		SubscriptionID:  subID,
		Territory:       territory,
		Mode:            mode,
		Duration:        duration,
		NumberOfPeriods: max(attrs.NumberOfPeriods, 1),
		PricePointID:    ppID,
	}
	if attrs.StartDate != nil {
		offer.StartDate = *attrs.StartDate
	}
	if attrs.EndDate != nil {
		offer.EndDate = *attrs.EndDate
	}
	for _, existing := range rec.offers {
		if existing.Territory == territory && existing.Overlaps(offer.StartDate, offer.EndDate) {
			return sendError(c, fiber.StatusConflict, jsonapi.CodeStateError, "The resource is not in the expected state",
				fmt.Sprintf("An introductory offer already exists in territory '%s' for an overlapping date range", territory))
		}
	}

	rec.offers = append(rec.offers, offer)
	h.sim.recordMutation(fiber.MethodPost, appstore.TypeIntroductoryOffers, subID, territory)
	return sendSingle(c, fiber.StatusCreated, offerResource(offer))
}

func (h *Handler) HandleDeleteOffer(c *fiber.Ctx) error {
	st := h.sim.state
	st.mu.Lock()
	defer st.mu.Unlock()

	rec, i := st.findOffer(c.Params("id"))
	if rec == nil {
		return notFound(c, appstore.TypeIntroductoryOffers, c.Params("id"))
	}
	territory := rec.offers[i].Territory
	rec.offers = slices.Delete(rec.offers, i, i+1)
	h.sim.recordMutation(fiber.MethodDelete, appstore.TypeIntroductoryOffers, rec.sub.ID, territory)
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) HandleListLocalizations(c *fiber.Ctx) error {
	st := h.sim.state
	st.mu.RLock()
	defer st.mu.RUnlock()

	rec, ok := st.subs[c.Params("id")]
	if !ok {
		return notFound(c, appstore.TypeSubscriptions, c.Params("id"))
	}
	records := make([]jsonapi.Resource, 0, len(rec.localizations))
	for _, l := range rec.localizations {
		records = append(records, localizationResource(l))
	}
	return sendPage(c, plain(records))
}

// problem is an error response not yet sent.
type problem struct {
	status int
	code   string
	title  string
	detail string
}

func (p *problem) send(c *fiber.Ctx) error {
	return sendError(c, p.status, p.code, p.title, p.detail)
}

// decodePayload parses the request document and checks its resource type.
func decodePayload(c *fiber.Ctx, typ string) (*jsonapi.Payload, *problem) {
	var payload jsonapi.Payload
	if err := json.Unmarshal(c.Body(), &payload); err != nil {
		return nil, &problem{fiber.StatusBadRequest, "PARAMETER_ERROR.INVALID", "The request entity is invalid", err.Error()}
	}
	if payload.Data.Type != typ {
		return nil, &problem{fiber.StatusConflict, jsonapi.CodeEntityError + ".INCLUDED.INVALID_TYPE",
			"The provided entity has an invalid type", fmt.Sprintf("Expected type '%s' but got '%s'", typ, payload.Data.Type)}
	}
	return &payload, nil
}

func invalidBody(c *fiber.Ctx, err error) error {
	return sendError(c, fiber.StatusBadRequest, "PARAMETER_ERROR.INVALID", "The request entity is invalid", err.Error())
}

func attributeInvalid(c *fiber.Ctx, attribute, detail string) error {
	return c.Status(fiber.StatusConflict).JSON(jsonapi.Document{Errors: []jsonapi.ErrorObject{{
		ID:     uuid.NewString(),
		Status: strconv.Itoa(fiber.StatusConflict),
		Code:   jsonapi.CodeAttributeInvalid,
		Title:  "An attribute value is invalid.",
		Detail: detail,
		Source: &jsonapi.ErrorSource{Pointer: "/data/attributes/" + attribute},
	}}})
}

func relationshipInvalid(c *fiber.Ctx, relationship, detail string) error {
	return c.Status(fiber.StatusConflict).JSON(jsonapi.Document{Errors: []jsonapi.ErrorObject{{
		ID:     uuid.NewString(),
		Status: strconv.Itoa(fiber.StatusConflict),
		Code:   jsonapi.CodeRelationshipInvalid,
		Title:  "A relationship value is invalid.",
		Detail: detail,
		Source: &jsonapi.ErrorSource{Pointer: "/data/relationships/" + relationship},
	}}})
}
