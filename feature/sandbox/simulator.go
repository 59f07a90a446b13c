package sandbox

import (
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	"asc-manager/core/appstore"
	"asc-manager/core/loader"
	"asc-manager/core/logger"
	"asc-manager/core/middleware/auth"
	"asc-manager/core/middleware/rayid"
	"asc-manager/core/ratelimit"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Options configures a Simulator.
type Options struct {
	Fixture Fixture
	// Budget is the number of requests accepted per Window; zero disables
	// throttling.
	Budget int
	Window time.Duration
	Clock  ratelimit.Clock
	// Token, when set, must be presented as a bearer token.
	Token  string
	Logger *zap.Logger
}

// Request is one entry of the request log.
type Request struct {
	Method string
	Path   string
	Status int
	At     time.Time
}

// Mutation is one accepted write, in the order the simulator applied it.
type Mutation struct {
	Seq            int
	Method         string
	Type           string
	SubscriptionID string
	Territories    []string
	At             time.Time
}

// Simulator is an in-memory stand-in for the App Store Connect API covering
// the subscription endpoints.
type Simulator struct {
	opts   Options
	clock  ratelimit.Clock
	logger *zap.Logger

	state  *state
	budget *budget
	faults faults

	logMu     sync.Mutex
	requests  []Request
	mutations []Mutation
}

// New builds a simulator seeded from opts.Fixture.
func New(opts Options) *Simulator {
	clock := opts.Clock
	if clock == nil {
		clock = ratelimit.SystemClock{}
	}
	logg := opts.Logger
	if logg == nil {
		logg = zap.NewNop()
	}
	return &Simulator{
		opts:   opts,
		clock:  clock,
		logger: logg,
		state:  newState(opts.Fixture.withDefaults()),
		budget: newBudget(clock, opts.Budget, opts.Window),
	}
}

// App builds a fiber application serving the simulator under /v1.
func (s *Simulator) App() (*fiber.App, error) {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(rayid.New())
	app.Use(s.recordRequest)
	app.Use(auth.New(auth.Config{ApiKey: s.opts.Token}))

	mgr := loader.NewManager()
	mgr.Register(NewFeature(s))
	if err := mgr.LoadAll(app); err != nil {
		return nil, err
	}
	return app, nil
}

// Transport routes requests into a fiber app without a network listener.
type Transport struct {
	App *fiber.App
}

func (t Transport) Do(req *http.Request) (*http.Response, error) {
	return t.App.Test(req, -1)
}

// Doer returns an in-process transport for the simulator.
func (s *Simulator) Doer() (Transport, error) {
	app, err := s.App()
	if err != nil {
		return Transport{}, err
	}
	return Transport{App: app}, nil
}

func (s *Simulator) recordRequest(c *fiber.Ctx) error {
	err := c.Next()

	status := c.Response().StatusCode()
	var fe *fiber.Error
	if err != nil {
		status = fiber.StatusInternalServerError
		if errors.As(err, &fe) {
			status = fe.Code
		}
	}

	s.logMu.Lock()
	s.requests = append(s.requests, Request{Method: c.Method(), Path: c.Path(), Status: status, At: s.clock.Now()})
	s.logMu.Unlock()

	logger.WithRayID(s.logger, c).Debug("Sandbox request",
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Int("status", status),
	)
	return err
}

func (s *Simulator) recordMutation(method, typ, subscriptionID string, territories ...string) {
	s.logMu.Lock()
	defer s.logMu.Unlock()
	s.mutations = append(s.mutations, Mutation{
		Seq:            len(s.mutations) + 1,
		Method:         method,
		Type:           typ,
		SubscriptionID: subscriptionID,
		Territories:    territories,
		At:             s.clock.Now(),
	})
}

// AddFault arms a fault for matching mutations.
func (s *Simulator) AddFault(f Fault) {
	s.faults.add(f)
}

// Requests returns the request log.
func (s *Simulator) Requests() []Request {
	s.logMu.Lock()
	defer s.logMu.Unlock()
	return slices.Clone(s.requests)
}

// Mutations returns the accepted writes in application order.
func (s *Simulator) Mutations() []Mutation {
	s.logMu.Lock()
	defer s.logMu.Unlock()
	return slices.Clone(s.mutations)
}

// Accepted returns the arrival time of every request admitted by the budget
// and the number rejected with 429.
func (s *Simulator) Accepted() ([]time.Time, int) {
	return s.budget.snapshot()
}

// Subscription returns the stored subscription.
func (s *Simulator) Subscription(id string) (appstore.Subscription, bool) {
	s.state.mu.RLock()
	defer s.state.mu.RUnlock()
	rec, ok := s.state.subs[id]
	if !ok {
		return appstore.Subscription{}, false
	}
	return rec.sub, true
}

// Availability returns the subscription's availability, if created.
func (s *Simulator) Availability(subscriptionID string) (appstore.Availability, bool) {
	s.state.mu.RLock()
	defer s.state.mu.RUnlock()
	rec, ok := s.state.subs[subscriptionID]
	if !ok || rec.availability == nil {
		return appstore.Availability{}, false
	}
	avail := *rec.availability
	avail.Territories = slices.Clone(avail.Territories)
	return avail, true
}

// Prices returns every stored price of the subscription.
func (s *Simulator) Prices(subscriptionID string) []appstore.Price {
	s.state.mu.RLock()
	defer s.state.mu.RUnlock()
	if rec, ok := s.state.subs[subscriptionID]; ok {
		return slices.Clone(rec.prices)
	}
	return nil
}

// Offers returns the subscription's introductory offers.
func (s *Simulator) Offers(subscriptionID string) []appstore.IntroductoryOffer {
	s.state.mu.RLock()
	defer s.state.mu.RUnlock()
	if rec, ok := s.state.subs[subscriptionID]; ok {
		return slices.Clone(rec.offers)
	}
	return nil
}

// SeedAvailability makes the subscription available in territories.
func (s *Simulator) SeedAvailability(subscriptionID string, territories []string) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	if rec, ok := s.state.subs[subscriptionID]; ok {
		s.state.setAvailability(rec, territories, false)
	}
}

// SeedPrice stores an immediately effective price at tier.
func (s *Simulator) SeedPrice(subscriptionID, territory string, tier int) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	if rec, ok := s.state.subs[subscriptionID]; ok {
		s.state.addPrice(rec, appstore.Price{
			SubscriptionID: subscriptionID,
			Territory:      territory,
			PricePointID:   PricePointID(territory, tier),
		})
	}
}

// SeedPeriod sets the period of a subscription directly.
func (s *Simulator) SeedPeriod(subscriptionID string, period appstore.Period) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	if rec, ok := s.state.subs[subscriptionID]; ok {
		rec.sub.Period = period
	}
}

// SeedOffer stores an introductory offer and returns it with its id.
func (s *Simulator) SeedOffer(offer appstore.IntroductoryOffer) appstore.IntroductoryOffer {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	rec, ok := s.state.subs[offer.SubscriptionID]
	if !ok {
		return offer
	}
	if offer.ID == "" {
		offer.ID = uuid.NewString()
	}
	rec.offers = append(rec.offers, offer)
	return offer
}
