package sandbox

import (
	"net/http"
	"sync"
)

// Fault makes matching mutations fail with a canned error.
type Fault struct {
	// Method and Type select the request, e.g. POST subscriptionPrices.
	Method string
	Type   string
	// Territory restricts the fault to one territory when set.
	Territory string

	Status int
	Code   string
	Detail string

	// Times is how often the fault fires; zero means every time.
	Times int
}

type faults struct {
	mu     sync.Mutex
	active []*Fault
}

func (f *faults) add(fault Fault) {
	if fault.Status == 0 {
		fault.Status = http.StatusConflict
	}
	f.mu.Lock()
	f.active = append(f.active, &fault)
	f.mu.Unlock()
}

// match returns the first armed fault for the request and consumes one shot.
func (f *faults) match(method, typ, territory string) (Fault, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, fault := range f.active {
		if fault.Method != method || fault.Type != typ {
			continue
		}
		if fault.Territory != "" && fault.Territory != territory {
			continue
		}
		hit := *fault
		if fault.Times > 0 {
			fault.Times--
			if fault.Times == 0 {
				f.active = append(f.active[:i], f.active[i+1:]...)
			}
		}
		return hit, true
	}
	return Fault{}, false
}
