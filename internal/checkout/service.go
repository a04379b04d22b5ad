package checkout

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/rajbirverr/centurionintimates-sub000/internal/reconcile"
	"github.com/rajbirverr/centurionintimates-sub000/internal/shipping"
)

// Service hands out one checkout machine per device. Machines live for the
// duration of the process; a device re-entering checkout resumes where it
// left off, which is what lets a refresh redisplay the placed order instead
// of creating a new one.
type Service struct {
	carts    CartSource
	resolver shipping.RateResolver
	placer   OrderPlacer
	log      *logrus.Logger

	mu       sync.Mutex
	machines map[string]*Machine
}

func NewService(carts CartSource, resolver shipping.RateResolver, placer OrderPlacer, log *logrus.Logger) *Service {
	return &Service{
		carts:    carts,
		resolver: resolver,
		placer:   placer,
		log:      log,
		machines: make(map[string]*Machine),
	}
}

// Machine returns the device's checkout machine, creating it on first use.
// The machine keeps the latest identity so a login mid-checkout routes the
// order to the authenticated user.
func (s *Service) Machine(shopper reconcile.Shopper) *Machine {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.machines[shopper.DeviceID]
	if !ok {
		m = NewMachine(shopper, s.carts, s.resolver, s.placer, s.log)
		s.machines[shopper.DeviceID] = m
		return m
	}
	m.mu.Lock()
	m.shopper = shopper
	m.mu.Unlock()
	return m
}

// Forget drops a device's machine, cancelling nothing in flight; used when
// a device session is torn down.
func (s *Service) Forget(deviceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.machines, deviceID)
}
