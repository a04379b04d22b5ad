package shipping

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// resolveTimeout caps a single resolver round trip. The lookup runs off the
// request path, so the resolver gets its own deadline instead of the
// caller's.
const resolveTimeout = 10 * time.Second

// Result is a settled rate lookup. Methods may be empty with a nil Err,
// which means the resolver answered but has nothing for this code; that is
// a different user-visible state from Err != nil (resolver failed).
type Result struct {
	PostalCode string
	Methods    []Method
	Err        error
}

// Lookup drives resolver calls for a single checkout view. It caches methods
// per postal code, reports an in-flight state, and discards responses whose
// postal code is no longer the one on screen (last-request-wins).
type Lookup struct {
	resolver RateResolver
	log      *logrus.Logger
	deliver  func(Result)

	mu       sync.Mutex
	current  string
	inFlight int
	cache    map[string][]Method
	wg       sync.WaitGroup
}

// NewLookup wires deliver as the sink for fresh results. deliver is never
// called for stale responses.
func NewLookup(resolver RateResolver, log *logrus.Logger, deliver func(Result)) *Lookup {
	return &Lookup{
		resolver: resolver,
		log:      log,
		deliver:  deliver,
		cache:    make(map[string][]Method),
	}
}

// SetPostalCode records the destination the shopper typed and reports
// whether a rate lookup was triggered. Codes shorter than six digits (or
// otherwise invalid) suppress the lookup entirely; the caller shows a
// prompt, not an empty-result state.
func (l *Lookup) SetPostalCode(ctx context.Context, code string) bool {
	if !ValidPostalCode(code) {
		l.mu.Lock()
		l.current = ""
		l.mu.Unlock()
		return false
	}

	l.mu.Lock()
	l.current = code
	if cached, ok := l.cache[code]; ok {
		l.mu.Unlock()
		l.deliver(Result{PostalCode: code, Methods: cached})
		return true
	}
	l.inFlight++
	l.mu.Unlock()

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		// The request that typed this code may finish before the resolver
		// answers; the lookup outlives it. Keep the caller's values but not
		// its cancellation.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), resolveTimeout)
		defer cancel()
		methods, err := l.resolver.Resolve(rctx, code)

		l.mu.Lock()
		l.inFlight--
		if l.current != code {
			// The shopper typed a different code before this resolution
			// returned. Drop it; the newer request owns the view.
			l.mu.Unlock()
			l.log.WithField("postal_code", code).Debug("discarding stale rate resolution")
			return
		}
		if err == nil {
			l.cache[code] = methods
		}
		l.mu.Unlock()

		l.deliver(Result{PostalCode: code, Methods: methods, Err: err})
	}()
	return true
}

// Loading reports whether any resolution is in flight for the current code.
func (l *Lookup) Loading() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inFlight > 0
}

// Wait blocks until outstanding resolutions settle. Test and teardown hook.
func (l *Lookup) Wait() {
	l.wg.Wait()
}
