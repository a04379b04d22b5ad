package shipping

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajbirverr/centurionintimates-sub000/internal/domain"
)

type blockingResolver struct {
	mu      sync.Mutex
	gates   map[string]chan struct{}
	methods map[string][]Method
	err     error
	calls   int
}

func newBlockingResolver() *blockingResolver {
	return &blockingResolver{
		gates:   make(map[string]chan struct{}),
		methods: make(map[string][]Method),
	}
}

func (r *blockingResolver) gate(code string) chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.gates[code]; !ok {
		r.gates[code] = make(chan struct{})
	}
	return r.gates[code]
}

func (r *blockingResolver) Resolve(_ context.Context, code string) ([]Method, error) {
	r.mu.Lock()
	r.calls++
	gate := r.gates[code]
	methods := r.methods[code]
	err := r.err
	r.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return methods, err
}

type resultSink struct {
	mu      sync.Mutex
	results []Result
}

func (s *resultSink) deliver(res Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, res)
}

func (s *resultSink) last() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.results) == 0 {
		return Result{}, false
	}
	return s.results[len(s.results)-1], true
}

func (s *resultSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.results)
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestValidPostalCode(t *testing.T) {
	assert.True(t, ValidPostalCode("110001"))
	assert.False(t, ValidPostalCode("11000"), "five digits must not trigger a lookup")
	assert.False(t, ValidPostalCode("1100011"))
	assert.False(t, ValidPostalCode("11000a"))
	assert.False(t, ValidPostalCode(""))
}

func TestSetPostalCode_ShortCodeSuppressesLookup(t *testing.T) {
	resolver := newBlockingResolver()
	sink := &resultSink{}
	l := NewLookup(resolver, testLogger(), sink.deliver)

	triggered := l.SetPostalCode(context.Background(), "11000")
	assert.False(t, triggered)
	assert.Equal(t, 0, resolver.calls)
	assert.Equal(t, 0, sink.count())
}

func TestSetPostalCode_SixDigitsTriggersLookup(t *testing.T) {
	resolver := newBlockingResolver()
	resolver.methods["110001"] = []Method{{Method: MethodStandard, Cost: 12000}}
	sink := &resultSink{}
	l := NewLookup(resolver, testLogger(), sink.deliver)

	triggered := l.SetPostalCode(context.Background(), "110001")
	require.True(t, triggered)
	l.Wait()

	res, ok := sink.last()
	require.True(t, ok)
	require.NoError(t, res.Err)
	assert.Equal(t, "110001", res.PostalCode)
	require.Len(t, res.Methods, 1)
	assert.Equal(t, domain.Paise(12000), res.Methods[0].Cost)
}

func TestSetPostalCode_StaleResponseDiscarded(t *testing.T) {
	resolver := newBlockingResolver()
	firstGate := resolver.gate("110001")
	resolver.methods["110001"] = []Method{{Method: MethodStandard, Cost: 12000}}
	resolver.methods["560001"] = []Method{{Method: MethodStandard, Cost: 15000}}

	sink := &resultSink{}
	l := NewLookup(resolver, testLogger(), sink.deliver)
	ctx := context.Background()

	// First lookup blocks; the shopper types a new code before it returns.
	require.True(t, l.SetPostalCode(ctx, "110001"))
	require.True(t, l.SetPostalCode(ctx, "560001"))

	// Second request settles first.
	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, time.Millisecond)

	// Now the stale response for 110001 arrives and must be dropped.
	close(firstGate)
	l.Wait()

	assert.Equal(t, 1, sink.count(), "stale resolution must not be delivered")
	res, _ := sink.last()
	assert.Equal(t, "560001", res.PostalCode)
	assert.Equal(t, domain.Paise(15000), res.Methods[0].Cost)
}

// ctxCheckingResolver surfaces whatever cancellation its context carries at
// the moment the gate opens.
type ctxCheckingResolver struct {
	gate    chan struct{}
	methods []Method
}

func (r *ctxCheckingResolver) Resolve(ctx context.Context, _ string) ([]Method, error) {
	<-r.gate
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.methods, nil
}

func TestSetPostalCode_LookupOutlivesCallerCancellation(t *testing.T) {
	resolver := &ctxCheckingResolver{
		gate:    make(chan struct{}),
		methods: []Method{{Method: MethodStandard, Cost: 12000}},
	}
	sink := &resultSink{}
	l := NewLookup(resolver, testLogger(), sink.deliver)

	ctx, cancel := context.WithCancel(context.Background())
	require.True(t, l.SetPostalCode(ctx, "110001"))

	// The request that triggered the lookup finishes before the resolver
	// answers.
	cancel()
	close(resolver.gate)
	l.Wait()

	res, ok := sink.last()
	require.True(t, ok)
	require.NoError(t, res.Err, "an in-flight lookup must not inherit the request's cancellation")
	require.Len(t, res.Methods, 1)
	assert.Equal(t, domain.Paise(12000), res.Methods[0].Cost)
}

func TestSetPostalCode_CachesPerCode(t *testing.T) {
	resolver := newBlockingResolver()
	resolver.methods["110001"] = []Method{{Method: MethodStandard, Cost: 12000}}
	sink := &resultSink{}
	l := NewLookup(resolver, testLogger(), sink.deliver)
	ctx := context.Background()

	require.True(t, l.SetPostalCode(ctx, "110001"))
	l.Wait()
	require.True(t, l.SetPostalCode(ctx, "110001"))
	l.Wait()

	assert.Equal(t, 1, resolver.calls, "second lookup for the same code must hit the cache")
	assert.Equal(t, 2, sink.count())
}

func TestSetPostalCode_ResolverFailureIsDistinct(t *testing.T) {
	resolver := newBlockingResolver()
	resolver.err = errors.New("rate service unavailable")
	sink := &resultSink{}
	l := NewLookup(resolver, testLogger(), sink.deliver)

	require.True(t, l.SetPostalCode(context.Background(), "110001"))
	l.Wait()

	res, ok := sink.last()
	require.True(t, ok)
	assert.Error(t, res.Err)

	// A failure is not cached; the next attempt reaches the resolver again.
	resolver.mu.Lock()
	resolver.err = nil
	resolver.methods["110001"] = []Method{{Method: MethodStandard, Cost: 12000}}
	resolver.mu.Unlock()

	require.True(t, l.SetPostalCode(context.Background(), "110001"))
	l.Wait()
	res, _ = sink.last()
	require.NoError(t, res.Err)
	assert.Len(t, res.Methods, 1)
}

func TestStaticResolver_TwoTierTable(t *testing.T) {
	methods, err := StaticResolver{}.Resolve(context.Background(), "110001")
	require.NoError(t, err)
	require.Len(t, methods, 2)
	assert.Equal(t, MethodStandard, methods[0].Method)
	assert.Equal(t, domain.Paise(12000), methods[0].Cost)
	assert.Equal(t, MethodExpress, methods[1].Method)
	assert.Equal(t, domain.Paise(25000), methods[1].Cost)
}
