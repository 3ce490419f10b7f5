package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/domain"
	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/idhash"
	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/observability"
	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/publish"
	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/ratelimit"
	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/storage"
	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/storage/memory"
)

type fakePublisher struct {
	mu    sync.Mutex
	calls int
	err   error
	block chan struct{} // when set, Publish waits until closed
}

func (p *fakePublisher) Publish(_ context.Context, _, _ string) (string, error) {
	p.mu.Lock()
	p.calls++
	n := p.calls
	err := p.err
	block := p.block
	p.mu.Unlock()

	if block != nil {
		<-block
	}
	if err != nil {
		return "", err
	}
	return watermill.NewUUID() + "-" + string(rune('0'+n)), nil
}

func (p *fakePublisher) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type fixture struct {
	dispatcher *Dispatcher
	records    *memory.RecordStore
	window     *memory.RateWindowStore
	publisher  *fakePublisher
	notifier   *gochannel.GoChannel
}

func newFixture(t *testing.T, cap int) *fixture {
	t.Helper()
	records := memory.NewRecordStore()
	window := memory.NewRateWindowStore()
	pub := &fakePublisher{}
	notifier := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 16}, watermill.NopLogger{})

	d := New(Options{
		Records:   records,
		Limiter:   ratelimit.New(window, cap, 24*time.Hour),
		Publisher: pub,
		Notifier:  notifier,
		Metrics:   observability.NewMetricsWith(prometheus.NewRegistry(), "dispatch_test"),
		Logger:    zerolog.Nop(),
	})
	return &fixture{dispatcher: d, records: records, window: window, publisher: pub, notifier: notifier}
}

func storeRecord(t *testing.T, records *memory.RecordStore, key string, at time.Time) *domain.Record {
	t.Helper()
	r := &domain.Record{
		ID:         idhash.RecordID(domain.CategorySale, key),
		Category:   domain.CategorySale,
		NaturalKey: key,
		Name:       "vault.eth",
		OccurredAt: at,
		ReceivedAt: at,
		Status:     domain.StatusUnposted,
		Value:      1,
		Currency:   domain.CurrencyETH,
		CreatedAt:  at,
	}
	if err := records.Insert(context.Background(), r); err != nil {
		t.Fatal(err)
	}
	return r
}

func TestDispatcher_SuccessPostsAndNotifies(t *testing.T) {
	fx := newFixture(t, 10)
	ctx := context.Background()

	msgs, err := fx.notifier.Subscribe(ctx, domain.StatusChangeTopic)
	if err != nil {
		t.Fatal(err)
	}

	rec := storeRecord(t, fx.records, "0xaa:1", time.Now())
	if err := fx.dispatcher.Dispatch(ctx, rec); err != nil {
		t.Fatal(err)
	}

	stored, err := fx.records.GetByID(ctx, rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != domain.StatusPosted {
		t.Errorf("status = %s, want posted", stored.Status)
	}
	if stored.PublishRef == "" {
		t.Error("publish ref not stored")
	}

	count, err := fx.window.CountSince(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("rate window entries = %d, want 1", count)
	}

	select {
	case msg := <-msgs:
		msg.Ack()
	case <-time.After(time.Second):
		t.Error("no status change notification")
	}
}

func TestDispatcher_TransientFailureStaysUnposted(t *testing.T) {
	fx := newFixture(t, 10)
	ctx := context.Background()
	fx.publisher.err = publish.Transient(errors.New("503"))

	rec := storeRecord(t, fx.records, "0xbb:1", time.Now())
	if err := fx.dispatcher.Dispatch(ctx, rec); err == nil {
		t.Fatal("transient failure not surfaced")
	}

	stored, _ := fx.records.GetByID(ctx, rec.ID)
	if stored.Status != domain.StatusUnposted {
		t.Errorf("status = %s, want unposted for retry", stored.Status)
	}

	// The failed attempt still consumed a slot.
	count, _ := fx.window.CountSince(ctx, time.Now().Add(-time.Hour))
	if count != 1 {
		t.Errorf("rate window entries = %d, want 1", count)
	}
}

func TestDispatcher_PermanentFailureMarksFailed(t *testing.T) {
	fx := newFixture(t, 10)
	ctx := context.Background()
	fx.publisher.err = publish.Permanent(errors.New("content rejected"))

	rec := storeRecord(t, fx.records, "0xcc:1", time.Now())
	if err := fx.dispatcher.Dispatch(ctx, rec); err == nil {
		t.Fatal("permanent failure not surfaced")
	}

	stored, _ := fx.records.GetByID(ctx, rec.ID)
	if stored.Status != domain.StatusFailed {
		t.Errorf("status = %s, want failed", stored.Status)
	}
}

func TestDispatcher_BudgetStopsPass(t *testing.T) {
	fx := newFixture(t, 2)
	ctx := context.Background()
	now := time.Now()

	for i, key := range []string{"0x01:1", "0x02:1", "0x03:1"} {
		storeRecord(t, fx.records, key, now.Add(time.Duration(i)*time.Minute))
	}

	if err := fx.dispatcher.DispatchReady(ctx); err != nil {
		t.Fatal(err)
	}

	if got := fx.publisher.callCount(); got != 2 {
		t.Errorf("publish calls = %d, want 2 (cap)", got)
	}

	unposted := domain.StatusUnposted
	left, err := fx.records.ListRecent(ctx, domain.CategorySale, 10, &unposted)
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 1 {
		t.Errorf("unposted left = %d, want 1", len(left))
	}
}

func TestDispatcher_OldestFirstWithinCategory(t *testing.T) {
	fx := newFixture(t, 1)
	ctx := context.Background()
	now := time.Now()

	storeRecord(t, fx.records, "0xnew:1", now)
	oldest := storeRecord(t, fx.records, "0xold:1", now.Add(-time.Hour))

	if err := fx.dispatcher.DispatchReady(ctx); err != nil {
		t.Fatal(err)
	}

	stored, _ := fx.records.GetByID(ctx, oldest.ID)
	if stored.Status != domain.StatusPosted {
		t.Error("oldest record not dispatched first")
	}
}

func TestDispatcher_InFlightGuard(t *testing.T) {
	fx := newFixture(t, 10)
	ctx := context.Background()

	block := make(chan struct{})
	fx.publisher.block = block
	rec := storeRecord(t, fx.records, "0xdd:1", time.Now())

	done := make(chan error, 1)
	go func() { done <- fx.dispatcher.Dispatch(ctx, rec) }()

	// Wait for the first dispatch to hold the in-flight slot.
	for i := 0; i < 100 && fx.publisher.callCount() == 0; i++ {
		time.Sleep(5 * time.Millisecond)
	}

	// Second dispatch of the same record is a no-op, not a queue.
	if err := fx.dispatcher.Dispatch(ctx, rec); err != nil {
		t.Fatalf("guarded dispatch errored: %v", err)
	}
	if got := fx.publisher.callCount(); got != 1 {
		t.Errorf("publish calls = %d, want 1 while in flight", got)
	}

	close(block)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
}

// brokenWindow reads fine but rejects every attempt write.
type brokenWindow struct {
	storage.RateWindowStore
}

func (w *brokenWindow) Add(context.Context, *storage.RateEntry) error {
	return errors.New("window store down")
}

func newBrokenWindowFixture(t *testing.T, cap int) *fixture {
	t.Helper()
	records := memory.NewRecordStore()
	window := &brokenWindow{RateWindowStore: memory.NewRateWindowStore()}
	pub := &fakePublisher{}
	notifier := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 16}, watermill.NopLogger{})

	d := New(Options{
		Records:   records,
		Limiter:   ratelimit.New(window, cap, 24*time.Hour),
		Publisher: pub,
		Notifier:  notifier,
		Metrics:   observability.NewMetricsWith(prometheus.NewRegistry(), "dispatch_test"),
		Logger:    zerolog.Nop(),
	})
	return &fixture{dispatcher: d, records: records, publisher: pub, notifier: notifier}
}

func TestDispatcher_WindowWriteFailureSurfaces(t *testing.T) {
	fx := newBrokenWindowFixture(t, 10)
	ctx := context.Background()

	rec := storeRecord(t, fx.records, "0xee:1", time.Now())
	if err := fx.dispatcher.Dispatch(ctx, rec); err == nil {
		t.Fatal("lost attempt write not surfaced")
	}

	// The publish itself went through, so the committed transition stands.
	stored, _ := fx.records.GetByID(ctx, rec.ID)
	if stored.Status != domain.StatusPosted {
		t.Errorf("status = %s, want posted", stored.Status)
	}
}

func TestDispatcher_WindowWriteFailureOnPublishError(t *testing.T) {
	fx := newBrokenWindowFixture(t, 10)
	ctx := context.Background()
	fx.publisher.err = publish.Transient(errors.New("503"))

	rec := storeRecord(t, fx.records, "0xef:1", time.Now())
	err := fx.dispatcher.Dispatch(ctx, rec)
	if err == nil {
		t.Fatal("lost attempt write not surfaced")
	}
	if !errors.Is(err, errRateWindow) {
		t.Errorf("err = %v, want rate window failure", err)
	}
}

func TestDispatcher_WindowWriteFailureEndsPass(t *testing.T) {
	fx := newBrokenWindowFixture(t, 10)
	ctx := context.Background()
	now := time.Now()

	storeRecord(t, fx.records, "0x01:1", now)
	storeRecord(t, fx.records, "0x02:1", now.Add(time.Minute))

	if err := fx.dispatcher.DispatchReady(ctx); err == nil {
		t.Fatal("pass continued past a lost attempt write")
	}
	if got := fx.publisher.callCount(); got != 1 {
		t.Errorf("publish calls = %d, want 1 before the pass ends", got)
	}
}

var _ message.Publisher = (*gochannel.GoChannel)(nil)
