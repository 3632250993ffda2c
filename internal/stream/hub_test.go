package stream

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"virtual-exchange/internal/models"
	"virtual-exchange/internal/store"
)

type recordingSink struct {
	mu        sync.Mutex
	delivered map[string][]models.Notice
	fail      map[string]bool
}

func newRecordingSink() *recordingSink {
	return &recordingSink{
		delivered: make(map[string][]models.Notice),
		fail:      make(map[string]bool),
	}
}

func (r *recordingSink) sink(target string, notice models.Notice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail[target] {
		return errors.New("delivery refused")
	}
	r.delivered[target] = append(r.delivered[target], notice)
	return nil
}

func (r *recordingSink) count(target string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.delivered[target])
}

func newHubFixture(t *testing.T) (*Hub, *recordingSink, *store.MemoryStore) {
	t.Helper()
	sink := newRecordingSink()
	st := store.NewMemoryStore(time.Hour)
	return NewHub(sink.sink, st, zerolog.Nop()), sink, st
}

func TestSubscribePersists(t *testing.T) {
	hub, _, st := newHubFixture(t)
	ctx := context.Background()

	if err := hub.Subscribe(ctx, "channel:1"); err != nil {
		t.Fatal(err)
	}
	if err := hub.Subscribe(ctx, "channel:2"); err != nil {
		t.Fatal(err)
	}

	got := hub.Subscribers()
	sort.Strings(got)
	if len(got) != 2 || got[0] != "channel:1" || got[1] != "channel:2" {
		t.Errorf("subscribers = %v", got)
	}

	stored, err := st.LoadSubscribers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 2 {
		t.Errorf("stored targets = %v, want both persisted", stored)
	}
}

func TestUnsubscribePersists(t *testing.T) {
	hub, _, st := newHubFixture(t)
	ctx := context.Background()

	if err := hub.Subscribe(ctx, "channel:1"); err != nil {
		t.Fatal(err)
	}
	if err := hub.Unsubscribe(ctx, "channel:1"); err != nil {
		t.Fatal(err)
	}

	if got := hub.Subscribers(); len(got) != 0 {
		t.Errorf("subscribers = %v, want empty", got)
	}
	stored, err := st.LoadSubscribers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 0 {
		t.Errorf("stored targets = %v, want empty", stored)
	}
}

func TestLoadRestoresSubscribers(t *testing.T) {
	sink := newRecordingSink()
	st := store.NewMemoryStore(time.Hour)
	ctx := context.Background()
	if err := st.AddSubscriber(ctx, "channel:7"); err != nil {
		t.Fatal(err)
	}

	hub := NewHub(sink.sink, st, zerolog.Nop())
	if err := hub.Load(ctx); err != nil {
		t.Fatal(err)
	}
	got := hub.Subscribers()
	if len(got) != 1 || got[0] != "channel:7" {
		t.Errorf("subscribers = %v, want restored channel:7", got)
	}
}

func TestBroadcastDeliversToAll(t *testing.T) {
	hub, sink, _ := newHubFixture(t)
	ctx := context.Background()
	hub.Subscribe(ctx, "channel:1")
	hub.Subscribe(ctx, "channel:2")

	hub.Broadcast(models.Notice{StockID: "ZY", Text: "earnings ahead of forecast"})

	if sink.count("channel:1") != 1 || sink.count("channel:2") != 1 {
		t.Errorf("deliveries = %d/%d, want 1 each", sink.count("channel:1"), sink.count("channel:2"))
	}
	delivered, dropped := hub.Stats()
	if delivered != 2 || dropped != 0 {
		t.Errorf("stats = %d delivered %d dropped", delivered, dropped)
	}
}

func TestBroadcastDropsFailedTarget(t *testing.T) {
	hub, sink, st := newHubFixture(t)
	ctx := context.Background()
	hub.Subscribe(ctx, "channel:alive")
	hub.Subscribe(ctx, "channel:dead")
	sink.fail["channel:dead"] = true

	hub.Broadcast(models.Notice{StockID: "ZY", Text: "price shock"})

	got := hub.Subscribers()
	if len(got) != 1 || got[0] != "channel:alive" {
		t.Errorf("subscribers = %v, want dead target dropped", got)
	}
	stored, err := st.LoadSubscribers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 1 || stored[0] != "channel:alive" {
		t.Errorf("stored targets = %v, want dead target removed", stored)
	}

	// the dropped target stays gone on the next broadcast
	hub.Broadcast(models.Notice{StockID: "ZY", Text: "follow-up"})
	if sink.count("channel:dead") != 0 {
		t.Error("dead target still receiving bulletins")
	}
	if sink.count("channel:alive") != 2 {
		t.Errorf("alive deliveries = %d, want 2", sink.count("channel:alive"))
	}

	_, dropped := hub.Stats()
	if dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}
}

func TestBroadcastWithoutSink(t *testing.T) {
	st := store.NewMemoryStore(time.Hour)
	hub := NewHub(nil, st, zerolog.Nop())
	hub.Subscribe(context.Background(), "channel:1")

	// must not panic
	hub.Broadcast(models.Notice{StockID: "ZY", Text: "quiet"})
	if delivered, _ := hub.Stats(); delivered != 0 {
		t.Errorf("delivered = %d, want 0", delivered)
	}
}
