package listing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/cargolog/console/model"
)

// fakeLister records every List call and serves scripted responses. A
// per-call gate channel lets tests hold a response in flight.
type fakeLister struct {
	mu      sync.Mutex
	calls   []map[string]string
	rows    []model.Record
	failure error
	gates   []chan struct{} // gate for call n, if set
}

func (f *fakeLister) List(ctx context.Context, rctx *model.RequestContext, route string, filter map[string]string) ([]model.Record, error) {
	f.mu.Lock()
	n := len(f.calls)
	copied := make(map[string]string, len(filter))
	for k, v := range filter {
		copied[k] = v
	}
	f.calls = append(f.calls, copied)
	var gate chan struct{}
	if n < len(f.gates) && f.gates[n] != nil {
		gate = f.gates[n]
	}
	rows := f.rows
	failure := f.failure
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if failure != nil {
		return nil, failure
	}
	return rows, nil
}

func (f *fakeLister) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func listRctx() *model.RequestContext {
	return &model.RequestContext{Token: "t", CompanyID: "c"}
}

func TestController_LoadFetchesWithEmptyFilter(t *testing.T) {
	lister := &fakeLister{rows: []model.Record{{"id": "1"}, {"id": "2"}}}
	c := NewController("/documents", lister, zap.NewNop())

	if err := c.Load(context.Background(), listRctx()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if lister.callCount() != 1 {
		t.Fatalf("calls = %d, want 1", lister.callCount())
	}
	if len(lister.calls[0]) != 0 {
		t.Errorf("filter = %v, want empty", lister.calls[0])
	}
	if len(c.Rows()) != 2 {
		t.Errorf("len(Rows()) = %d, want 2", len(c.Rows()))
	}
}

func TestController_SetFilterIssuesOneNewRequest(t *testing.T) {
	lister := &fakeLister{rows: []model.Record{{"id": "1"}}}
	c := NewController("/documents", lister, zap.NewNop())
	c.Load(context.Background(), listRctx())

	if err := c.SetFilter(context.Background(), listRctx(), "number", "123"); err != nil {
		t.Fatalf("SetFilter() error = %v", err)
	}
	if lister.callCount() != 2 {
		t.Fatalf("calls = %d, want 2", lister.callCount())
	}
	if got := lister.calls[1]["number"]; got != "123" {
		t.Errorf("filter number = %q, want 123", got)
	}
}

func TestController_FilterLastWriteWinsAndPerKeyRemoval(t *testing.T) {
	lister := &fakeLister{}
	c := NewController("/documents", lister, zap.NewNop())
	ctx := context.Background()

	c.SetFilter(ctx, listRctx(), "number", "1")
	c.SetFilter(ctx, listRctx(), "number", "2")
	c.SetFilter(ctx, listRctx(), "status", "open")

	got := c.Filter()
	if got["number"] != "2" || got["status"] != "open" {
		t.Errorf("Filter() = %v, want number=2 status=open", got)
	}

	c.RemoveFilter(ctx, listRctx(), "number")
	got = c.Filter()
	if _, ok := got["number"]; ok {
		t.Error("number constraint survived RemoveFilter()")
	}
	if got["status"] != "open" {
		t.Error("unrelated constraint dropped by RemoveFilter()")
	}
}

func TestController_SingleFilterModeReplacesConstraints(t *testing.T) {
	lister := &fakeLister{}
	c := NewController("/documents", lister, zap.NewNop(), WithSingleFilter())
	ctx := context.Background()

	c.SetFilter(ctx, listRctx(), "number", "1")
	c.SetFilter(ctx, listRctx(), "status", "open")

	got := c.Filter()
	if len(got) != 1 || got["status"] != "open" {
		t.Errorf("Filter() = %v, want only status=open", got)
	}
}

func TestController_StaleResponseDoesNotOverwriteNewer(t *testing.T) {
	gate := make(chan struct{})
	lister := &fakeLister{gates: []chan struct{}{gate}}
	c := NewController("/documents", lister, zap.NewNop())
	ctx := context.Background()

	// First load blocks in flight.
	firstDone := make(chan error, 1)
	go func() {
		firstDone <- c.Load(ctx, listRctx())
	}()
	for lister.callCount() == 0 {
		time.Sleep(time.Millisecond)
	}

	// Second load completes while the first is still outstanding.
	lister.mu.Lock()
	lister.rows = []model.Record{{"id": "newer"}}
	lister.mu.Unlock()
	if err := c.Load(ctx, listRctx()); err != nil {
		t.Fatalf("second Load() error = %v", err)
	}

	// Release the first load; its result must be discarded.
	lister.mu.Lock()
	lister.rows = []model.Record{{"id": "stale"}}
	lister.mu.Unlock()
	close(gate)
	if err := <-firstDone; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("first Load() = %v, want ErrSuperseded", err)
	}

	rows := c.Rows()
	if len(rows) != 1 || rows[0].StringField("id") != "newer" {
		t.Errorf("Rows() = %v, want the newer result", rows)
	}
}

func TestController_SupersedeNotifyFiresOnDroppedResponse(t *testing.T) {
	gate := make(chan struct{})
	lister := &fakeLister{gates: []chan struct{}{gate}}
	var dropped int
	c := NewController("/documents", lister, zap.NewNop(), WithSupersedeNotify(func() { dropped++ }))
	ctx := context.Background()

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- c.Load(ctx, listRctx())
	}()
	for lister.callCount() == 0 {
		time.Sleep(time.Millisecond)
	}

	if err := c.Load(ctx, listRctx()); err != nil {
		t.Fatalf("second Load() error = %v", err)
	}
	if dropped != 0 {
		t.Fatalf("notify fired %d times before any drop", dropped)
	}

	close(gate)
	if err := <-firstDone; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("first Load() = %v, want ErrSuperseded", err)
	}
	if dropped != 1 {
		t.Errorf("notify fired %d times, want 1", dropped)
	}
}

func TestController_AfterLoadFiresOnFailure(t *testing.T) {
	lister := &fakeLister{failure: model.NewBackendError("boom")}
	var before, after int
	c := NewController("/documents", lister, zap.NewNop(), WithHooks(Hooks{
		BeforeLoad: func() { before++ },
		AfterLoad:  func() { after++ },
	}))

	err := c.Load(context.Background(), listRctx())
	if err == nil {
		t.Fatal("Load() error = nil, want backend error")
	}
	if before != 1 || after != 1 {
		t.Errorf("hooks fired before=%d after=%d, want 1/1", before, after)
	}
}

func TestController_TransformAppliedToRows(t *testing.T) {
	lister := &fakeLister{rows: []model.Record{{"id": "1", "value": 10.0}}}
	c := NewController("/balance", lister, zap.NewNop(), WithTransform(func(rows []model.Record) []model.Record {
		out := make([]model.Record, len(rows))
		for i, r := range rows {
			clone := r.Clone()
			clone["flag"] = "set"
			out[i] = clone
		}
		return out
	}))

	if err := c.Load(context.Background(), listRctx()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.Rows()[0].StringField("flag") != "set" {
		t.Error("transform not applied to published rows")
	}
}

func TestController_RowRoute(t *testing.T) {
	c := NewController("/documents", &fakeLister{}, zap.NewNop())
	if got := c.RowRoute("42"); got != "/documents/form/42" {
		t.Errorf("RowRoute(42) = %q, want /documents/form/42", got)
	}
}
