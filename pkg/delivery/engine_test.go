package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/KiKaraage/eastyles-sub002/pkg/host"
)

func newTestEngine(doc *host.MemDocument) *Engine {
	return New(Options{
		Document:   doc,
		Privileged: doc.Privileged(),
		FrameID:    "frame-1",
	})
}

func TestInjectFlushRegistersHandle(t *testing.T) {
	ctx := context.Background()
	doc := host.NewMemDocument("https://example.com/")
	e := newTestEngine(doc)
	defer e.Close()

	res := e.Inject(ctx, "s1", "a { color: red; }")
	e.Flush(ctx)
	if err := res.Wait(ctx); err != nil {
		t.Fatalf("inject settled with error: %v", err)
	}
	if !e.Registered("s1") {
		t.Error("handle should be registered after flush")
	}
	// Default strategy constructs a sheet.
	if doc.SheetCount() != 1 {
		t.Errorf("SheetCount = %d, want 1", doc.SheetCount())
	}
	if e.ActiveStrategy() != StrategyConstructed {
		t.Errorf("ActiveStrategy = %s, want constructed", e.ActiveStrategy())
	}
}

func TestCoalescingBatchesMultipleInjections(t *testing.T) {
	ctx := context.Background()
	doc := host.NewMemDocument("https://example.com/")
	e := newTestEngine(doc)
	defer e.Close()

	r1 := e.Inject(ctx, "s1", "a {}")
	r2 := e.Inject(ctx, "s2", "b {}")
	e.Flush(ctx)

	if err := r1.Wait(ctx); err != nil {
		t.Errorf("s1: %v", err)
	}
	if err := r2.Wait(ctx); err != nil {
		t.Errorf("s2: %v", err)
	}
	if e.HandleCount() != 2 {
		t.Errorf("HandleCount = %d, want 2", e.HandleCount())
	}
}

func TestTimerFlushesWithoutExplicitFlush(t *testing.T) {
	ctx := context.Background()
	doc := host.NewMemDocument("https://example.com/")
	e := New(Options{Document: doc, CoalesceDelay: 5 * time.Millisecond})
	defer e.Close()

	res := e.Inject(ctx, "s1", "a {}")
	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := res.Wait(waitCtx); err != nil {
		t.Fatalf("timer flush failed: %v", err)
	}
	if !e.Registered("s1") {
		t.Error("handle should be registered after timer flush")
	}
}

func TestInjectThenRemoveLeavesNothing(t *testing.T) {
	ctx := context.Background()
	doc := host.NewMemDocument("https://example.com/")
	e := newTestEngine(doc)
	defer e.Close()

	res := e.Inject(ctx, "s1", "a {}")
	e.Remove(ctx, "s1") // forces the pending batch to flush first
	if err := res.Wait(ctx); err != nil {
		t.Fatalf("inject: %v", err)
	}

	if e.HandleCount() != 0 {
		t.Errorf("HandleCount = %d, want 0", e.HandleCount())
	}
	if doc.ArtifactCount() != 0 {
		t.Errorf("ArtifactCount = %d, want 0", doc.ArtifactCount())
	}
}

func TestUpdateUnregisteredBehavesLikeInject(t *testing.T) {
	ctx := context.Background()
	doc := host.NewMemDocument("https://example.com/")
	e := newTestEngine(doc)
	defer e.Close()

	if err := e.Update(ctx, "s1", "a { color: red; }"); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !e.Registered("s1") {
		t.Error("update of unregistered style should register a handle")
	}
	if doc.SheetCount() != 1 {
		t.Errorf("SheetCount = %d, want 1", doc.SheetCount())
	}
}

func TestUpdateInPlace(t *testing.T) {
	ctx := context.Background()
	doc := host.NewMemDocument("https://example.com/")
	e := New(Options{Document: doc, Initial: StrategyNode})
	defer e.Close()

	res := e.Inject(ctx, "s1", "a { color: red; }")
	e.Flush(ctx)
	if err := res.Wait(ctx); err != nil {
		t.Fatal(err)
	}

	if err := e.Update(ctx, "s1", "a { color: blue; }"); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if css, ok := doc.AppliedCSS("s1"); !ok || css != "a { color: blue; }" {
		t.Errorf("AppliedCSS = %q, %v", css, ok)
	}
	if doc.NodeCount() != 1 {
		t.Errorf("NodeCount = %d, want 1 (in-place update)", doc.NodeCount())
	}
}

func TestUpdateFallsBackToReinject(t *testing.T) {
	ctx := context.Background()
	doc := host.NewMemDocument("https://example.com/")
	e := New(Options{Document: doc, Initial: StrategyConstructed})
	defer e.Close()

	res := e.Inject(ctx, "s1", "a {}")
	e.Flush(ctx)
	if err := res.Wait(ctx); err != nil {
		t.Fatal(err)
	}

	// Break in-place sheet replacement but leave construction working
	// through the node path.
	doc.Deny(host.CapSheet, errors.New("sheet surface gone"))
	if err := e.Update(ctx, "s1", "a { color: blue; }"); err != nil {
		t.Fatalf("Update should recover via remove-then-reinject: %v", err)
	}
	if !e.Registered("s1") {
		t.Error("handle should survive the fallback path")
	}
	if css, ok := doc.AppliedCSS("s1"); !ok || css != "a { color: blue; }" {
		t.Errorf("AppliedCSS = %q, %v", css, ok)
	}
}

func TestPolicyViolationPromotesStrategy(t *testing.T) {
	ctx := context.Background()
	doc := host.NewMemDocument("https://example.com/",
		host.WithPrivileged(),
		host.WithDenial(host.CapSheet, &host.PolicyError{
			Directive: "style-src",
			Reason:    "constructed sheets forbidden",
		}),
	)
	e := newTestEngine(doc)
	defer e.Close()

	res := e.Inject(ctx, "s1", "a {}")
	e.Flush(ctx)
	if err := res.Wait(ctx); err != nil {
		t.Fatalf("fallback should have succeeded: %v", err)
	}
	if got := e.ActiveStrategy(); got != StrategyPrivileged {
		t.Errorf("ActiveStrategy = %s, want privileged after promotion", got)
	}
	if !e.Registered("s1") {
		t.Error("handle should be registered under the promoted strategy")
	}
}

func TestPolicyViolationPropagatesWhenFallbacksFail(t *testing.T) {
	ctx := context.Background()
	// style-src remediation tries only the privileged API, which this
	// page does not expose.
	doc := host.NewMemDocument("https://example.com/",
		host.WithDenial(host.CapSheet, &host.PolicyError{
			Directive: "style-src",
			Reason:    "constructed sheets forbidden",
		}),
	)
	e := newTestEngine(doc)
	defer e.Close()

	res := e.Inject(ctx, "s1", "a {}")
	e.Flush(ctx)
	err := res.Wait(ctx)
	var pv *PolicyViolation
	if !errors.As(err, &pv) {
		t.Fatalf("want PolicyViolation, got %v", err)
	}
	if pv.Directive != "style-src" || pv.Remediation != RemediationPrivilegedAPI {
		t.Errorf("diagnostic = %+v", pv)
	}
}

func TestAllStrategiesFailAggregatesThreeErrors(t *testing.T) {
	ctx := context.Background()
	doc := host.NewMemDocument("https://example.com/",
		host.WithDenial(host.CapSheet, errors.New("sheet down")),
		host.WithDenial(host.CapNode, errors.New("node down")),
	) // no privileged API either
	e := newTestEngine(doc)
	defer e.Close()

	res := e.Inject(ctx, "s1", "a {}")
	e.Flush(ctx)
	err := res.Wait(ctx)
	var df *DeliveryFailure
	if !errors.As(err, &df) {
		t.Fatalf("want DeliveryFailure, got %v", err)
	}
	if len(df.Errs) != 3 {
		t.Errorf("aggregate carries %d errors, want 3: %v", len(df.Errs), df.Errs)
	}
	// Active strategy is restored after a universal-order walk.
	if e.ActiveStrategy() != StrategyConstructed {
		t.Errorf("ActiveStrategy = %s, want constructed", e.ActiveStrategy())
	}
}

func TestUniversalFallbackKeepsActiveStrategy(t *testing.T) {
	ctx := context.Background()
	doc := host.NewMemDocument("https://example.com/",
		host.WithDenial(host.CapSheet, errors.New("sheet down")),
	)
	e := newTestEngine(doc)
	defer e.Close()

	res := e.Inject(ctx, "s1", "a {}")
	e.Flush(ctx)
	if err := res.Wait(ctx); err != nil {
		t.Fatalf("node fallback should succeed: %v", err)
	}
	if doc.NodeCount() != 1 {
		t.Errorf("NodeCount = %d, want 1", doc.NodeCount())
	}
	// Unclassified failures never reassign the active strategy.
	if e.ActiveStrategy() != StrategyConstructed {
		t.Errorf("ActiveStrategy = %s, want constructed", e.ActiveStrategy())
	}
}

func TestRemoveAlwaysEvicts(t *testing.T) {
	ctx := context.Background()
	doc := host.NewMemDocument("https://example.com/")
	e := New(Options{Document: doc, Initial: StrategyNode})
	defer e.Close()

	res := e.Inject(ctx, "s1", "a {}")
	e.Flush(ctx)
	if err := res.Wait(ctx); err != nil {
		t.Fatal(err)
	}

	// Underlying removal fails, the registry entry still goes away.
	doc.Deny(host.CapNode, errors.New("page gone"))
	e.Remove(ctx, "s1")
	if e.Registered("s1") {
		t.Error("registry entry must be evicted even when removal fails")
	}
}

func TestRemoveFindsResidualArtifact(t *testing.T) {
	ctx := context.Background()
	doc := host.NewMemDocument("https://example.com/")
	e := New(Options{Document: doc, Initial: StrategyNode})
	defer e.Close()

	// A node tagged with the style ID exists in the page but the
	// engine has no handle for it (e.g. left over from a lost handle).
	if _, err := doc.InsertStyleNode(ctx, "orphan", "a {}"); err != nil {
		t.Fatal(err)
	}
	e.Remove(ctx, "orphan")
	if doc.NodeCount() != 0 {
		t.Errorf("NodeCount = %d, want 0 after residual cleanup", doc.NodeCount())
	}
}

func TestReinjectReplacesArtifact(t *testing.T) {
	ctx := context.Background()
	doc := host.NewMemDocument("https://example.com/")
	e := newTestEngine(doc)
	defer e.Close()

	r1 := e.Inject(ctx, "s1", "a {}")
	e.Flush(ctx)
	r2 := e.Inject(ctx, "s1", "b {}")
	e.Flush(ctx)
	if err := r1.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	if err := r2.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	// At most one artifact per style.
	if doc.SheetCount() != 1 {
		t.Errorf("SheetCount = %d, want 1", doc.SheetCount())
	}
}

func TestCloseSettlesPending(t *testing.T) {
	ctx := context.Background()
	doc := host.NewMemDocument("https://example.com/")
	e := New(Options{Document: doc, CoalesceDelay: time.Hour})

	res := e.Inject(ctx, "s1", "a {}")
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	if err := res.Wait(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("pending injection settled with %v, want ErrClosed", err)
	}
	if r := e.Inject(ctx, "s2", "b {}"); !errors.Is(r.Wait(ctx), ErrClosed) {
		t.Error("inject after close must settle with ErrClosed")
	}
}
