package lifetime

import (
	"errors"
	"sync"
	"testing"

	"github.com/acqkit/acqkit-go/pkg/errs"
)

// parent is a minimal application-owned entity for tests.
type parent struct {
	AppOwned
	destroyed int
}

func newParent() *parent {
	p := &parent{}
	p.SetDestructor(func() { p.destroyed++ })
	return p
}

// child is a minimal parent-owned entity for tests.
type child struct {
	ParentOwned[*parent]
}

func TestAppOwnedExplicitDestroy(t *testing.T) {
	p := newParent()

	h1, err := p.Retain()
	if err != nil {
		t.Fatalf("Retain: %v", err)
	}
	h2, err := p.Retain()
	if err != nil {
		t.Fatalf("Retain: %v", err)
	}

	if err := h1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := h2.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if p.destroyed != 0 {
		t.Error("closing handles must not destroy an application-owned entity")
	}

	if err := p.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if p.destroyed != 1 {
		t.Errorf("destructor ran %d times, want 1", p.destroyed)
	}
	if !p.Destroyed() {
		t.Error("entity should report destroyed")
	}
}

func TestHandleDoubleCloseIsBug(t *testing.T) {
	p := newParent()
	h, _ := p.Retain()

	if err := h.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := h.Close(); !errors.Is(err, errs.ErrBug) {
		t.Errorf("second Close = %v, want Bug", err)
	}
	if p.Refs() != 0 {
		t.Errorf("refs = %d after double close, want 0", p.Refs())
	}
}

func TestRetainAfterDestroyIsBug(t *testing.T) {
	p := newParent()
	if err := p.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}

	if _, err := p.Retain(); !errors.Is(err, errs.ErrBug) {
		t.Errorf("Retain after destroy = %v, want Bug", err)
	}
}

func TestDestroyWithOutstandingHandlesIsBug(t *testing.T) {
	p := newParent()
	h, _ := p.Retain()

	if err := p.Destroy(); !errors.Is(err, errs.ErrBug) {
		t.Errorf("Destroy with live handle = %v, want Bug", err)
	}
	if p.destroyed != 0 {
		t.Error("destructor must not run on failed Destroy")
	}

	_ = h.Close()
	if err := p.Destroy(); err != nil {
		t.Fatalf("Destroy after handles closed: %v", err)
	}
	if p.destroyed != 1 {
		t.Errorf("destructor ran %d times, want 1", p.destroyed)
	}
	if err := p.Destroy(); !errors.Is(err, errs.ErrBug) {
		t.Errorf("Destroy after destruction = %v, want Bug", err)
	}
}

func TestBindParentReturnsFirstHandle(t *testing.T) {
	p := newParent()
	c := &child{}

	h, err := c.BindParent(p)
	if err != nil {
		t.Fatalf("BindParent: %v", err)
	}
	if h == nil {
		t.Fatal("BindParent returned nil handle")
	}
	if got, err := c.Parent(); err != nil || got != p {
		t.Errorf("Parent() = %v, %v", got, err)
	}
	if p.Refs() != 1 {
		t.Errorf("parent refs = %d, want 1 (single pin)", p.Refs())
	}
}

func TestDoubleBindIsBug(t *testing.T) {
	p := newParent()
	c := &child{}

	if _, err := c.BindParent(p); err != nil {
		t.Fatalf("BindParent: %v", err)
	}
	if _, err := c.BindParent(p); !errors.Is(err, errs.ErrBug) {
		t.Errorf("second BindParent = %v, want Bug", err)
	}
	// The failed bind must not have taken a second pin.
	if p.Refs() != 1 {
		t.Errorf("parent refs = %d after failed rebind, want 1", p.Refs())
	}
}

func TestBindNilParentIsBug(t *testing.T) {
	c := &child{}
	if _, err := c.BindParent(nil); !errors.Is(err, errs.ErrBug) {
		t.Errorf("BindParent(nil) = %v, want Bug", err)
	}
	if c.Bound() {
		t.Error("failed bind must leave child unbound")
	}
}

func TestBindDestroyedParentIsBug(t *testing.T) {
	p := newParent()
	if err := p.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}

	c := &child{}
	if _, err := c.BindParent(p); !errors.Is(err, errs.ErrBug) {
		t.Errorf("BindParent(destroyed) = %v, want Bug", err)
	}
	if c.Bound() {
		t.Error("failed bind must leave child unbound")
	}
}

func TestSetParentDoesNotPin(t *testing.T) {
	p := newParent()
	c := &child{}

	if err := c.SetParent(p); err != nil {
		t.Fatalf("SetParent: %v", err)
	}
	if !c.Bound() {
		t.Error("child should be bound after SetParent")
	}
	if p.Refs() != 0 {
		t.Errorf("parent refs = %d after SetParent, want 0", p.Refs())
	}

	// First handle takes the pin, last handle releases it.
	h, err := c.Retain()
	if err != nil {
		t.Fatalf("Retain: %v", err)
	}
	if p.Refs() != 1 {
		t.Errorf("parent refs = %d with live child handle, want 1", p.Refs())
	}
	_ = h.Close()
	if p.Refs() != 0 {
		t.Errorf("parent refs = %d after child handle closed, want 0", p.Refs())
	}
	if err := p.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
}

func TestSetParentTwiceIsBug(t *testing.T) {
	p := newParent()
	c := &child{}
	if err := c.SetParent(p); err != nil {
		t.Fatalf("SetParent: %v", err)
	}
	if err := c.SetParent(p); !errors.Is(err, errs.ErrBug) {
		t.Errorf("second SetParent = %v, want Bug", err)
	}
	if err := c.SetParent(nil); !errors.Is(err, errs.ErrBug) {
		t.Errorf("SetParent(nil) = %v, want Bug", err)
	}
}

func TestParentOfUnboundChildIsBug(t *testing.T) {
	c := &child{}
	if _, err := c.Parent(); !errors.Is(err, errs.ErrBug) {
		t.Errorf("Parent() unbound = %v, want Bug", err)
	}
	if _, err := c.Retain(); !errors.Is(err, errs.ErrBug) {
		t.Errorf("Retain() unbound = %v, want Bug", err)
	}
}

// At most one pin is created per child no matter how many handles are
// handed out, and it is released exactly once, when the last handle goes.
func TestSinglePinAcrossManyHandles(t *testing.T) {
	p := newParent()

	c := &child{}
	h1, err := c.BindParent(p)
	if err != nil {
		t.Fatalf("BindParent: %v", err)
	}
	h2, _ := c.Retain()
	h3, _ := c.Retain()

	if p.Refs() != 1 {
		t.Errorf("parent refs = %d, want 1", p.Refs())
	}

	_ = h1.Close()
	_ = h2.Close()
	if p.Refs() != 1 {
		t.Error("pin must persist while any child handle is live")
	}

	_ = h3.Close()
	if p.Refs() != 0 {
		t.Errorf("parent refs = %d after last child handle, want 0", p.Refs())
	}

	// Re-acquiring after full release re-pins.
	h4, err := c.Retain()
	if err != nil {
		t.Fatalf("Retain after release: %v", err)
	}
	if p.Refs() != 1 {
		t.Errorf("parent refs = %d after re-pin, want 1", p.Refs())
	}
	_ = h4.Close()
	if err := p.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
}

// A parent cannot be destroyed while any of its children is pinned.
func TestChildPinBlocksParentDestroy(t *testing.T) {
	p := newParent()

	a := &child{}
	ha, _ := a.BindParent(p)
	b := &child{}
	hb, _ := b.BindParent(p)

	_ = ha.Close()
	if err := p.Destroy(); !errors.Is(err, errs.ErrBug) {
		t.Errorf("Destroy with pinned sibling = %v, want Bug", err)
	}

	_ = hb.Close()
	if err := p.Destroy(); err != nil {
		t.Fatalf("Destroy after all pins released: %v", err)
	}
	if p.destroyed != 1 {
		t.Errorf("destructor ran %d times, want 1", p.destroyed)
	}
}

// Chained ownership: a grandchild handle pins the whole chain.
type grandchild struct {
	ParentOwned[*child]
}

func TestChainedOwnership(t *testing.T) {
	p := newParent()
	c := &child{}
	hc, _ := c.BindParent(p)

	g := &grandchild{}
	hg, err := g.BindParent(c)
	if err != nil {
		t.Fatalf("BindParent grandchild: %v", err)
	}

	_ = hc.Close()
	if err := p.Destroy(); !errors.Is(err, errs.ErrBug) {
		t.Errorf("Destroy with grandchild handle = %v, want Bug", err)
	}

	_ = hg.Close()
	if err := p.Destroy(); err != nil {
		t.Fatalf("Destroy after chain released: %v", err)
	}
}

func TestConcurrentRetainRelease(t *testing.T) {
	p := newParent()
	c := &child{}
	first, _ := c.BindParent(p)

	const n = 64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := c.Retain()
			if err != nil {
				t.Errorf("Retain: %v", err)
				return
			}
			if err := h.Close(); err != nil {
				t.Errorf("Close: %v", err)
			}
		}()
	}
	wg.Wait()

	_ = first.Close()
	if c.Refs() != 0 {
		t.Errorf("child refs = %d, want 0", c.Refs())
	}
	if err := p.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
}
