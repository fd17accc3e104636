package lifetime

import (
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/acqkit/acqkit-go/pkg/errs"
)

// Handle is one outstanding reference to an owned entity. Handles are
// closed exactly once. An application-owned entity cannot be destroyed
// while handles on it are outstanding; closing the last handle of a
// parent-owned entity releases its pin on the parent.
type Handle struct {
	release func()
	closed  atomic.Bool
}

// Close releases the handle. Closing an already-closed handle is a Bug.
func (h *Handle) Close() error {
	if h == nil {
		return errs.Bugf("lifetime.Handle.Close", "nil handle")
	}
	if !h.closed.CompareAndSwap(false, true) {
		return errs.Bugf("lifetime.Handle.Close", "handle closed twice")
	}
	h.release()
	return nil
}

// Owner is implemented by entities that can hand out handles to
// themselves. Both AppOwned and ParentOwned satisfy it, so parent-owned
// entities can themselves parent further children.
type Owner interface {
	Retain() (*Handle, error)
}

// AppOwned is embedded by entities whose lifetime the application
// controls: the entity lives until the application destroys it, and
// outstanding handles (children pinning their parent, containers holding
// members) block destruction. The zero value is ready to use.
type AppOwned struct {
	mu         sync.Mutex
	refs       int
	destroyed  bool
	destructor func()
}

// SetDestructor installs the function run when the entity is destroyed.
func (a *AppOwned) SetDestructor(fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.destructor = fn
}

// Retain returns a new handle sharing this entity. Retaining a destroyed
// entity is a Bug.
func (a *AppOwned) Retain() (*Handle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed {
		return nil, errs.Bugf("lifetime.Retain", "entity already destroyed")
	}
	a.refs++
	return &Handle{release: a.releaseOne}, nil
}

func (a *AppOwned) releaseOne() {
	a.mu.Lock()
	a.refs--
	a.mu.Unlock()
}

// Destroy runs the destructor and marks the entity dead. Destroying an
// entity with outstanding handles, or twice, is a Bug.
func (a *AppOwned) Destroy() error {
	a.mu.Lock()
	if a.destroyed {
		a.mu.Unlock()
		return errs.Bugf("lifetime.Destroy", "entity already destroyed")
	}
	if a.refs > 0 {
		a.mu.Unlock()
		return errs.Bugf("lifetime.Destroy", "%d handles still outstanding", a.refs)
	}
	a.destroyed = true
	destructor := a.destructor
	a.mu.Unlock()

	if destructor != nil {
		destructor()
	}
	return nil
}

// Destroyed reports whether the entity has been destroyed.
func (a *AppOwned) Destroyed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.destroyed
}

// Refs returns the number of outstanding handles.
func (a *AppOwned) Refs() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.refs
}

// ParentOwned is embedded by entities whose storage is owned by a parent
// entity of type P. The zero value is an unbound child.
type ParentOwned[P Owner] struct {
	mu     sync.Mutex
	parent P
	bound  bool
	pin    *Handle // pin on the parent; non-nil while child handles exist
	refs   int
}

// SetParent records the child's parent without pinning it. It is called
// once, when the child is created inside its parent; the pin is only
// taken when the first handle is requested. Setting a parent twice, or a
// nil parent, is a Bug.
func (c *ParentOwned[P]) SetParent(parent P) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setParentLocked(parent)
}

func (c *ParentOwned[P]) setParentLocked(parent P) error {
	if c.bound {
		return errs.Bugf("lifetime.SetParent", "child already bound")
	}
	if isNil(parent) {
		return errs.Bugf("lifetime.SetParent", "nil parent")
	}
	c.parent = parent
	c.bound = true
	return nil
}

// BindParent binds the child to its parent and returns the first handle,
// pinning the parent. Binding twice, or to a nil or destroyed parent, is
// a Bug and leaves the child unbound.
func (c *ParentOwned[P]) BindParent(parent P) (*Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.setParentLocked(parent); err != nil {
		return nil, err
	}
	h, err := c.retainLocked()
	if err != nil {
		// No partial state change: a bind to a destroyed parent leaves
		// the child unbound.
		c.bound = false
		var zero P
		c.parent = zero
		return nil, err
	}
	return h, nil
}

// Retain returns a new handle sharing this child. The first handle after
// all previous ones were closed re-pins the parent; handing out further
// handles reuses the existing pin. Retaining an unbound child is a Bug.
func (c *ParentOwned[P]) Retain() (*Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retainLocked()
}

func (c *ParentOwned[P]) retainLocked() (*Handle, error) {
	if !c.bound {
		return nil, errs.Bugf("lifetime.Retain", "child not bound to a parent")
	}
	if c.refs == 0 {
		pin, err := c.parent.Retain()
		if err != nil {
			return nil, errs.Wrap(errs.Bug, "lifetime.Retain", err)
		}
		c.pin = pin
	}
	c.refs++
	return &Handle{release: c.releaseOne}, nil
}

func (c *ParentOwned[P]) releaseOne() {
	c.mu.Lock()
	c.refs--
	var pin *Handle
	if c.refs == 0 {
		pin = c.pin
		c.pin = nil
	}
	c.mu.Unlock()

	if pin != nil {
		// Unpinning may cascade into the parent's destructor; run it
		// outside the child lock.
		_ = pin.Close()
	}
}

// Parent returns the bound parent without affecting ownership state.
// Reading the parent of an unbound child is a Bug.
func (c *ParentOwned[P]) Parent() (P, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.bound {
		var zero P
		return zero, errs.Bugf("lifetime.Parent", "child not bound to a parent")
	}
	return c.parent, nil
}

// Bound reports whether the child has been bound to a parent.
func (c *ParentOwned[P]) Bound() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bound
}

// Refs returns the number of outstanding child handles.
func (c *ParentOwned[P]) Refs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refs
}

// isNil reports whether v is nil, including a typed nil pointer boxed in
// the Owner interface.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}
