package driver

import (
	"context"
	"sync"
)

// Fake is a scripted driver for tests. Behavior is overridden per test via
// the function fields; unset fields use permissive defaults. Fake records
// every created and deleted session id.
type Fake struct {
	ConstraintSet ConstraintSet

	CreateFn  func(ctx context.Context, sessionID string, caps map[string]any) (map[string]any, error)
	DeleteFn  func(ctx context.Context, sessionID string) error
	ExecuteFn func(ctx context.Context, sessionID, command string, params map[string]any) (any, error)

	mu         sync.Mutex
	created    []string
	deleted    []string
	shutdownFn func(sessionID string, err error)
}

var _ Driver = (*Fake)(nil)
var _ ShutdownNotifier = (*Fake)(nil)

func (f *Fake) Constraints() ConstraintSet {
	return f.ConstraintSet
}

func (f *Fake) CreateSession(ctx context.Context, sessionID string, caps map[string]any) (map[string]any, error) {
	f.mu.Lock()
	f.created = append(f.created, sessionID)
	f.mu.Unlock()
	if f.CreateFn != nil {
		return f.CreateFn(ctx, sessionID, caps)
	}
	return nil, nil
}

func (f *Fake) DeleteSession(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	f.deleted = append(f.deleted, sessionID)
	f.mu.Unlock()
	if f.DeleteFn != nil {
		return f.DeleteFn(ctx, sessionID)
	}
	return nil
}

func (f *Fake) ExecuteCommand(ctx context.Context, sessionID, command string, params map[string]any) (any, error) {
	if f.ExecuteFn != nil {
		return f.ExecuteFn(ctx, sessionID, command, params)
	}
	return nil, nil
}

func (f *Fake) OnUnexpectedShutdown(fn func(sessionID string, err error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shutdownFn = fn
}

// ReportShutdown simulates a fatal driver failure for the session.
func (f *Fake) ReportShutdown(sessionID string, err error) {
	f.mu.Lock()
	fn := f.shutdownFn
	f.mu.Unlock()
	if fn != nil {
		fn(sessionID, err)
	}
}

// Created returns the session ids passed to CreateSession, in order.
func (f *Fake) Created() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.created))
	copy(out, f.created)
	return out
}

// Deleted returns the session ids passed to DeleteSession, in order.
func (f *Fake) Deleted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.deleted))
	copy(out, f.deleted)
	return out
}

// ProxyFake is a Fake that also answers the proxying surface.
type ProxyFake struct {
	Fake

	CanProxyValue    bool
	ProxyActiveValue bool
	AvoidList        [][]string
	Info             *ProxyInfo
}

var _ Proxier = (*ProxyFake)(nil)

func (f *ProxyFake) CanProxy(sessionID string) bool    { return f.CanProxyValue }
func (f *ProxyFake) ProxyActive(sessionID string) bool { return f.ProxyActiveValue }

func (f *ProxyFake) GetProxyAvoidList(sessionID string) [][]string {
	return f.AvoidList
}

func (f *ProxyFake) ProxyInfo(sessionID string) *ProxyInfo {
	return f.Info
}
