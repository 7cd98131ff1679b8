// Package condition defines the contract between no-doze and the external
// plugins that decide whether the host should stay awake.
//
// The plugins themselves (Plex, qBittorrent, sshd, active-process...) are
// out of scope here; this package only fixes the shape a plugin must have
// and the registrar it registers itself with.
package condition

import "time"

// InhibitingCondition is a single thing worth keeping the host awake for.
// DoesInhibit must return in well under a millisecond; it is polled on
// every scheduled tick and again, unscheduled, during a last-gasp check.
type InhibitingCondition interface {
	Name() string
	Period() time.Duration
	DoesInhibit() bool
}

// Registrar is the contract a plugin's register(registrar) function is
// handed at discovery time. It survives regardless of whether discovery is
// a directory scan, a compiled-in registry, or static initializers.
type Registrar interface {
	Accept(InhibitingCondition)
}

// StaticRegistrar is the simplest Registrar: an in-memory list of every
// condition passed to Accept, whether by static initializers or by
// Discover's directory scan.
type StaticRegistrar struct {
	conditions []InhibitingCondition
}

// NewStaticRegistrar returns an empty registrar ready to accept conditions.
func NewStaticRegistrar() *StaticRegistrar {
	return &StaticRegistrar{}
}

// Accept implements Registrar.
func (r *StaticRegistrar) Accept(c InhibitingCondition) {
	r.conditions = append(r.conditions, c)
}

// All returns every condition accepted so far, in registration order.
func (r *StaticRegistrar) All() []InhibitingCondition {
	out := make([]InhibitingCondition, len(r.conditions))
	copy(out, r.conditions)
	return out
}
