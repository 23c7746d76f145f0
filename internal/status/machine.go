// Package status holds the status state machines of the commerce entities
// and the tables that map legacy status strings onto current states.
//
// Everything here is pure: callers load the entity, ask for the next
// status, and are responsible for persisting it with a concurrency check.
package status

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Domenick1991/charterbooking/internal/apperr"
)

type Kind string

const (
	KindQuoteRequest Kind = "quoteRequest"
	KindQuote        Kind = "quote"
	KindBooking      Kind = "booking"
	KindInvoice      Kind = "invoice"
	KindPayment      Kind = "payment"
)

type Event string

const (
	EventOfferReceived  Event = "offer-received"
	EventOffersViewed   Event = "offers-viewed"
	EventAcknowledge    Event = "acknowledge"
	EventAccept         Event = "accept"
	EventReject         Event = "reject"
	EventExpire         Event = "expire"
	EventPartialPayment Event = "partial-payment"
	EventFullPayment    Event = "full-payment"
	EventClientReady    Event = "client-ready"
	EventFlightReady    Event = "flight-ready"
	EventArchive        Event = "archive"
	EventCancel         Event = "cancel"
	EventCredit         Event = "credit"
	EventRefund         Event = "refund"
	EventComplete       Event = "complete"
	EventFail           Event = "fail"
)

var (
	// ErrRejected marks a transition the table does not permit.
	ErrRejected = errors.New("transition rejected")
	// ErrUnknownStatus marks a status string that is neither a current
	// state nor a known legacy value.
	ErrUnknownStatus = errors.New("unknown status")
)

// Facts are the data-dependent preconditions consulted by guarded
// transitions.
type Facts struct {
	FullyPaid         bool
	ManifestComplete  bool
	ChecklistComplete bool
}

// guard returns a non-empty reason when entering a state is not allowed.
type guard func(Facts) string

// Machine is the transition table of one entity kind.
type Machine[S ~string] struct {
	kind     Kind
	states   []S
	terminal map[S]bool
	edges    map[S]map[Event]S
	guards   map[S]guard
	legacy   map[string]S
}

type machineDef[S ~string] struct {
	states   []S
	terminal []S
	edges    map[S]map[Event]S
	guards   map[S]guard
	legacy   map[string]S
}

// newMachine builds a machine and panics when a table references a state
// outside the closed set, so a bad table fails at package init.
func newMachine[S ~string](kind Kind, def machineDef[S]) *Machine[S] {
	m := &Machine[S]{
		kind:     kind,
		states:   def.states,
		terminal: make(map[S]bool, len(def.terminal)),
		edges:    def.edges,
		guards:   def.guards,
		legacy:   def.legacy,
	}
	for _, s := range def.terminal {
		m.mustKnow(s, "terminal")
		m.terminal[s] = true
	}
	for from, evs := range def.edges {
		m.mustKnow(from, "edge source")
		for _, to := range evs {
			m.mustKnow(to, "edge target")
		}
	}
	for to := range def.guards {
		m.mustKnow(to, "guard")
	}
	for v, to := range def.legacy {
		m.mustKnow(to, "legacy target of "+v)
	}
	return m
}

func (m *Machine[S]) mustKnow(s S, role string) {
	if !m.Valid(string(s)) {
		panic(fmt.Sprintf("status: %s table: %s %q is not a %s state", m.kind, role, s, m.kind))
	}
}

func (m *Machine[S]) Kind() Kind { return m.kind }

// States returns the closed set of current states.
func (m *Machine[S]) States() []S {
	out := make([]S, len(m.states))
	copy(out, m.states)
	return out
}

func (m *Machine[S]) Valid(s string) bool {
	for _, st := range m.states {
		if string(st) == s {
			return true
		}
	}
	return false
}

func (m *Machine[S]) IsTerminal(s S) bool { return m.terminal[s] }

// Parse accepts only current states.
func (m *Machine[S]) Parse(s string) (S, error) {
	if !m.Valid(s) {
		return "", apperr.Wrap(apperr.KindValidation, "parse status", fmt.Errorf("%w: %s %q", ErrUnknownStatus, m.kind, s))
	}
	return S(s), nil
}

// Next returns the state reached from cur on ev. A transition the table
// does not list, or whose guard fails, is an InvalidState error wrapping
// ErrRejected.
func (m *Machine[S]) Next(cur S, ev Event, facts Facts) (S, error) {
	const op = "next status"
	if !m.Valid(string(cur)) {
		return "", apperr.Wrap(apperr.KindValidation, op, fmt.Errorf("%w: %s %q", ErrUnknownStatus, m.kind, cur))
	}
	to, ok := m.edges[cur][ev]
	if !ok {
		return "", apperr.Wrap(apperr.KindInvalidState, op, fmt.Errorf("%w: %s %q on %q", ErrRejected, m.kind, cur, ev))
	}
	if to != cur {
		if g := m.guards[to]; g != nil {
			if reason := g(facts); reason != "" {
				return "", apperr.Wrap(apperr.KindInvalidState, op, fmt.Errorf("%w: %s %q on %q: %s", ErrRejected, m.kind, cur, ev, reason))
			}
		}
	}
	return to, nil
}

// Can reports whether Next would succeed.
func (m *Machine[S]) Can(cur S, ev Event, facts Facts) bool {
	_, err := m.Next(cur, ev, facts)
	return err == nil
}

// Normalize maps a stored status onto a current state. Current states map
// to themselves; unknown values are rejected rather than defaulted.
func (m *Machine[S]) Normalize(v string) (S, error) {
	if m.Valid(v) {
		return S(v), nil
	}
	if to, ok := m.legacy[v]; ok {
		return to, nil
	}
	return "", apperr.Wrap(apperr.KindValidation, "normalize status", fmt.Errorf("%w: %s %q", ErrUnknownStatus, m.kind, v))
}

// IsLegacy reports whether v is a known legacy value rather than a
// current state.
func (m *Machine[S]) IsLegacy(v string) bool {
	_, ok := m.legacy[v]
	return ok && !m.Valid(v)
}

// LegacyValues lists the legacy strings in sorted order.
func (m *Machine[S]) LegacyValues() []string {
	out := make([]string, 0, len(m.legacy))
	for v := range m.legacy {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// table erases the state type so machines can be dispatched by Kind.
type table interface {
	next(cur string, ev Event, facts Facts) (string, error)
	normalize(v string) (string, error)
	valid(v string) bool
	legacyValues() []string
}

func (m *Machine[S]) next(cur string, ev Event, facts Facts) (string, error) {
	s, err := m.Next(S(cur), ev, facts)
	return string(s), err
}

func (m *Machine[S]) normalize(v string) (string, error) {
	s, err := m.Normalize(v)
	return string(s), err
}

func (m *Machine[S]) valid(v string) bool    { return m.Valid(v) }
func (m *Machine[S]) legacyValues() []string { return m.LegacyValues() }
