// Package ident generates and parses the human-readable identifiers used
// for every commerce entity (quote requests, offers, bookings, invoices,
// payments and their satellites).
//
// All identifiers follow {PREFIX}-{CONTEXT_CODE}-{YYYYMMDD?}-{SUFFIX}. The
// context code may itself contain dashes (user codes such as PA-SMIT-ABCD,
// or a nested identifier for invoices and payments), so parsing is
// positional from both ends: the prefix is the first segment, the suffix
// the last, the date (when the kind carries one) the second to last, and
// everything in between is the context code.
package ident

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/Domenick1991/charterbooking/internal/apperr"
	"github.com/Domenick1991/charterbooking/internal/clock"
)

type Kind uint8

const (
	KindQuoteRequest Kind = iota + 1
	KindQuote
	KindInvoice
	KindFlight
	KindAircraft
	KindBooking
	KindPassenger
	KindClient
	KindPayment
	KindDocument
	KindETicket
)

const (
	alphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	dateLayout = "20060102"

	legacyInvoiceSuffix = 8
	maxUniqueAttempts   = 5
)

type layout struct {
	name   string
	prefix string
	dated  bool
	suffix int
	// legacy is an additional accepted suffix width, zero when none.
	legacy int
}

var layouts = map[Kind]layout{
	KindQuoteRequest: {name: "quote request", prefix: "QR", dated: true, suffix: 4},
	KindQuote:        {name: "quote", prefix: "QT", dated: true, suffix: 4},
	KindInvoice:      {name: "invoice", prefix: "INV", suffix: 4, legacy: legacyInvoiceSuffix},
	KindFlight:       {name: "flight", prefix: "FLT", dated: true, suffix: 4},
	KindAircraft:     {name: "aircraft", prefix: "AC", suffix: 4},
	KindBooking:      {name: "booking", prefix: "BK", dated: true, suffix: 4},
	KindPassenger:    {name: "passenger", prefix: "PAX", suffix: 4},
	KindClient:       {name: "client", prefix: "CL", suffix: 4},
	KindPayment:      {name: "payment", prefix: "PMT", dated: true, suffix: 2},
	KindDocument:     {name: "document", prefix: "DOC", dated: true, suffix: 4},
	KindETicket:      {name: "e-ticket", prefix: "ETKT", suffix: 4},
}

// Kinds lists every supported kind in declaration order.
func Kinds() []Kind {
	return []Kind{
		KindQuoteRequest, KindQuote, KindInvoice, KindFlight, KindAircraft, KindBooking,
		KindPassenger, KindClient, KindPayment, KindDocument, KindETicket,
	}
}

func (k Kind) String() string {
	if l, ok := layouts[k]; ok {
		return l.name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Prefix returns the identifier prefix of k, or "" for an unknown kind.
func (k Kind) Prefix() string { return layouts[k].prefix }

var (
	codePattern = regexp.MustCompile(`^[A-Z0-9]+(?:-[A-Z0-9]+)*$`)
	segPattern  = regexp.MustCompile(`^[A-Z0-9]+$`)
	patterns    = compilePatterns()
)

func compilePatterns() map[Kind]*regexp.Regexp {
	out := make(map[Kind]*regexp.Regexp, len(layouts))
	for k, l := range layouts {
		var b strings.Builder
		b.WriteString("^" + l.prefix + `-[A-Z0-9]+(?:-[A-Z0-9]+)*`)
		if l.dated {
			b.WriteString(`-\d{4}(?:0[1-9]|1[0-2])(?:0[1-9]|[12]\d|3[01])`)
		}
		if l.legacy > 0 {
			fmt.Fprintf(&b, `-(?:[A-Z0-9]{%d}|[A-Z0-9]{%d})$`, l.suffix, l.legacy)
		} else {
			fmt.Fprintf(&b, `-[A-Z0-9]{%d}$`, l.suffix)
		}
		out[k] = regexp.MustCompile(b.String())
	}
	return out
}

// Context carries the inputs of a generated identifier.
type Context struct {
	// Code is the operator/user/agent code, or the referenced entity's own
	// identifier for invoices and payments.
	Code string
	// LinkedID, for quotes, is the originating request id; its last four
	// alphanumerics become the suffix.
	LinkedID string
	// Date overrides the clock's current date for dated kinds.
	Date time.Time
}

// Fields is the parsed form of an identifier.
type Fields struct {
	Kind   Kind
	Prefix string
	Code   string
	Date   time.Time
	Suffix string
	// Legacy is set for identifiers in a superseded format (8-char invoice
	// suffixes).
	Legacy bool
}

// HasDate reports whether the identifier carried a date segment.
func (f Fields) HasDate() bool { return !f.Date.IsZero() }

type Registry struct {
	clock clock.Clock
	rand  io.Reader
}

type Option func(*Registry)

// WithRandom replaces the crypto/rand source used for suffixes.
func WithRandom(r io.Reader) Option {
	return func(reg *Registry) {
		reg.rand = r
	}
}

func New(c clock.Clock, opts ...Option) *Registry {
	if c == nil {
		c = clock.Real{}
	}
	r := &Registry{clock: c, rand: rand.Reader}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Generate builds a new identifier of the given kind.
func (r *Registry) Generate(kind Kind, c Context) (string, error) {
	l, ok := layouts[kind]
	if !ok {
		return "", apperr.MalformedIdentifier("generate identifier", "unknown kind %s", kind)
	}
	return r.generate(kind, l, l.suffix, c)
}

// GenerateLegacyInvoice builds an invoice identifier in the superseded
// 8-character suffix format. It exists for fixtures and for re-issuing
// references that must stay in the old shape.
func (r *Registry) GenerateLegacyInvoice(code string) (string, error) {
	return r.generate(KindInvoice, layouts[KindInvoice], legacyInvoiceSuffix, Context{Code: code})
}

func (r *Registry) generate(kind Kind, l layout, width int, c Context) (string, error) {
	code, err := NormalizeCode(c.Code)
	if err != nil {
		return "", err
	}

	parts := []string{l.prefix, code}
	if l.dated {
		d := c.Date
		if d.IsZero() {
			d = r.clock.Now()
		}
		parts = append(parts, d.UTC().Format(dateLayout))
	}

	suffix := ""
	if kind == KindQuote && c.LinkedID != "" {
		suffix = linkedSuffix(c.LinkedID, width)
	}
	if suffix == "" {
		suffix, err = r.randomSuffix(width)
		if err != nil {
			return "", err
		}
	}
	return strings.Join(append(parts, suffix), "-"), nil
}

// GenerateUnique repeats generation until exists reports the identifier as
// free. Callers that need uniqueness (aircraft registration) must still
// guard the subsequent create against a concurrent writer.
func (r *Registry) GenerateUnique(ctx context.Context, kind Kind, c Context, exists func(context.Context, string) (bool, error)) (string, error) {
	for i := 0; i < maxUniqueAttempts; i++ {
		id, err := r.Generate(kind, c)
		if err != nil {
			return "", err
		}
		taken, err := exists(ctx, id)
		if err != nil {
			return "", err
		}
		if !taken {
			return id, nil
		}
	}
	return "", apperr.Conflict("generate identifier", "no free %s identifier after %d attempts", kind, maxUniqueAttempts)
}

func (r *Registry) randomSuffix(n int) (string, error) {
	out := make([]byte, 0, n)
	buf := make([]byte, n*2)
	// 252 is the largest multiple of 36 below 256; higher bytes are
	// discarded to keep the distribution uniform.
	for len(out) < n {
		if _, err := io.ReadFull(r.rand, buf); err != nil {
			return "", fmt.Errorf("read random suffix: %w", err)
		}
		for _, b := range buf {
			if b >= 252 {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}

func linkedSuffix(id string, n int) string {
	var b strings.Builder
	for _, ch := range strings.ToUpper(id) {
		if (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') {
			b.WriteRune(ch)
		}
	}
	s := b.String()
	if len(s) < n {
		return ""
	}
	return s[len(s)-n:]
}

// NormalizeCode upper-cases a context code and checks its grammar.
func NormalizeCode(code string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(code))
	if !codePattern.MatchString(c) {
		return "", apperr.MalformedIdentifier("normalize code", "invalid context code %q", code)
	}
	return c, nil
}

// Parse splits id into its fields, failing with a MalformedIdentifier
// error when the segment count or any segment's shape is wrong.
func Parse(kind Kind, id string) (Fields, error) {
	const op = "parse identifier"
	l, ok := layouts[kind]
	if !ok {
		return Fields{}, apperr.MalformedIdentifier(op, "unknown kind %s", kind)
	}

	segs := strings.Split(id, "-")
	want := 3
	if l.dated {
		want++
	}
	if len(segs) < want {
		return Fields{}, apperr.MalformedIdentifier(op, "%s %q has %d segments, want at least %d", kind, id, len(segs), want)
	}
	if segs[0] != l.prefix {
		return Fields{}, apperr.MalformedIdentifier(op, "%s %q must start with %s", kind, id, l.prefix)
	}

	f := Fields{Kind: kind, Prefix: l.prefix}

	last := len(segs) - 1
	f.Suffix = segs[last]
	switch {
	case len(f.Suffix) == l.suffix:
	case l.legacy > 0 && len(f.Suffix) == l.legacy:
		f.Legacy = true
	default:
		return Fields{}, apperr.MalformedIdentifier(op, "%s %q has suffix of width %d", kind, id, len(f.Suffix))
	}
	if !segPattern.MatchString(f.Suffix) {
		return Fields{}, apperr.MalformedIdentifier(op, "%s %q suffix is not alphanumeric", kind, id)
	}

	end := last
	if l.dated {
		end--
		d, err := time.Parse(dateLayout, segs[end])
		if err != nil {
			return Fields{}, apperr.MalformedIdentifier(op, "%s %q has invalid date %q", kind, id, segs[end])
		}
		f.Date = d
	}

	for _, s := range segs[1:end] {
		if !segPattern.MatchString(s) {
			return Fields{}, apperr.MalformedIdentifier(op, "%s %q has invalid context segment %q", kind, id, s)
		}
	}
	f.Code = strings.Join(segs[1:end], "-")
	return f, nil
}

// Validate reports whether id matches the grammar of kind. Dated kinds
// also need a real calendar date, as in Parse.
func Validate(kind Kind, id string) bool {
	p, ok := patterns[kind]
	if !ok || !p.MatchString(id) {
		return false
	}
	if !layouts[kind].dated {
		return true
	}
	segs := strings.Split(id, "-")
	_, err := time.Parse(dateLayout, segs[len(segs)-2])
	return err == nil
}
