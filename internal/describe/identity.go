package describe

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/cuke/internal/pickle"
)

// EmptyName replaces empty display names.
const EmptyName = "EMPTY_NAME"

// Identity is the stable, serializable key of a description node. Equal
// source locations yield equal identities across runs.
type Identity interface {
	String() string
	MarshalText() ([]byte, error)
	identity()
}

// PickleID identifies a scenario by URI and primary line.
type PickleID struct {
	URI  string
	Line int
}

// NewPickleID returns the identity of p.
func NewPickleID(p *pickle.Pickle) PickleID {
	return PickleID{URI: p.URI, Line: p.Line()}
}

func (PickleID) identity() {}

// String formats the identity as uri:line.
func (id PickleID) String() string {
	return fmt.Sprintf("%s:%d", id.URI, id.Line)
}

// MarshalText implements encoding.TextMarshaler.
func (id PickleID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// PickleStepID identifies a step by URI, the primary line of its scenario
// and the line of the step text.
type PickleStepID struct {
	URI        string
	PickleLine int
	StepLine   int
}

// NewPickleStepID returns the identity of step within p.
func NewPickleStepID(p *pickle.Pickle, step *pickle.Step) PickleStepID {
	return PickleStepID{URI: p.URI, PickleLine: p.Line(), StepLine: step.Line()}
}

func (PickleStepID) identity() {}

// String formats the identity as uri:pickleLine:stepLine.
func (id PickleStepID) String() string {
	return fmt.Sprintf("%s:%d:%d", id.URI, id.PickleLine, id.StepLine)
}

// MarshalText implements encoding.TextMarshaler.
func (id PickleStepID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

var identitySuffix = regexp.MustCompile(`^(.+?):(\d+)(?::(\d+))?$`)

// ParseIdentity parses the String form of a PickleID or PickleStepID.
func ParseIdentity(s string) (Identity, error) {
	m := identitySuffix.FindStringSubmatch(s)
	if m == nil {
		return nil, fmt.Errorf("invalid identity %q: want uri:line or uri:line:line", s)
	}
	line, err := strconv.Atoi(m[2])
	if err != nil {
		return nil, fmt.Errorf("invalid identity %q: %w", s, err)
	}
	if m[3] == "" {
		return PickleID{URI: m[1], Line: line}, nil
	}
	stepLine, err := strconv.Atoi(m[3])
	if err != nil {
		return nil, fmt.Errorf("invalid identity %q: %w", s, err)
	}
	return PickleStepID{URI: m[1], PickleLine: line, StepLine: stepLine}, nil
}

// Sanitize makes name usable as a file name: the name is NFC-normalised and
// every rune outside [A-Za-z0-9_] becomes an underscore. The empty name
// becomes EmptyName. Sanitize(Sanitize(x)) == Sanitize(x).
func Sanitize(name string) string {
	if name == "" {
		return EmptyName
	}
	name = norm.NFC.String(name)
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// CreateName returns the display name for name.
func CreateName(name string, filenameCompatible bool) string {
	if name == "" {
		return EmptyName
	}
	if filenameCompatible {
		return Sanitize(name)
	}
	return name
}
