package script

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrParse = errors.New("parse error")

type Kind int

const (
	KindSkip Kind = iota
	KindDelay
	KindBarrier
	KindTargeted
	KindBroadcast
)

func (k Kind) String() string {
	switch k {
	case KindSkip:
		return "skip"
	case KindDelay:
		return "delay"
	case KindBarrier:
		return "await"
	case KindTargeted:
		return "targeted"
	case KindBroadcast:
		return "broadcast"
	}
	return "unknown"
}

// DefaultDelay is slept when a delay line has no usable number.
const DefaultDelay = time.Second

// Instruction is one classified script line.
type Instruction struct {
	Line     int // 1-based
	Kind     Kind
	Index    int           // KindTargeted
	Payload  string        // KindTargeted, KindBroadcast
	Blocking bool          // line contains '@'
	Delay    time.Duration // KindDelay
}

// LineError ties a failure to the script line that produced it.
type LineError struct {
	Line int
	Text string
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d %q: %v", e.Line, e.Text, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

type ParseOptions struct {
	// LegacyDelay reads the delay from the third single-space separated
	// field ("delay x 5", "delay  5") instead of the second ("delay 5").
	LegacyDelay bool
}

// Parse classifies every line of src. Lines that cannot be parsed are
// returned as errors and left out of the instruction list.
func Parse(src string, opts ParseOptions) ([]Instruction, []error) {
	var (
		out  []Instruction
		errs []error
	)

	for i, raw := range strings.Split(src, "\n") {
		ins, err := ParseLine(raw, opts)
		ins.Line = i + 1
		if err != nil {
			errs = append(errs, &LineError{Line: i + 1, Text: strings.TrimSpace(raw), Err: err})
			continue
		}
		out = append(out, ins)
	}

	return out, errs
}

// ParseLine classifies a single line.
func ParseLine(raw string, opts ParseOptions) (Instruction, error) {
	line := strings.TrimSpace(strings.TrimRight(raw, "\r"))

	switch {
	case line == "" || strings.HasPrefix(line, "#"):
		return Instruction{Kind: KindSkip}, nil

	case strings.HasPrefix(line, "delay"):
		return Instruction{Kind: KindDelay, Delay: parseDelay(line, opts.LegacyDelay)}, nil

	case strings.HasPrefix(line, "await"):
		return Instruction{Kind: KindBarrier}, nil
	}

	blocking := strings.Contains(line, "@")

	if head, tail, ok := strings.Cut(line, ">"); ok {
		digits := Normalize(head, false)
		idx, err := strconv.Atoi(digits)
		if err != nil || idx < 0 {
			return Instruction{}, fmt.Errorf("%w: bad drone index %q", ErrParse, strings.TrimSpace(head))
		}
		return Instruction{
			Kind:     KindTargeted,
			Index:    idx,
			Payload:  strings.TrimSpace(Normalize(tail, true)),
			Blocking: blocking,
		}, nil
	}

	return Instruction{
		Kind:     KindBroadcast,
		Payload:  strings.TrimSpace(Normalize(line, true)),
		Blocking: blocking,
	}, nil
}

func parseDelay(line string, legacy bool) time.Duration {
	var arg string
	if legacy {
		// Single-space split, so "delay  5" still finds 5 in the third slot.
		if parts := strings.Split(line, " "); len(parts) > 2 {
			arg = parts[2]
		}
	} else if fields := strings.Fields(line); len(fields) > 1 {
		arg = fields[1]
	}

	n, err := strconv.ParseUint(arg, 10, 32)
	if err != nil {
		return DefaultDelay
	}
	return time.Duration(n) * time.Second
}

// Normalize keeps ASCII letters and digits, plus spaces when keepSpace is
// set. Everything else, including non-ASCII letters, is dropped.
func Normalize(s string, keepSpace bool) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			sb.WriteByte(c)
		case c == ' ' && keepSpace:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}
