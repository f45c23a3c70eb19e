// Package guest describes the guest configurations that are benchmarked and
// launches them under QEMU.
package guest

import (
	"fmt"
	"strings"
)

// Type selects the confidential computing mode of a guest.
type Type string

const (
	NoSEV Type = "nosev"
	SEV   Type = "sev"
	SEVES Type = "seves"
	SNP   Type = "snp"
)

// Types lists every known guest type in the default run order.
var Types = []Type{NoSEV, SEV, SEVES, SNP}

func (t Type) String() string {
	return string(t)
}

// ParseType accepts a guest type name, case-insensitively.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Types {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown guest type %q (want one of %s)", s, joinTypes(Types))
}

// ParseTypes parses a comma separated list such as "nosev,snp".
func ParseTypes(s string) ([]Type, error) {
	var types []Type
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		t, err := ParseType(part)
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	if len(types) == 0 {
		return nil, fmt.Errorf("no guest types given")
	}
	return types, nil
}

func joinTypes(types []Type) string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

// DefaultAxisMax bounds the time axis of every chart so images are comparable.
const DefaultAxisMax = 20_000_000

// Profile is the chart identity of one guest type.
type Profile struct {
	Title   string
	Output  string
	AxisMax uint64
}

// Table maps guest types to chart profiles.
type Table map[Type]Profile

// DefaultTable returns the stock titles and output paths under dir.
func DefaultTable(dir string) Table {
	if dir == "" {
		dir = "output"
	}
	return Table{
		NoSEV: {Title: "OVMF Phases without SEV", Output: dir + "/nosev.png", AxisMax: DefaultAxisMax},
		SEV:   {Title: "OVMF Phases with SEV", Output: dir + "/sev.png", AxisMax: DefaultAxisMax},
		SEVES: {Title: "OVMF Phases with SEV-ES", Output: dir + "/seves.png", AxisMax: DefaultAxisMax},
		SNP:   {Title: "OVMF Phases with SNP", Output: dir + "/snp.png", AxisMax: DefaultAxisMax},
	}
}

// Lookup returns the profile for t.
func (tbl Table) Lookup(t Type) (Profile, error) {
	p, ok := tbl[t]
	if !ok {
		return Profile{}, fmt.Errorf("no chart profile for guest type %q", t)
	}
	if p.Output == "" {
		return Profile{}, fmt.Errorf("chart profile for %q has no output path", t)
	}
	if p.AxisMax == 0 {
		p.AxisMax = DefaultAxisMax
	}
	return p, nil
}
