package units

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"
)

// prefix is an SI scale prefix, accepted either spelled out or as a symbol.
type prefix struct {
	text   string
	factor float64
}

var prefixes = func() []prefix {
	p := []prefix{
		{"yotta", 1e24}, {"Y", 1e24},
		{"zetta", 1e21}, {"Z", 1e21},
		{"exa", 1e18}, {"E", 1e18},
		{"peta", 1e15}, {"P", 1e15},
		{"tera", 1e12}, {"T", 1e12},
		{"giga", 1e9}, {"G", 1e9},
		{"mega", 1e6}, {"M", 1e6},
		{"kilo", 1e3}, {"k", 1e3},
		{"hecto", 1e2}, {"h", 1e2},
		{"deka", 1e1}, {"deca", 1e1}, {"da", 1e1},
		{"deci", 1e-1}, {"d", 1e-1},
		{"centi", 1e-2}, {"c", 1e-2},
		{"milli", 1e-3}, {"m", 1e-3},
		{"micro", 1e-6}, {"u", 1e-6}, {"μ", 1e-6},
		{"nano", 1e-9}, {"n", 1e-9},
		{"pico", 1e-12}, {"p", 1e-12},
		{"femto", 1e-15}, {"f", 1e-15},
		{"atto", 1e-18}, {"a", 1e-18},
		{"zepto", 1e-21}, {"z", 1e-21},
		{"yocto", 1e-24}, {"y", 1e-24},
	}
	// Longest match first so "da" wins over "d" and "milli" over "m".
	sort.SliceStable(p, func(i, j int) bool { return len(p[i].text) > len(p[j].text) })
	return p
}()

type entry struct {
	unit   Unit
	plural bool
}

type table struct {
	entries map[string]entry
}

func (t *table) lookup(name string) (Unit, bool) {
	if u, ok := t.lookupBare(name); ok {
		return u, true
	}
	for _, p := range prefixes {
		if len(name) <= len(p.text) || !strings.HasPrefix(name, p.text) {
			continue
		}
		if u, ok := t.lookupBare(name[len(p.text):]); ok {
			return multiply(dimensionless(p.factor), u), true
		}
	}
	return Unit{}, false
}

func (t *table) lookupBare(name string) (Unit, bool) {
	if e, ok := t.entries[name]; ok {
		return e.unit, true
	}
	for _, suffix := range []string{"s", "es"} {
		stem, ok := strings.CutSuffix(name, suffix)
		if !ok || stem == "" {
			continue
		}
		if e, ok := t.entries[stem]; ok && e.plural {
			return e.unit, true
		}
	}
	return Unit{}, false
}

// parseTable reads a unit table. Each definition may only refer to units
// defined on earlier lines.
func parseTable(r io.Reader) (*table, error) {
	t := &table{entries: make(map[string]entry)}
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 3 {
			return nil, syntaxf("line %d: want \"name flag definition\"", lineNo)
		}
		name, flag := fields[0], fields[1]
		if flag != "P" && flag != "S" {
			return nil, syntaxf("line %d: flag %q is not P or S", lineNo, flag)
		}
		if _, dup := t.entries[name]; dup {
			return nil, syntaxf("line %d: %q defined twice", lineNo, name)
		}
		u, err := t.define(fields[2:])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		t.entries[name] = entry{unit: u, plural: flag == "P"}
	}
	if err := sc.Err(); err != nil {
		return nil, &Error{Kind: ErrIO, Msg: err.Error()}
	}
	if len(t.entries) == 0 {
		return nil, syntaxf("empty unit table")
	}
	return t, nil
}

func (t *table) define(def []string) (Unit, error) {
	if def[0] != "base" {
		return t.scan(strings.Join(def, " "))
	}
	if len(def) != 2 {
		return Unit{}, syntaxf("base definition needs one quantity")
	}
	for i, q := range baseNames {
		if q == def[1] {
			u := Unit{Factor: 1}
			u.Power[i] = 1
			return u, nil
		}
	}
	return Unit{}, syntaxf("unknown base quantity %q", def[1])
}
