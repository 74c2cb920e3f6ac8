package integrators

import (
	"sort"
	"strings"

	"github.com/alaweimm90/SpinCirc/internal/spin"
)

// Scheme name aliases. Both RK45 spellings resolve to the Dormand-Prince
// pair, which is the scheme its family name usually refers to.
var schemes = map[string]func() spin.Integrator{
	"euler":          func() spin.Integrator { return NewEuler() },
	"heun":           func() spin.Integrator { return NewHeun() },
	"rk4":            func() spin.Integrator { return NewRK4() },
	"rk45":           func() spin.Integrator { return NewDormandPrince() },
	"dp54":           func() spin.Integrator { return NewDormandPrince() },
	"dormand-prince": func() spin.Integrator { return NewDormandPrince() },
}

// New returns a fresh integrator for the named scheme. Names are
// case-insensitive.
func New(name string) (spin.Integrator, error) {
	mk, ok := schemes[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, spin.Invalid("scheme", "unknown integrator %q (have %s)", name, strings.Join(Names(), ", "))
	}
	return mk(), nil
}

// Names lists the recognized scheme names in sorted order.
func Names() []string {
	names := make([]string, 0, len(schemes))
	for n := range schemes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
