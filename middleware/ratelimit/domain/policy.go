package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// CatchAllPattern casa qualquer rota sem política mais específica.
const CatchAllPattern = "*"

// Policy limita MaxRequests por Window para um padrão de rota.
type Policy struct {
	RoutePattern string
	MaxRequests  int
	Window       time.Duration
	// Message opcional usada no corpo do 429.
	Message string
}

func (p Policy) Validate() error {
	if strings.TrimSpace(p.RoutePattern) == "" {
		return fmt.Errorf("%w: route pattern is required", ErrInvalidPolicy)
	}
	if p.MaxRequests <= 0 {
		return fmt.Errorf("%w: %s: max_requests must be > 0, got %d", ErrInvalidPolicy, p.RoutePattern, p.MaxRequests)
	}
	if p.Window <= 0 {
		return fmt.Errorf("%w: %s: window must be > 0, got %s", ErrInvalidPolicy, p.RoutePattern, p.Window)
	}
	// Janela em segundos inteiros. Um "window: 60" sem unidade vira 60ns e desligaria o limite.
	if p.Window < time.Second || p.Window%time.Second != 0 {
		return fmt.Errorf("%w: %s: window must be a whole number of seconds, got %s", ErrInvalidPolicy, p.RoutePattern, p.Window)
	}
	return nil
}

// Presets nomeados, usados pela config (ratelimit.policies[].preset).
var presets = map[string]Policy{
	"strict":   {MaxRequests: 10, Window: time.Minute},
	"moderate": {MaxRequests: 30, Window: time.Minute},
	"relaxed":  {MaxRequests: 100, Window: time.Minute},
	"auth": {
		MaxRequests: 5,
		Window:      5 * time.Minute,
		Message:     "Too many authentication attempts. Please try again in 5 minutes.",
	},
}

// Preset devolve a política nomeada aplicada ao padrão informado.
func Preset(name, routePattern string) (Policy, error) {
	p, ok := presets[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Policy{}, fmt.Errorf("%w: unknown preset %q", ErrInvalidPolicy, name)
	}
	p.RoutePattern = routePattern
	return p, nil
}

func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PolicySet é imutável depois de NewPolicySet.
//
// Ordem de busca: padrão exato, maior prefixo terminado em "/*", depois "*".
type PolicySet struct {
	exact    map[string]Policy
	prefixes []Policy // ordenado do prefixo mais longo para o mais curto
	catchAll *Policy
	ordered  []Policy
}

func NewPolicySet(policies ...Policy) (PolicySet, error) {
	set := PolicySet{exact: make(map[string]Policy, len(policies))}
	seen := make(map[string]struct{}, len(policies))

	for _, p := range policies {
		p.RoutePattern = strings.TrimSpace(p.RoutePattern)
		if err := p.Validate(); err != nil {
			return PolicySet{}, err
		}
		if _, dup := seen[p.RoutePattern]; dup {
			return PolicySet{}, fmt.Errorf("%w: duplicate route pattern %q", ErrInvalidPolicy, p.RoutePattern)
		}
		seen[p.RoutePattern] = struct{}{}
		set.ordered = append(set.ordered, p)

		switch {
		case p.RoutePattern == CatchAllPattern:
			cp := p
			set.catchAll = &cp
		case strings.HasSuffix(p.RoutePattern, "/*"):
			set.prefixes = append(set.prefixes, p)
			// chi também reporta padrões com "/*", então o exato precisa casar.
			set.exact[p.RoutePattern] = p
		default:
			set.exact[p.RoutePattern] = p
		}
	}

	sort.SliceStable(set.prefixes, func(i, j int) bool {
		return len(set.prefixes[i].RoutePattern) > len(set.prefixes[j].RoutePattern)
	})
	return set, nil
}

// Match resolve a política para uma rota (padrão chi ou path cru).
func (s PolicySet) Match(route string) (Policy, bool) {
	if p, ok := s.exact[route]; ok {
		return p, true
	}
	for _, p := range s.prefixes {
		prefix := strings.TrimSuffix(p.RoutePattern, "*")
		if strings.HasPrefix(route, prefix) || route == strings.TrimSuffix(prefix, "/") {
			return p, true
		}
	}
	if s.catchAll != nil {
		return *s.catchAll, true
	}
	return Policy{}, false
}

// Policies devolve uma cópia na ordem de configuração.
func (s PolicySet) Policies() []Policy {
	out := make([]Policy, len(s.ordered))
	copy(out, s.ordered)
	return out
}

func (s PolicySet) Len() int { return len(s.ordered) }

// FailurePolicy decide o que fazer quando o Counter Store não responde.
// O valor zero é inválido: a escolha precisa ser explícita.
type FailurePolicy int

const (
	FailOpen FailurePolicy = iota + 1
	FailClosed
)

func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "open", "fail-open", "fail_open":
		return FailOpen, nil
	case "closed", "fail-closed", "fail_closed":
		return FailClosed, nil
	default:
		return 0, fmt.Errorf("unknown failure policy %q (want open or closed)", s)
	}
}

func (f FailurePolicy) Valid() bool {
	return f == FailOpen || f == FailClosed
}

func (f FailurePolicy) String() string {
	switch f {
	case FailOpen:
		return "open"
	case FailClosed:
		return "closed"
	default:
		return "unset"
	}
}

func (f FailurePolicy) MarshalText() ([]byte, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("invalid failure policy %d", int(f))
	}
	return []byte(f.String()), nil
}

func (f *FailurePolicy) UnmarshalText(text []byte) error {
	parsed, err := ParseFailurePolicy(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}
