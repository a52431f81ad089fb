package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPolicySet_RejectsInvalidPolicies(t *testing.T) {
	cases := map[string]Policy{
		"zero limit":      {RoutePattern: "/login", MaxRequests: 0, Window: time.Minute},
		"negative limit":  {RoutePattern: "/login", MaxRequests: -1, Window: time.Minute},
		"zero window":     {RoutePattern: "/login", MaxRequests: 5, Window: 0},
		"negative window": {RoutePattern: "/login", MaxRequests: 5, Window: -time.Second},
		"sub-second":      {RoutePattern: "/login", MaxRequests: 5, Window: 60 * time.Nanosecond},
		"fractional":      {RoutePattern: "/login", MaxRequests: 5, Window: 1500 * time.Millisecond},
		"empty pattern":   {RoutePattern: "  ", MaxRequests: 5, Window: time.Minute},
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewPolicySet(p)
			require.ErrorIs(t, err, ErrInvalidPolicy)
		})
	}
}

func TestNewPolicySet_RejectsDuplicatePattern(t *testing.T) {
	_, err := NewPolicySet(
		Policy{RoutePattern: "/login", MaxRequests: 5, Window: time.Minute},
		Policy{RoutePattern: " /login ", MaxRequests: 10, Window: time.Minute},
	)
	require.ErrorIs(t, err, ErrInvalidPolicy)
}

func TestPolicySet_MatchOrder(t *testing.T) {
	set, err := NewPolicySet(
		Policy{RoutePattern: "*", MaxRequests: 100, Window: time.Minute},
		Policy{RoutePattern: "/api/*", MaxRequests: 30, Window: time.Minute},
		Policy{RoutePattern: "/api/admin/*", MaxRequests: 10, Window: time.Minute},
		Policy{RoutePattern: "/login", MaxRequests: 5, Window: 5 * time.Minute},
	)
	require.NoError(t, err)

	cases := map[string]string{
		"/login":          "/login",
		"/api/items":      "/api/*",
		"/api":            "/api/*",
		"/api/admin/user": "/api/admin/*",
		"/api/*":          "/api/*",
		"/":               "*",
		"/profile":        "*",
	}
	for route, want := range cases {
		p, ok := set.Match(route)
		require.True(t, ok, route)
		assert.Equal(t, want, p.RoutePattern, route)
	}
}

func TestPolicySet_NoCatchAllDoesNotMatch(t *testing.T) {
	set, err := NewPolicySet(Policy{RoutePattern: "/login", MaxRequests: 5, Window: time.Minute})
	require.NoError(t, err)

	_, ok := set.Match("/register")
	assert.False(t, ok)
	assert.Equal(t, 1, set.Len())
}

func TestPolicySet_PoliciesReturnsCopy(t *testing.T) {
	set, err := NewPolicySet(Policy{RoutePattern: "/login", MaxRequests: 5, Window: time.Minute})
	require.NoError(t, err)

	ps := set.Policies()
	ps[0].MaxRequests = 1000

	p, _ := set.Match("/login")
	assert.Equal(t, 5, p.MaxRequests)
}

func TestPreset(t *testing.T) {
	p, err := Preset("AUTH", "/login")
	require.NoError(t, err)
	assert.Equal(t, "/login", p.RoutePattern)
	assert.Equal(t, 5, p.MaxRequests)
	assert.Equal(t, 5*time.Minute, p.Window)
	assert.NotEmpty(t, p.Message)

	_, err = Preset("nope", "/x")
	require.ErrorIs(t, err, ErrInvalidPolicy)

	assert.Equal(t, []string{"auth", "moderate", "relaxed", "strict"}, PresetNames())
}

func TestParseFailurePolicy(t *testing.T) {
	f, err := ParseFailurePolicy("open")
	require.NoError(t, err)
	assert.Equal(t, FailOpen, f)

	f, err = ParseFailurePolicy("Fail-Closed")
	require.NoError(t, err)
	assert.Equal(t, FailClosed, f)

	_, err = ParseFailurePolicy("")
	require.Error(t, err)

	assert.False(t, FailurePolicy(0).Valid())
	assert.Equal(t, "unset", FailurePolicy(0).String())
}

func TestFailurePolicy_Text(t *testing.T) {
	var f FailurePolicy
	require.NoError(t, f.UnmarshalText([]byte("closed")))
	assert.Equal(t, FailClosed, f)

	out, err := FailOpen.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "open", string(out))

	_, err = FailurePolicy(0).MarshalText()
	assert.Error(t, err)
	assert.Error(t, f.UnmarshalText([]byte("maybe")))
}

func TestDecision_RetryAfterSecondsAndErr(t *testing.T) {
	d := Decision{Allowed: false, Reason: ReasonRateLimited, RetryAfter: 1500 * time.Millisecond}
	assert.Equal(t, 2, d.RetryAfterSeconds())
	assert.ErrorIs(t, d.Err(), ErrRateLimited)
	assert.True(t, IsRateLimited(d.Err()))

	d = Decision{Allowed: false, Reason: ReasonBackendUnavailable}
	assert.Equal(t, 1, d.RetryAfterSeconds())
	assert.True(t, IsBackendUnavailable(d.Err()))

	d = Decision{Allowed: true, Reason: ReasonBackendUnavailable}
	assert.NoError(t, d.Err())
	assert.Equal(t, 0, d.RetryAfterSeconds())
}
