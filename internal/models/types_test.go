package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentTimeLayouts(t *testing.T) {
	want := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	for _, in := range []string{
		`"2024-01-01T09:00:00"`,
		`"2024-01-01 09:00:00"`,
		`"2024-01-01T09:00:00.654321"`,
		`"2024-01-01T10:00:00+01:00"`,
		`"2024-01-01T09:00:00Z"`,
		`1704099600`,
	} {
		var at AgentTime
		require.NoError(t, json.Unmarshal([]byte(in), &at), in)
		assert.True(t, want.Equal(at.Time), "%s decoded to %s", in, at.Time)
		assert.Equal(t, time.UTC, at.Location())
	}
}

func TestAgentTimeEmpty(t *testing.T) {
	var payload struct {
		Start AgentTime `json:"start"`
		End   AgentTime `json:"end"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"start": null, "end": ""}`), &payload))
	assert.True(t, payload.Start.IsZero())
	assert.True(t, payload.End.IsZero())
	assert.False(t, payload.End.OrNow().IsZero())
}

func TestAgentTimeInvalid(t *testing.T) {
	var at AgentTime
	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &at))
}

func TestFlexBool(t *testing.T) {
	cases := map[string]bool{`true`: true, `1`: true, `"1"`: true, `false`: false, `0`: false, `null`: false}
	for in, want := range cases {
		var b FlexBool
		require.NoError(t, json.Unmarshal([]byte(in), &b), in)
		assert.Equal(t, want, bool(b), in)
	}

	var b FlexBool
	assert.Error(t, json.Unmarshal([]byte(`"maybe"`), &b))
}

func TestProductivityDecoding(t *testing.T) {
	cases := map[string]Productivity{
		`1`:              ProductivityProductive,
		`0`:              ProductivityUnproductive,
		`true`:           ProductivityProductive,
		`false`:          ProductivityUnproductive,
		`null`:           ProductivityUnknown,
		`"productive"`:   ProductivityProductive,
		`"unproductive"`: ProductivityUnproductive,
		`"unknown"`:      ProductivityUnknown,
	}
	for in, want := range cases {
		var p Productivity
		require.NoError(t, json.Unmarshal([]byte(in), &p), in)
		assert.Equal(t, want, p, in)
	}

	var p Productivity
	assert.Error(t, json.Unmarshal([]byte(`"sometimes"`), &p))
}

func TestPermissionActionApply(t *testing.T) {
	assert.Equal(t, PermissionAllowed, ActionAllow.Apply(PermissionBlocked))
	assert.Equal(t, PermissionAllowed, ActionAllow.Apply(PermissionPending))
	assert.Equal(t, PermissionBlocked, ActionBlock.Apply(PermissionAllowed))
	assert.Equal(t, PermissionPending, ActionUnblock.Apply(PermissionBlocked))
	assert.Equal(t, PermissionAllowed, ActionUnblock.Apply(PermissionAllowed))
	assert.Equal(t, PermissionPending, ActionUnblock.Apply(PermissionPending))
}

func TestParseEnums(t *testing.T) {
	r, err := ParseRole("Admin")
	require.NoError(t, err)
	assert.True(t, r.IsAdmin())
	assert.False(t, RoleHR.IsAdmin())
	_, err = ParseRole("root")
	assert.Error(t, err)

	s, err := ParseScope("")
	require.NoError(t, err)
	assert.Equal(t, ScopeGlobal, s)
	_, err = ParseScope("team")
	assert.Error(t, err)

	_, err = ParsePermissionAction("eject")
	assert.Error(t, err)
}
