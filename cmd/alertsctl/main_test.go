package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/shenikar/neighborhood_alerts/internal/auth"
	"github.com/shenikar/neighborhood_alerts/internal/models"
	"github.com/shenikar/neighborhood_alerts/pkg/client"
	"github.com/shenikar/neighborhood_alerts/pkg/dashboard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunToken_IssuesVerifiableToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "dev-secret")
	t.Setenv("JWT_ISSUER", "")
	out := &bytes.Buffer{}

	err := runToken([]string{"-sub", "user-7", "-role", "admin", "-ttl", "1h"}, out)

	require.NoError(t, err)
	identity, err := auth.NewGuard("dev-secret").Authenticate(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, models.Identity{UserID: "user-7", Role: models.RoleAdmin}, identity)
}

func TestRunToken_RejectsBadInput(t *testing.T) {
	t.Setenv("JWT_SECRET", "dev-secret")

	assert.Error(t, runToken([]string{"-role", "admin"}, &bytes.Buffer{}))
	assert.Error(t, runToken([]string{"-sub", "u", "-role", "mayor"}, &bytes.Buffer{}))

	t.Setenv("JWT_SECRET", "")
	assert.Error(t, runToken([]string{"-sub", "u"}, &bytes.Buffer{}))
}

func TestRender(t *testing.T) {
	lat, lon := 12.97, 77.59
	view := dashboard.Build([]client.Alert{
		{ID: "1", Title: "Fire near market", Severity: "High", Category: "General", Latitude: &lat, Longitude: &lon, CreatedAt: time.Now()},
		{ID: "2", Title: "No coordinates", Severity: "Low", Category: "General", CreatedAt: time.Now()},
	}, dashboard.Query{Sort: dashboard.Newest, Page: 1})
	out := &bytes.Buffer{}

	require.NoError(t, render(out, dashboard.State{Status: dashboard.StatusReady, View: view}))

	assert.Contains(t, out.String(), "Fire near market")
	assert.Contains(t, out.String(), "page 1 / 1, 2 alerts, 1 on map")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}
