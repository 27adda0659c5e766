package httpapi_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qiboda/atom-sub003/internal/ability"
	"github.com/qiboda/atom-sub003/internal/attribute"
	"github.com/qiboda/atom-sub003/internal/catalog"
	"github.com/qiboda/atom-sub003/internal/content"
	"github.com/qiboda/atom-sub003/internal/httpapi"
	"github.com/qiboda/atom-sub003/internal/sim"
	"github.com/qiboda/atom-sub003/internal/tag"
	"github.com/qiboda/atom-sub003/internal/telemetry"
	"github.com/qiboda/atom-sub003/internal/world"
	"github.com/qiboda/atom-sub003/logging/sinks"
)

var quietLog = telemetry.LoggerFunc(func(string, ...any) {})

const definitions = `[
  {"id": "heal", "kind": "ability", "graph": "channel_heal",
   "gates": {"start": {"disable": [{"tags": ["channeling"]}]}}},
  {"id": "poison", "kind": "buff", "graph": "poison", "maxLayer": 3, "loopInterval": 1}
]`

type fixture struct {
	world  *world.World
	loop   *sim.Loop
	server *httpapi.Server
	tick   uint64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	path := filepath.Join(t.TempDir(), "definitions.json")
	require.NoError(t, os.WriteFile(path, []byte(definitions), 0o644))

	table := tag.NewTable()
	templates, err := content.Default(table)
	require.NoError(t, err)
	resolver, err := catalog.Load(table, templates, quietLog, path)
	require.NoError(t, err)

	w, err := world.New(world.DefaultConfig(), world.Deps{
		Publisher: sinks.NewMemorySink(),
		Logger:    quietLog,
		Tags:      table,
		Library:   resolver.Library(),
	})
	require.NoError(t, err)
	_, err = w.AddOwner("hero", attribute.ArchetypeHero, "heal")
	require.NoError(t, err)
	w.Publish()

	loop := sim.NewLoop(w, sim.LoopConfig{TickRate: 10, CommandCapacity: 8}, sim.Deps{Logger: quietLog}, sim.LoopHooks{})
	return &fixture{world: w, loop: loop, server: httpapi.New(w, loop, quietLog)}
}

func (f *fixture) advance() {
	f.tick++
	f.loop.Advance(sim.TickContext{Tick: f.tick, Delta: 0.1})
}

func (f *fixture) do(t *testing.T, method, target, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := f.server.App().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp.StatusCode, decoded
}

func TestServer_Health(t *testing.T) {
	f := newFixture(t)
	status, body := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestServer_OwnersAndStartable(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, http.MethodGet, "/owners", "")
	require.Equal(t, http.StatusOK, status)
	owners := body["owners"].([]any)
	require.Len(t, owners, 1)
	assert.Equal(t, "hero", owners[0].(map[string]any)["id"])

	status, body = f.do(t, http.MethodGet, "/owners/hero/abilities/heal/startable", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["startable"])
	assert.Equal(t, ability.AbilityReady.String(), body["state"])

	status, _ = f.do(t, http.MethodGet, "/owners/ghost", "")
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = f.do(t, http.MethodGet, "/owners/hero/abilities/missing/startable", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestServer_CommandsFlowThroughTheLoop(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, http.MethodPost, "/commands",
		`{"kind":"start","owner":"hero","target":"ability","definition":"heal"}`)
	require.Equal(t, http.StatusAccepted, status)
	assert.NotEmpty(t, body["id"])
	assert.Equal(t, 1, f.loop.Pending())

	status, _ = f.do(t, http.MethodPost, "/commands",
		`{"kind":"start","owner":"hero","target":"buff","definition":"poison"}`)
	require.Equal(t, http.StatusAccepted, status)

	f.advance()

	_, body = f.do(t, http.MethodGet, "/owners/hero/abilities/heal/startable", "")
	assert.Equal(t, false, body["startable"], "channeling blocks a second cast")
	assert.Equal(t, ability.AbilityActive.String(), body["state"])

	status, body = f.do(t, http.MethodGet, "/owners/hero/buffs/poison", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["layer"])
	assert.Equal(t, float64(3), body["maxLayer"])

	status, body = f.do(t, http.MethodGet, "/owners/hero", "")
	require.Equal(t, http.StatusOK, status)
	tags := body["tags"].([]any)
	assert.NotEmpty(t, tags)

	owner, _ := f.world.Owner("hero")
	heal, _ := owner.Ability("heal")
	status, body = f.do(t, http.MethodGet, "/owners/hero/graphs/"+heal.ID(), "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, content.ChannelHeal, body["template"])

	status, _ = f.do(t, http.MethodGet, "/owners/hero/graphs/unknown", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestServer_RejectsInvalidCommands(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, http.MethodPost, "/commands", `{"kind":"add_layer","owner":"hero","target":"ability","definition":"heal"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, sim.CommandRejectInvalid, body["reason"])

	status, _ = f.do(t, http.MethodPost, "/commands", `{not json`)
	assert.Equal(t, http.StatusBadRequest, status)

	for i := 0; i < 8; i++ {
		status, _ = f.do(t, http.MethodPost, "/commands", `{"kind":"start","owner":"hero","target":"ability","definition":"heal"}`)
		require.Equal(t, http.StatusAccepted, status)
	}
	status, body = f.do(t, http.MethodPost, "/commands", `{"kind":"start","owner":"hero","target":"ability","definition":"heal"}`)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, sim.CommandRejectQueueFull, body["reason"])
}

func TestServer_ReadOnlyWithoutCommands(t *testing.T) {
	f := newFixture(t)
	server := httpapi.New(f.world, nil, quietLog)
	req := httptest.NewRequest(http.MethodPost, "/commands", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := server.App().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

type fakeJournal struct {
	entries   []sinks.JournalEntry
	lastType  string
	lastLimit int
}

func (j *fakeJournal) Recent(_ context.Context, eventType string, limit int) ([]sinks.JournalEntry, error) {
	j.lastType, j.lastLimit = eventType, limit
	return j.entries, nil
}

type fakeCounters map[string]uint64

func (c fakeCounters) Snapshot() map[string]uint64 { return c }

func TestServer_EventsAndMetrics(t *testing.T) {
	f := newFixture(t)
	journal := &fakeJournal{entries: []sinks.JournalEntry{{ID: 7, Type: "buffs.added", Tick: 3}}}
	server := httpapi.New(f.world, f.loop, quietLog,
		httpapi.WithJournal(journal),
		httpapi.WithMetrics(fakeCounters{"world_owners": 1}),
	)

	resp, err := server.App().Test(httptest.NewRequest(http.MethodGet, "/events?type=buffs.added&limit=9999", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var events struct {
		Events []sinks.JournalEntry `json:"events"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&events))
	require.Len(t, events.Events, 1)
	assert.Equal(t, int64(7), events.Events[0].ID)
	assert.Equal(t, "buffs.added", journal.lastType)
	assert.Equal(t, 500, journal.lastLimit, "limit is capped")

	resp, err = server.App().Test(httptest.NewRequest(http.MethodGet, "/events?limit=-1", nil))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = server.App().Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	var counters map[string]uint64
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&counters))
	assert.Equal(t, uint64(1), counters["world_owners"])

	resp, err = f.server.App().Test(httptest.NewRequest(http.MethodGet, "/events", nil))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "no journal, no route")
}
