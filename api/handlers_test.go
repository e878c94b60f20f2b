package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"depgraph.evalgo.org/common"
	"depgraph.evalgo.org/config"
	"depgraph.evalgo.org/deps"
	"depgraph.evalgo.org/security"
)

const (
	testSecret = "handlers-test-secret"
	testTenant = "a47ac10b-58cc-4372-a567-0e02b2c3d479"
	testUser   = "7b7f55d8-4d6a-4a1e-9b1a-0d55c1b9cc01"
)

// memoryStore is an in-memory deps.Store for handler tests. It doubles as
// its own transaction; handler tests do not exercise rollback.
type memoryStore struct {
	items map[string]common.WorkItem
	edges map[string]common.DependencyEdge
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		items: map[string]common.WorkItem{},
		edges: map[string]common.DependencyEdge{},
	}
}

func (s *memoryStore) addItem(id string) {
	s.items[id] = common.WorkItem{ID: id, TenantID: testTenant, Type: common.TypeTask, Title: id, Status: "open"}
}

func (s *memoryStore) Mutate(ctx context.Context, tenantID string, fn func(tx deps.Tx) error) error {
	return fn(s)
}

func (s *memoryStore) GetEdge(ctx context.Context, tenantID, id string) (*common.DependencyEdge, error) {
	edge, found := s.edges[id]
	if !found || edge.TenantID != tenantID {
		return nil, nil
	}
	return &edge, nil
}

func (s *memoryStore) ListEdges(ctx context.Context, tenantID string) ([]common.DependencyEdge, error) {
	var out []common.DependencyEdge
	for _, edge := range s.edges {
		if edge.TenantID == tenantID {
			out = append(out, edge)
		}
	}
	return out, nil
}

func (s *memoryStore) ListEdgesTouching(ctx context.Context, tenantID string, workItemIDs []string) ([]common.DependencyEdge, error) {
	wanted := map[string]bool{}
	for _, id := range workItemIDs {
		wanted[id] = true
	}
	var out []common.DependencyEdge
	for _, edge := range s.edges {
		if edge.TenantID == tenantID && (wanted[edge.FromID] || wanted[edge.ToID]) {
			out = append(out, edge)
		}
	}
	return out, nil
}

func (s *memoryStore) ListWorkItems(ctx context.Context, tenantID string) ([]common.WorkItem, error) {
	var out []common.WorkItem
	for _, item := range s.items {
		if item.TenantID == tenantID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (s *memoryStore) ListWorkItemsByID(ctx context.Context, tenantID string, ids []string) ([]common.WorkItem, error) {
	var out []common.WorkItem
	for _, id := range ids {
		if item, found := s.items[id]; found && item.TenantID == tenantID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (s *memoryStore) MissingWorkItems(ctx context.Context, tenantID string, ids []string) ([]string, error) {
	var missing []string
	for _, id := range ids {
		if _, found := s.items[id]; !found {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func (s *memoryStore) FindPath(ctx context.Context, tenantID, startID, targetID string, maxDepth int) ([]string, error) {
	parent := map[string]string{}
	visited := map[string]bool{startID: true}
	frontier := []string{startID}

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, from := range frontier {
			for _, edge := range s.edges {
				if edge.FromID != from || visited[edge.ToID] {
					continue
				}
				visited[edge.ToID] = true
				parent[edge.ToID] = from
				if edge.ToID == targetID {
					path := []string{targetID}
					for id := targetID; id != startID; {
						id = parent[id]
						path = append([]string{id}, path...)
					}
					return path, nil
				}
				next = append(next, edge.ToID)
			}
		}
		frontier = next
	}
	return nil, nil
}

func (s *memoryStore) EdgeExists(ctx context.Context, tenantID, fromID, toID string) (bool, error) {
	for _, edge := range s.edges {
		if edge.TenantID == tenantID && edge.FromID == fromID && edge.ToID == toID {
			return true, nil
		}
	}
	return false, nil
}

func (s *memoryStore) InsertEdge(ctx context.Context, edge *common.DependencyEdge) error {
	s.edges[edge.ID] = *edge
	return nil
}

func (s *memoryStore) UpdateEdge(ctx context.Context, edge *common.DependencyEdge) error {
	s.edges[edge.ID] = *edge
	return nil
}

func (s *memoryStore) DeleteEdge(ctx context.Context, tenantID, id string) error {
	delete(s.edges, id)
	return nil
}

type recordingPublisher struct {
	events  []common.DependencyEvent
	recalcs []common.RecalcRequest
}

func (p *recordingPublisher) PublishDependencyEvent(event common.DependencyEvent) error {
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) PublishRecalcRequest(req common.RecalcRequest) error {
	p.recalcs = append(p.recalcs, req)
	return nil
}

func testServer(t *testing.T) (*echo.Echo, *memoryStore, *recordingPublisher, string) {
	t.Helper()

	store := newMemoryStore()
	bus := &recordingPublisher{}
	jwtService := security.NewJWTService(testSecret)

	cfg := &config.Config{
		Security: config.SecurityConfig{
			JWTSecret:       testSecret,
			AllowedOrigins:  []string{"*"},
			RateLimitWindow: 15 * time.Minute,
			RateLimitMax:    1000,
		},
	}

	e := echo.New()
	SetupRoutes(e, &Handlers{
		Service: deps.NewService(store, bus),
		JWT:     jwtService,
	}, cfg)

	token, err := jwtService.GenerateToken(common.Principal{
		ID:       testUser,
		TenantID: testTenant,
		Roles:    []string{"planner"},
	}, time.Hour)
	require.NoError(t, err)

	return e, store, bus, token
}

func doRequest(e *echo.Echo, method, target, token, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealthIsPublic(t *testing.T) {
	e, _, _, _ := testServer(t)

	rec := doRequest(e, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	assert.True(t, resp.Success)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	e, _, _, _ := testServer(t)

	rec := doRequest(e, http.MethodGet, "/api/dependencies", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	resp := decodeResponse(t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, "UNAUTHORIZED", resp.Error.Code)
}

func TestGenerateTokenRequiresTenant(t *testing.T) {
	e, _, _, _ := testServer(t)

	rec := doRequest(e, http.MethodPost, "/auth/token", "", `{"user_id":"u1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	resp := decodeResponse(t, rec)
	assert.Equal(t, deps.CodeMissingRequiredFields, resp.Error.Code)
}

func TestGenerateTokenRoundTrip(t *testing.T) {
	e, store, _, _ := testServer(t)
	store.addItem("a")

	rec := doRequest(e, http.MethodPost, "/auth/token", "",
		`{"user_id":"`+testUser+`","tenant_id":"`+testTenant+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	token := resp.Data.(map[string]interface{})["token"].(string)

	rec = doRequest(e, http.MethodGet, "/api/dependencies", token, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateDependency(t *testing.T) {
	e, store, bus, token := testServer(t)
	store.addItem("a")
	store.addItem("b")

	rec := doRequest(e, http.MethodPost, "/api/dependencies", token,
		`{"from_id":"a","to_id":"b","dependency_type":"finish_to_start","lag_days":2}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	resp := decodeResponse(t, rec)
	require.True(t, resp.Success)

	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "a", data["from_id"])
	assert.Equal(t, "b", data["to_id"])
	assert.Equal(t, float64(2), data["lag_days"])
	assert.NotEmpty(t, data["id"])

	require.Len(t, bus.events, 1)
	assert.Equal(t, common.EventCreated, bus.events[0].Kind)
	require.Len(t, bus.recalcs, 1)
	assert.Equal(t, testTenant, bus.recalcs[0].TenantID)
}

func TestCreateDependencyMissingFields(t *testing.T) {
	e, _, _, token := testServer(t)

	rec := doRequest(e, http.MethodPost, "/api/dependencies", token, `{"from_id":"a"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	resp := decodeResponse(t, rec)
	assert.Equal(t, deps.CodeMissingRequiredFields, resp.Error.Code)
}

func TestCreateDependencyUnknownWorkItems(t *testing.T) {
	e, _, _, token := testServer(t)

	rec := doRequest(e, http.MethodPost, "/api/dependencies", token,
		`{"from_id":"a","to_id":"b","dependency_type":"finish_to_start"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	resp := decodeResponse(t, rec)
	assert.Equal(t, deps.CodeWorkItemsNotFound, resp.Error.Code)
}

func TestCreateDependencyCycleConflict(t *testing.T) {
	e, store, _, token := testServer(t)
	for _, id := range []string{"a", "b", "c"} {
		store.addItem(id)
	}

	for _, body := range []string{
		`{"from_id":"a","to_id":"b","dependency_type":"finish_to_start"}`,
		`{"from_id":"b","to_id":"c","dependency_type":"finish_to_start"}`,
	} {
		rec := doRequest(e, http.MethodPost, "/api/dependencies", token, body)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := doRequest(e, http.MethodPost, "/api/dependencies", token,
		`{"from_id":"c","to_id":"a","dependency_type":"finish_to_start"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	resp := decodeResponse(t, rec)
	assert.Equal(t, deps.CodeCycleDetected, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "a -> b -> c -> a")
}

func TestCreateDependencyDuplicateConflict(t *testing.T) {
	e, store, _, token := testServer(t)
	store.addItem("a")
	store.addItem("b")

	body := `{"from_id":"a","to_id":"b","dependency_type":"finish_to_start"}`
	rec := doRequest(e, http.MethodPost, "/api/dependencies", token, body)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(e, http.MethodPost, "/api/dependencies", token, body)
	assert.Equal(t, http.StatusConflict, rec.Code)

	resp := decodeResponse(t, rec)
	assert.Equal(t, deps.CodeDuplicateDependency, resp.Error.Code)
}

func TestGetDependencyNotFound(t *testing.T) {
	e, _, _, token := testServer(t)

	rec := doRequest(e, http.MethodGet, "/api/dependencies/nope", token, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	resp := decodeResponse(t, rec)
	assert.Equal(t, deps.CodeDependencyNotFound, resp.Error.Code)
}

func TestUpdateAndDeleteDependency(t *testing.T) {
	e, store, bus, token := testServer(t)
	store.addItem("a")
	store.addItem("b")

	rec := doRequest(e, http.MethodPost, "/api/dependencies", token,
		`{"from_id":"a","to_id":"b","dependency_type":"finish_to_start"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeResponse(t, rec).Data.(map[string]interface{})["id"].(string)

	rec = doRequest(e, http.MethodPut, "/api/dependencies/"+id, token, `{"lag_days":5}`)
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decodeResponse(t, rec).Data.(map[string]interface{})
	assert.Equal(t, float64(5), updated["lag_days"])

	// PATCH is accepted as an alias for the same handler.
	rec = doRequest(e, http.MethodPatch, "/api/dependencies/"+id, token, `{"lag_days":7}`)
	require.Equal(t, http.StatusOK, rec.Code)
	patched := decodeResponse(t, rec).Data.(map[string]interface{})
	assert.Equal(t, float64(7), patched["lag_days"])

	rec = doRequest(e, http.MethodDelete, "/api/dependencies/"+id, token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	deleted := decodeResponse(t, rec)
	assert.True(t, deleted.Success)
	assert.Contains(t, deleted.Message, id)
	assert.Contains(t, deleted.Message, "deleted")

	rec = doRequest(e, http.MethodGet, "/api/dependencies/"+id, token, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	kinds := make([]common.EventKind, 0, len(bus.events))
	for _, event := range bus.events {
		kinds = append(kinds, event.Kind)
	}
	assert.Equal(t, []common.EventKind{common.EventCreated, common.EventUpdated, common.EventUpdated, common.EventDeleted}, kinds)
}

func TestGetGraphFiltersWorkItems(t *testing.T) {
	e, store, _, token := testServer(t)
	for _, id := range []string{"a", "b", "c"} {
		store.addItem(id)
	}
	rec := doRequest(e, http.MethodPost, "/api/dependencies", token,
		`{"from_id":"a","to_id":"b","dependency_type":"finish_to_start"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(e, http.MethodGet, "/api/graph?work_item_ids=a,b", token, "")
	require.Equal(t, http.StatusOK, rec.Code)

	data := decodeResponse(t, rec).Data.(map[string]interface{})
	nodes := data["nodes"].(map[string]interface{})
	assert.Len(t, nodes, 2)
}

func TestGetCriticalPath(t *testing.T) {
	e, store, _, token := testServer(t)
	store.addItem("a")
	store.addItem("b")
	rec := doRequest(e, http.MethodPost, "/api/dependencies", token,
		`{"from_id":"a","to_id":"b","dependency_type":"finish_to_start"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(e, http.MethodGet, "/api/critical-path", token, "")
	require.Equal(t, http.StatusOK, rec.Code)

	data := decodeResponse(t, rec).Data.(map[string]interface{})
	assert.Equal(t, []interface{}{"a", "b"}, data["critical_path"].([]interface{}))
	assert.Equal(t, false, data["has_cycles"])
}

func TestGetCycles(t *testing.T) {
	e, _, _, token := testServer(t)

	rec := doRequest(e, http.MethodGet, "/api/cycles", token, "")
	require.Equal(t, http.StatusOK, rec.Code)

	data := decodeResponse(t, rec).Data.(map[string]interface{})
	assert.Equal(t, false, data["has_cycles"])
}
