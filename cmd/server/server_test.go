package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moralgraph/simulator/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	return &config.Config{
		Port:                "8080",
		DataDir:             t.TempDir(),
		AllowedOrigins:      []string{"http://localhost:5173"},
		DefaultParticipants: 10,
		MaxParticipants:     100,
		MaxInteractions:     50,
		SimulationWorkers:   4,
		IPRateLimitPerMin:   100000,
		CacheTTL:            time.Minute,
	}
}

func newTestServer(t *testing.T) (*Server, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	server, err := newServer(testConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { server.Close() })

	return server, server.setupRouter()
}

func TestServerCloseReleasesConnections(t *testing.T) {
	gin.SetMode(gin.TestMode)

	server, err := newServer(testConfig(t))
	require.NoError(t, err)

	require.NotNil(t, server.redis)
	assert.NoError(t, server.Close())
}

func doJSON(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Buffer
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewBuffer(data)
	} else {
		reader = bytes.NewBuffer(nil)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	_, r := newTestServer(t)

	w := doJSON(r, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Contains(t, body, "database")
	assert.Contains(t, body, "ratelimit")
}

func TestRubricEndpoint(t *testing.T) {
	_, r := newTestServer(t)

	w := doJSON(r, http.MethodGet, "/rubric", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Dimensions []struct {
			Name   string  `json:"name"`
			Weight float64 `json:"weight"`
		} `json:"dimensions"`
		Topics []string `json:"topics"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

	assert.Len(t, body.Dimensions, 8)
	assert.Len(t, body.Topics, 8)

	sum := 0.0
	for _, d := range body.Dimensions {
		sum += d.Weight
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

type simulateResponse struct {
	RunID           string             `json:"run_id"`
	DimensionScores map[string]float64 `json:"dimensionScores"`
	Metadata        struct {
		TotalParticipants int      `json:"total_participants"`
		TotalInteractions int      `json:"total_interactions"`
		AvgTotalScore     *float64 `json:"avg_total_score"`
		StdTotalScore     *float64 `json:"std_total_score"`
	} `json:"metadata"`
}

func TestSimulateEndpoint(t *testing.T) {
	_, r := newTestServer(t)

	w := doJSON(r, http.MethodPost, "/simulate", map[string]interface{}{
		"participantCount":           5,
		"interactionsPerParticipant": 3,
		"seed":                       42,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp simulateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.NotEmpty(t, resp.RunID)
	assert.Len(t, resp.DimensionScores, 8)
	assert.Equal(t, 5, resp.Metadata.TotalParticipants)
	assert.Equal(t, 15, resp.Metadata.TotalInteractions)
	require.NotNil(t, resp.Metadata.AvgTotalScore)
	assert.GreaterOrEqual(t, *resp.Metadata.AvgTotalScore, 1.0)
	assert.LessOrEqual(t, *resp.Metadata.AvgTotalScore, 5.0)
}

func TestSimulateDefaults(t *testing.T) {
	_, r := newTestServer(t)

	// Empty body falls back to the configured defaults with randomized
	// interaction counts.
	w := doJSON(r, http.MethodPost, "/simulate", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp simulateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Equal(t, 10, resp.Metadata.TotalParticipants)
	assert.GreaterOrEqual(t, resp.Metadata.TotalInteractions, 10*5)
	assert.LessOrEqual(t, resp.Metadata.TotalInteractions, 10*12)
}

func TestSimulateDeterministicForSeed(t *testing.T) {
	_, r := newTestServer(t)

	body := map[string]interface{}{
		"participantCount":           4,
		"interactionsPerParticipant": 6,
		"seed":                       2024,
	}

	w1 := doJSON(r, http.MethodPost, "/simulate", body)
	w2 := doJSON(r, http.MethodPost, "/simulate", body)
	require.Equal(t, http.StatusOK, w1.Code)
	require.Equal(t, http.StatusOK, w2.Code)

	var r1, r2 simulateResponse
	require.NoError(t, json.Unmarshal(w1.Body.Bytes(), &r1))
	require.NoError(t, json.Unmarshal(w2.Body.Bytes(), &r2))

	assert.NotEqual(t, r1.RunID, r2.RunID)
	assert.Equal(t, r1.DimensionScores, r2.DimensionScores)
	assert.Equal(t, *r1.Metadata.AvgTotalScore, *r2.Metadata.AvgTotalScore)
}

func TestSimulateValidation(t *testing.T) {
	_, r := newTestServer(t)

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"negative participants", map[string]interface{}{"participantCount": -1}},
		{"too many participants", map[string]interface{}{"participantCount": 101}},
		{"negative interactions", map[string]interface{}{"interactionsPerParticipant": -2}},
		{"too many interactions", map[string]interface{}{"interactionsPerParticipant": 51}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(r, http.MethodPost, "/simulate", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestSimulateIgnoresUnknownFields(t *testing.T) {
	_, r := newTestServer(t)

	w := doJSON(r, http.MethodPost, "/simulate", map[string]interface{}{
		"participantCount": 2,
		"futureOption":     true,
	})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func simulateRun(t *testing.T, r *gin.Engine, participants, interactions int, seed int64) string {
	t.Helper()

	w := doJSON(r, http.MethodPost, "/simulate", map[string]interface{}{
		"participantCount":           participants,
		"interactionsPerParticipant": interactions,
		"seed":                       seed,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp simulateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.RunID
}

func TestListAndGetRuns(t *testing.T) {
	_, r := newTestServer(t)

	id1 := simulateRun(t, r, 3, 4, 7)
	id2 := simulateRun(t, r, 2, 5, 8)

	w := doJSON(r, http.MethodGet, "/runs", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var list struct {
		Runs []struct {
			ID               string `json:"id"`
			ParticipantCount int    `json:"participant_count"`
		} `json:"runs"`
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 2, list.Count)

	ids := []string{list.Runs[0].ID, list.Runs[1].ID}
	assert.Contains(t, ids, id1)
	assert.Contains(t, ids, id2)

	w = doJSON(r, http.MethodGet, "/runs/"+id1, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var detail struct {
		Run struct {
			ID               string `json:"id"`
			ParticipantCount int    `json:"participant_count"`
			InteractionCount int    `json:"interaction_count"`
		} `json:"run"`
		Report struct {
			TotalInteractions int `json:"total_interactions"`
		} `json:"report"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &detail))
	assert.Equal(t, id1, detail.Run.ID)
	assert.Equal(t, 3, detail.Run.ParticipantCount)
	assert.Equal(t, 12, detail.Run.InteractionCount)
	assert.Equal(t, 12, detail.Report.TotalInteractions)
}

func TestDeleteRun(t *testing.T) {
	_, r := newTestServer(t)

	id := simulateRun(t, r, 2, 3, 31)

	w := doJSON(r, http.MethodDelete, "/runs/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodGet, "/runs/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(r, http.MethodDelete, "/runs/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetRunNotFound(t *testing.T) {
	_, r := newTestServer(t)

	w := doJSON(r, http.MethodGet, "/runs/no-such-run", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReportEndpoint(t *testing.T) {
	_, r := newTestServer(t)

	id := simulateRun(t, r, 3, 4, 11)

	w := doJSON(r, http.MethodGet, fmt.Sprintf("/runs/%s/report", id), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/markdown")

	report := w.Body.String()
	assert.Contains(t, report, "# Moral Graph Experiment Simulation")
	assert.Contains(t, report, "Total Participants: 3")
	assert.Contains(t, report, "Total Interactions: 12")
	assert.Contains(t, report, "### Dimension Scores")
}

func TestExportFormats(t *testing.T) {
	_, r := newTestServer(t)

	id := simulateRun(t, r, 2, 3, 13)

	w := doJSON(r, http.MethodGet, fmt.Sprintf("/runs/%s/export?format=csv", id), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")

	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	assert.Len(t, lines, 7, "header plus six interaction rows")
	assert.True(t, strings.HasPrefix(lines[0], "ParticipantID,InteractionID,Specialization,"))

	w = doJSON(r, http.MethodGet, fmt.Sprintf("/runs/%s/export?format=json", id), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")

	w = doJSON(r, http.MethodGet, fmt.Sprintf("/runs/%s/export?format=xml", id), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestImportRoundTrip(t *testing.T) {
	_, r := newTestServer(t)

	id := simulateRun(t, r, 3, 5, 17)

	export := doJSON(r, http.MethodGet, fmt.Sprintf("/runs/%s/export?format=csv", id), nil)
	require.Equal(t, http.StatusOK, export.Code)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/runs/import", bytes.NewReader(export.Body.Bytes()))
	req.Header.Set("Content-Type", "text/csv")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp simulateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.RunID)
	assert.NotEqual(t, id, resp.RunID)
	assert.Equal(t, 3, resp.Metadata.TotalParticipants)
	assert.Equal(t, 15, resp.Metadata.TotalInteractions)

	// The imported run produces the same report as the original.
	origReport := doJSON(r, http.MethodGet, fmt.Sprintf("/runs/%s/report", id), nil)
	importedReport := doJSON(r, http.MethodGet, fmt.Sprintf("/runs/%s/report", resp.RunID), nil)
	require.Equal(t, http.StatusOK, origReport.Code)
	require.Equal(t, http.StatusOK, importedReport.Code)
	assert.Equal(t, origReport.Body.String(), importedReport.Body.String())
}

func TestImportSameExportTwice(t *testing.T) {
	_, r := newTestServer(t)

	id := simulateRun(t, r, 2, 4, 23)

	export := doJSON(r, http.MethodGet, fmt.Sprintf("/runs/%s/export?format=json", id), nil)
	require.Equal(t, http.StatusOK, export.Code)

	// The export carries the original run and interaction identifiers.
	// Each import stores a new run, so the same payload can land twice.
	runIDs := map[string]bool{id: true}
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/runs/import", bytes.NewReader(export.Body.Bytes()))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp simulateResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.NotEmpty(t, resp.RunID)
		assert.False(t, runIDs[resp.RunID], "import reused run id %s", resp.RunID)
		runIDs[resp.RunID] = true

		report := doJSON(r, http.MethodGet, fmt.Sprintf("/runs/%s/report", resp.RunID), nil)
		require.Equal(t, http.StatusOK, report.Code)
	}

	origReport := doJSON(r, http.MethodGet, fmt.Sprintf("/runs/%s/report", id), nil)
	require.Equal(t, http.StatusOK, origReport.Code)
	for runID := range runIDs {
		report := doJSON(r, http.MethodGet, fmt.Sprintf("/runs/%s/report", runID), nil)
		require.Equal(t, http.StatusOK, report.Code)
		assert.Equal(t, origReport.Body.String(), report.Body.String())
	}
}

func TestImportRejectsMalformedCSV(t *testing.T) {
	_, r := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/runs/import",
		strings.NewReader("NotAHeader,At,All\n"))
	req.Header.Set("Content-Type", "text/csv")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	_, r := newTestServer(t)

	simulateRun(t, r, 2, 3, 19)

	w := doJSON(r, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		App struct {
			SimulationsRun        int64 `json:"simulations_run"`
			InteractionsGenerated int64 `json:"interactions_generated"`
		} `json:"app"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, int64(1), body.App.SimulationsRun)
	assert.Equal(t, int64(6), body.App.InteractionsGenerated)
}

func TestReportServedFromCache(t *testing.T) {
	server, r := newTestServer(t)

	id := simulateRun(t, r, 2, 3, 23)

	path := fmt.Sprintf("/runs/%s/report", id)
	first := doJSON(r, http.MethodGet, path, nil)
	second := doJSON(r, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, first.Code)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())

	stats := server.metrics.GetStats()
	assert.Equal(t, int64(1), stats["cache_hits"])
}
