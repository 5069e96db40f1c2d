package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"ctf-scoreboard-system/services"
	"ctf-scoreboard-system/testutil"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

func newTestApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	app := fiber.New()

	ledgerService := services.NewLedgerService(db, false)
	scoreboardService := services.NewScoreboardService(db)
	SetupScoreboardRoutes(app, ledgerService, scoreboardService, nil)
	SetupUserRoutes(app, ledgerService)

	return app, db
}

func jsonRequest(t *testing.T, method, target string, body interface{}, headers map[string]string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req
}

func decodeBody(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response body: %v", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		t.Fatalf("Failed to decode response %s: %v", raw, err)
	}
}

func TestRegisterAndProfileEndpoints(t *testing.T) {
	app, _ := newTestApp(t)

	resp, err := app.Test(jsonRequest(t, "POST", "/users", fiber.Map{
		"username": "alice",
		"password": "correct-horse",
	}, nil))
	if err != nil {
		t.Fatalf("register request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("expected 201 on registration, got %d", resp.StatusCode)
	}

	// Duplicate registration conflicts.
	resp, err = app.Test(jsonRequest(t, "POST", "/users", fiber.Map{
		"username": "alice",
		"password": "another-pass",
	}, nil))
	if err != nil {
		t.Fatalf("register request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusConflict {
		t.Errorf("expected 409 on duplicate registration, got %d", resp.StatusCode)
	}

	resp, err = app.Test(httptest.NewRequest("GET", "/users/alice", nil))
	if err != nil {
		t.Fatalf("profile request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 on profile, got %d", resp.StatusCode)
	}
	var profile struct {
		Username        string `json:"username"`
		TotalScore      int64  `json:"total_score"`
		HasClaimedPrize bool   `json:"has_claimed_prize"`
		FlagsCount      int64  `json:"flags_count"`
	}
	decodeBody(t, resp, &profile)
	if profile.Username != "alice" || profile.TotalScore != 0 || profile.HasClaimedPrize {
		t.Errorf("unexpected fresh profile: %+v", profile)
	}

	resp, err = app.Test(httptest.NewRequest("GET", "/users/ghost", nil))
	if err != nil {
		t.Fatalf("profile request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("expected 404 for unknown user, got %d", resp.StatusCode)
	}
}

func TestUnlockEndpoint(t *testing.T) {
	app, db := newTestApp(t)
	testutil.CreateTestUser(t, db, "alice")

	authed := map[string]string{"X-User-ID": "alice"}

	resp, err := app.Test(jsonRequest(t, "POST", "/unlocks", fiber.Map{
		"flag_key": "flag1",
		"points":   50,
	}, authed))
	if err != nil {
		t.Fatalf("unlock request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("expected 201 on unlock, got %d", resp.StatusCode)
	}

	// Same flag again conflicts.
	resp, err = app.Test(jsonRequest(t, "POST", "/unlocks", fiber.Map{
		"flag_key": "flag1",
		"points":   50,
	}, authed))
	if err != nil {
		t.Fatalf("unlock request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusConflict {
		t.Errorf("expected 409 on duplicate unlock, got %d", resp.StatusCode)
	}

	resp, err = app.Test(httptest.NewRequest("GET", "/users/alice/rank", nil))
	if err != nil {
		t.Fatalf("rank request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 on rank, got %d", resp.StatusCode)
	}
	var rankResp struct {
		Username string `json:"username"`
		Rank     int64  `json:"rank"`
	}
	decodeBody(t, resp, &rankResp)
	if rankResp.Rank != 1 {
		t.Errorf("expected rank 1, got %d", rankResp.Rank)
	}

	resp, err = app.Test(httptest.NewRequest("GET", "/leaderboard", nil))
	if err != nil {
		t.Fatalf("leaderboard request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 on leaderboard, got %d", resp.StatusCode)
	}
	var rows []struct {
		Username   string `json:"username"`
		TotalScore int64  `json:"total_score"`
	}
	decodeBody(t, resp, &rows)
	if len(rows) != 1 || rows[0].Username != "alice" || rows[0].TotalScore != 50 {
		t.Errorf("unexpected leaderboard: %+v", rows)
	}
}

func TestUnlockRequiresUserContext(t *testing.T) {
	app, _ := newTestApp(t)

	resp, err := app.Test(jsonRequest(t, "POST", "/unlocks", fiber.Map{
		"flag_key": "flag1",
		"points":   50,
	}, nil))
	if err != nil {
		t.Fatalf("unlock request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("expected 401 without user context, got %d", resp.StatusCode)
	}
}

func TestClaimEndpoint(t *testing.T) {
	app, db := newTestApp(t)
	testutil.CreateTestUser(t, db, "alice")

	authed := map[string]string{"X-User-ID": "alice"}

	resp, err := app.Test(jsonRequest(t, "POST", "/claim", nil, authed))
	if err != nil {
		t.Fatalf("claim request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 on claim, got %d", resp.StatusCode)
	}

	resp, err = app.Test(jsonRequest(t, "POST", "/claim", nil, authed))
	if err != nil {
		t.Fatalf("claim request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusConflict {
		t.Errorf("expected 409 on repeat claim, got %d", resp.StatusCode)
	}
}

func TestRankUnknownUserReturns404(t *testing.T) {
	app, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/users/ghost/rank", nil))
	if err != nil {
		t.Fatalf("rank request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("expected 404 for unknown user, got %d", resp.StatusCode)
	}
}

func TestAdminRoutesRequireRole(t *testing.T) {
	app, db := newTestApp(t)
	testutil.CreateTestUser(t, db, "alice")

	grant := fiber.Map{"username": "alice", "flag_key": "flag1", "points": 25}

	// Authenticated but not admin.
	resp, err := app.Test(jsonRequest(t, "POST", "/admin/unlocks/grant", grant, map[string]string{
		"X-User-ID": "bob",
	}))
	if err != nil {
		t.Fatalf("grant request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("expected 403 without admin role, got %d", resp.StatusCode)
	}

	resp, err = app.Test(jsonRequest(t, "POST", "/admin/unlocks/grant", grant, map[string]string{
		"X-User-ID":    "bob",
		"X-User-Roles": "admin",
	}))
	if err != nil {
		t.Fatalf("grant request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("expected 201 with admin role, got %d", resp.StatusCode)
	}

	// Audit endpoint reports a consistent ledger.
	resp, err = app.Test(jsonRequest(t, "GET", "/admin/scores/audit", nil, map[string]string{
		"X-User-ID":    "bob",
		"X-User-Roles": "admin",
	}))
	if err != nil {
		t.Fatalf("audit request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 on audit, got %d", resp.StatusCode)
	}
	var audit struct {
		Consistent bool `json:"consistent"`
	}
	decodeBody(t, resp, &audit)
	if !audit.Consistent {
		t.Error("expected consistent totals after granted unlock")
	}
}

func TestSearchUsersEndpoint(t *testing.T) {
	app, db := newTestApp(t)
	testutil.CreateTestUser(t, db, "alice")
	testutil.CreateTestUser(t, db, "alina")
	testutil.CreateTestUser(t, db, "bob")

	resp, err := app.Test(httptest.NewRequest("GET", "/users/search?q=ali", nil))
	if err != nil {
		t.Fatalf("search request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 on search, got %d", resp.StatusCode)
	}
	var results []struct {
		Username string `json:"username"`
	}
	decodeBody(t, resp, &results)
	if len(results) != 2 {
		t.Errorf("expected 2 matches for %q, got %d", "ali", len(results))
	}
}
