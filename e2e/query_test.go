package e2e

import (
	"net/http"
	"testing"
)

// seedJobs creates three email jobs and one report job.
func seedJobs(t *testing.T, ta *testApp) []string {
	t.Helper()
	return []string{
		createJob(t, ta, `{"type":"email","to":"billing@example.com","subject":"invoice"}`),
		createJob(t, ta, `{"type":"email","to":"ops@example.com"}`),
		createJob(t, ta, `{"type":"report","format":"csv"}`),
		createJob(t, ta, `{"type":"email","to":"billing@example.com","subject":"reminder"}`),
	}
}

func rangeIDs(t *testing.T, ta *testApp, path string) []string {
	t.Helper()
	resp, err := doRequest(ta.app, http.MethodGet, path, "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: expected 200, got %d: %s", path, resp.StatusCode, readBody(t, resp))
	}
	var ids []string
	for _, item := range parseJSONArray(t, resp) {
		job := item.(map[string]interface{})
		ids = append(ids, job["id"].(string))
	}
	return ids
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRange(t *testing.T) {
	ta := setupApp(t)
	ids := seedJobs(t, ta)

	if _, err := doAuthRequest(t, ta.app, http.MethodPut, "/job/"+ids[1]+"/state/active", ""); err != nil {
		t.Fatalf("request failed: %v", err)
	}

	tests := []struct {
		path string
		want []string
	}{
		{"/jobs/0..-1", ids},
		{"/jobs/0..1", ids[:2]},
		{"/jobs/0..1/desc", []string{ids[1], ids[0]}},
		{"/jobs/inactive/0..-1", []string{ids[0], ids[2], ids[3]}},
		{"/jobs/active/0..10", []string{ids[1]}},
		{"/jobs/email/inactive/0..-1/desc", []string{ids[3], ids[0]}},
		{"/jobs/report/inactive/0..-1", []string{ids[2]}},
		{"/jobs/sms/inactive/0..-1", nil},
		{"/jobs/10..20", nil},
	}

	for _, tt := range tests {
		got := rangeIDs(t, ta, tt.path)
		if !equalIDs(got, tt.want) {
			t.Errorf("GET %s = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestRange_Malformed(t *testing.T) {
	ta := setupApp(t)

	for _, path := range []string{
		"/jobs/0..abc",
		"/jobs/paused/0..1",
		"/jobs/0..1/sideways",
		"/jobs/inactive",
	} {
		resp, err := doRequest(ta.app, http.MethodGet, path, "", nil)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		assertStatus(t, resp, http.StatusBadRequest)
		if code := errorCode(t, parseJSON(t, resp)); code != "BAD_REQUEST" {
			t.Errorf("GET %s: expected BAD_REQUEST, got %s", path, code)
		}
	}

	if n := ta.store.calls.Load(); n != 0 {
		t.Errorf("expected malformed ranges rejected before the store, got %d calls", n)
	}
}

func TestStats(t *testing.T) {
	ta := setupApp(t)
	ids := seedJobs(t, ta)
	setOutput(t, ta, ids[2], map[string]interface{}{"rows": 10})

	resp, err := doRequest(ta.app, http.MethodGet, "/stats", "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	stats := parseJSON(t, resp)
	want := map[string]float64{
		"inactiveCount": 3,
		"completeCount": 1,
		"activeCount":   0,
		"failedCount":   0,
		"delayedCount":  0,
		"workTime":      0,
	}
	if len(stats) != len(want) {
		t.Errorf("expected %d metrics, got %v", len(want), stats)
	}
	for k, v := range want {
		if stats[k] != v {
			t.Errorf("%s = %v, want %v", k, stats[k], v)
		}
	}
}

func TestJobTypes(t *testing.T) {
	ta := setupApp(t)

	resp, _ := doRequest(ta.app, http.MethodGet, "/job/types", "", nil)
	assertStatus(t, resp, http.StatusOK)
	if types := parseJSONArray(t, resp); len(types) != 0 {
		t.Errorf("expected no types on an empty queue, got %v", types)
	}

	seedJobs(t, ta)

	resp, _ = doRequest(ta.app, http.MethodGet, "/job/types", "", nil)
	types := parseJSONArray(t, resp)
	if len(types) != 2 || types[0] != "email" || types[1] != "report" {
		t.Errorf("expected [email report], got %v", types)
	}
}

func TestSearch(t *testing.T) {
	ta := setupApp(t)
	ids := seedJobs(t, ta)

	tests := []struct {
		query string
		want  []string
	}{
		{"billing", []string{ids[0], ids[3]}},
		{"billing+invoice", []string{ids[0]}},
		{"csv", []string{ids[2]}},
		{"nothing-matches-this", nil},
	}

	for _, tt := range tests {
		resp, err := doRequest(ta.app, http.MethodGet, "/search?q="+tt.query, "", nil)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		assertStatus(t, resp, http.StatusOK)

		var got []string
		for _, id := range parseJSONArray(t, resp) {
			got = append(got, id.(string))
		}
		if !equalIDs(got, tt.want) {
			t.Errorf("search %q = %v, want %v", tt.query, got, tt.want)
		}
	}
}
