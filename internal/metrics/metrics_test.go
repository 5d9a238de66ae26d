package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(HTTPRequests.WithLabelValues("leaderboard", "success"))
	HTTPRequests.WithLabelValues("leaderboard", "success").Inc()
	after := testutil.ToFloat64(HTTPRequests.WithLabelValues("leaderboard", "success"))

	if after-before != 1 {
		t.Errorf("counter delta = %v, want 1", after-before)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	RowsUpserted.WithLabelValues("closed_positions").Add(2)

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(body), "ingest_rows_upserted_total") {
		t.Error("metrics output should contain ingest_rows_upserted_total")
	}
}
