package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegistry(t *testing.T) {
	if Registry != prometheus.DefaultRegisterer {
		t.Error("Registry should be the default Prometheus registerer")
	}
	if Gatherer != prometheus.DefaultGatherer {
		t.Error("Gatherer should be the default Prometheus gatherer")
	}
}

func TestHandler_ServesBuildInfo(t *testing.T) {
	SetBuildInfo("1.2.3")
	SetBuildInfo("1.2.4")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	text := string(body)

	if !strings.Contains(text, `bc_build_info{version="1.2.4"} 1`) {
		t.Errorf("missing current build info in output")
	}
	if strings.Contains(text, `version="1.2.3"`) {
		t.Errorf("stale build info still exported")
	}
}
