package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/consensuslabs/warehouse-migrate/catalog"
	"github.com/consensuslabs/warehouse-migrate/internal/logger"
	"github.com/consensuslabs/warehouse-migrate/migrate"
	"github.com/consensuslabs/warehouse-migrate/testhelper"
	"github.com/consensuslabs/warehouse-migrate/warehouse"
)

type noopMigrator struct{}

func (noopMigrator) Up(ctx context.Context, client warehouse.Client, datasetID string) error {
	return nil
}

func (noopMigrator) Down(ctx context.Context, client warehouse.Client, datasetID string) error {
	return nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *testhelper.FakeWarehouse) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	fake := testhelper.NewFakeWarehouse("analytics")
	engine, err := migrate.New(migrate.Config{
		Client:    fake,
		DatasetID: "analytics",
		Source: catalog.NewList(
			catalog.Script{Name: "001_init", FileName: "001_init.sql", Migrator: noopMigrator{}},
			catalog.Script{Name: "002_person", FileName: "002_person.sql", Migrator: noopMigrator{}},
		),
		Logger: logger.NewNopLogger(),
	})
	if err != nil {
		t.Fatalf("failed to build engine: %v", err)
	}

	if _, err := engine.Run(context.Background()); err != nil {
		t.Fatalf("seed run failed: %v", err)
	}

	router := gin.New()
	NewHandler(engine, logger.NewNopLogger()).RegisterRoutes(router)
	return router, fake
}

func doGet(t *testing.T, router *gin.Engine, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	router.ServeHTTP(w, req)

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	return w, body
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)
	w, body := doGet(t, router, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %v", body["status"])
	}
}

func TestAppliedMigrationsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	t.Run("All Applied", func(t *testing.T) {
		w, body := doGet(t, router, "/api/v1/migrations")
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		applied, ok := body["applied"].([]interface{})
		if !ok || len(applied) != 2 {
			t.Fatalf("expected 2 applied migrations, got %v", body["applied"])
		}
		if applied[0] != "001_init" {
			t.Errorf("expected 001_init first, got %v", applied[0])
		}
	})

	t.Run("Batch Filter", func(t *testing.T) {
		w, body := doGet(t, router, "/api/v1/migrations?batch=2")
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		if applied, ok := body["applied"].([]interface{}); ok && len(applied) != 0 {
			t.Errorf("expected empty batch 2, got %v", applied)
		}
	})

	t.Run("Bad Batch Parameter", func(t *testing.T) {
		w, _ := doGet(t, router, "/api/v1/migrations?batch=soon")
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", w.Code)
		}
	})
}

func TestMigrationFilesEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)
	w, body := doGet(t, router, "/api/v1/migrations/files")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	files, ok := body["files"].([]interface{})
	if !ok || len(files) != 2 {
		t.Fatalf("expected 2 files, got %v", body["files"])
	}
}
