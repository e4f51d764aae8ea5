package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/appminuta/mapa-ventas/internal/auth"
	"github.com/appminuta/mapa-ventas/internal/database"
	"github.com/appminuta/mapa-ventas/internal/inventory"
	"github.com/appminuta/mapa-ventas/internal/snapshots"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func TestSnapshotStreamEmitsGenerationEvents(t *testing.T) {
	db, err := database.Open(database.Options{
		Driver: database.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "stream.db"),
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.AutoMigrate(&inventory.Project{}, &inventory.Unit{}); err != nil {
		t.Fatalf("failed to migrate inventory schema: %v", err)
	}
	available := "Disponible"
	if err := db.Create(&inventory.Project{ID: "p-a", Nombre: "Tower A", Activo: true}).Error; err != nil {
		t.Fatalf("failed to seed project: %v", err)
	}
	if err := db.Create(&inventory.Unit{
		ID:          "u-1",
		ProjectName: "Tower A",
		Status:      &available,
		PriceUSD:    decimal.NewNullDecimal(decimal.NewFromInt(100000)),
	}).Error; err != nil {
		t.Fatalf("failed to seed unit: %v", err)
	}

	repository, err := inventory.NewRepository(inventory.RepositoryConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to construct repository: %v", err)
	}
	dispatcher := NewRealtimeDispatcher()
	service, err := snapshots.NewService(snapshots.ServiceConfig{
		Database:  db,
		Inventory: repository,
		Notifier:  dispatcher,
		Logger:    zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to construct snapshot service: %v", err)
	}

	signingSecret := []byte("test-signing-secret")
	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: signingSecret,
		Issuer:        "supabase",
		Audience:      "authenticated",
	})
	if err != nil {
		t.Fatalf("failed to construct validator: %v", err)
	}
	tokenIssuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: signingSecret,
		Issuer:        "supabase",
		Audience:      "authenticated",
		TokenTTL:      time.Minute,
	})
	if err != nil {
		t.Fatalf("failed to construct token issuer: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		Sessions:  validator,
		Snapshots: service,
		Realtime:  dispatcher,
		Logger:    zap.NewExample(),
	})
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	token, _, err := tokenIssuer.IssueServiceToken(context.Background(), "dashboard")
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	streamRequest, err := http.NewRequest(http.MethodGet, server.URL+"/snapshots/stream?access_token="+token, http.NoBody)
	if err != nil {
		t.Fatalf("failed to construct stream request: %v", err)
	}
	streamResp, err := http.DefaultClient.Do(streamRequest)
	if err != nil {
		t.Fatalf("failed to open stream: %v", err)
	}
	t.Cleanup(func() {
		_ = streamResp.Body.Close()
	})
	if streamResp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected stream status: %d", streamResp.StatusCode)
	}
	streamReader := bufio.NewReader(streamResp.Body)

	deadline := time.Now().Add(5 * time.Second)
	for dispatcher.subscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("stream subscriber was never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	generateReq, err := http.NewRequest(http.MethodPost, server.URL+"/snapshots/generate?tipo=DIARIO", http.NoBody)
	if err != nil {
		t.Fatalf("failed to construct generate request: %v", err)
	}
	generateReq.Header.Set("Authorization", "Bearer "+token)
	generateResp, err := http.DefaultClient.Do(generateReq)
	if err != nil {
		t.Fatalf("generate request failed: %v", err)
	}
	var generated generationPayload
	if err := json.NewDecoder(generateResp.Body).Decode(&generated); err != nil {
		t.Fatalf("failed to decode generate response: %v", err)
	}
	_ = generateResp.Body.Close()
	if generateResp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected generate status: %d", generateResp.StatusCode)
	}
	if generated.Procesados != 1 || len(generated.Proyectos) != 1 || generated.Proyectos[0].Proyecto != "Tower A" {
		t.Fatalf("unexpected generation response: %#v", generated)
	}

	currentEventType := ""
	timeout := time.After(5 * time.Second)
	type readResult struct {
		line string
		err  error
	}
	for {
		resultCh := make(chan readResult, 1)
		go func() {
			line, err := streamReader.ReadString('\n')
			resultCh <- readResult{line: line, err: err}
		}()
		select {
		case <-timeout:
			t.Fatal("timed out waiting for realtime event")
		case res := <-resultCh:
			if res.err != nil {
				t.Fatalf("failed to read stream: %v", res.err)
			}
			line := strings.TrimSpace(res.line)
			if line == "" {
				continue
			}
			if strings.HasPrefix(line, "event:") {
				currentEventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
				continue
			}
			if !strings.HasPrefix(line, "data:") || currentEventType != RealtimeEventSnapshotGenerated {
				continue
			}
			var payload generationPayload
			if err := json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))), &payload); err != nil {
				t.Fatalf("failed to decode event payload: %v", err)
			}
			if payload.Procesados != 1 || payload.Tipo != string(snapshots.KindDaily) || payload.GeneratedAt == nil {
				t.Fatalf("unexpected event payload: %#v", payload)
			}
			return
		}
	}
}
