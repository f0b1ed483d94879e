//go:build integration

package firestore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"testing"
	"time"

	pconfig "github.com/craftline/api/internal/platform/config"
	pfirestore "github.com/craftline/api/internal/platform/firestore"
	"github.com/craftline/api/internal/repositories"
)

func TestProductRepositoryStockIntegration(t *testing.T) {
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}

	ensureDockerDaemon(t)

	port := freePort(t)
	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	containerID := startFirestoreEmulator(t, port)
	t.Cleanup(func() { stopContainer(containerID) })

	waitForEndpoint(t, endpoint, 30*time.Second)

	cfg := pconfig.FirestoreConfig{
		ProjectID:    "products-test",
		EmulatorHost: endpoint,
	}

	provider := pfirestore.NewProvider(cfg)
	t.Cleanup(func() {
		_ = provider.Close(context.Background())
	})

	repo, err := NewProductRepository(provider)
	if err != nil {
		t.Fatalf("new product repository: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	client, err := provider.Client(ctx)
	if err != nil {
		t.Fatalf("provider client: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	seed := func(id string, qty int, tracked bool, active bool) {
		doc := map[string]any{
			"artisanId":      "artisan-1",
			"title":          "Handwoven Basket",
			"category":       "home",
			"price":          int64(4500),
			"currency":       "INR",
			"stockQuantity":  qty,
			"trackInventory": tracked,
			"totalSold":      0,
			"active":         active,
			"createdAt":      now,
			"updatedAt":      now,
		}
		if _, err := client.Collection(productsCollection).Doc(id).Set(ctx, doc); err != nil {
			t.Fatalf("seed product %s: %v", id, err)
		}
	}

	seed("prod-1", 5, true, true)
	seed("prod-2", 2, true, true)
	seed("prod-3", 0, true, false)

	result, err := repo.DeductStock(ctx, repositories.StockDeductionRequest{
		Lines: []repositories.StockLine{
			{ProductID: "prod-1", Quantity: 3},
			{ProductID: "prod-2", Quantity: 1},
		},
		OrderRef: "orders/o-1",
		Now:      now,
	})
	if err != nil {
		t.Fatalf("deduct stock: %v", err)
	}
	if got := result.Stocks["prod-1"].Quantity; got != 2 {
		t.Fatalf("expected prod-1 quantity 2, got %d", got)
	}
	if got := result.Stocks["prod-2"].Quantity; got != 1 {
		t.Fatalf("expected prod-2 quantity 1, got %d", got)
	}

	var stockErr *repositories.StockError

	// A multi-line deduction with one failing line must leave all stock untouched.
	_, err = repo.DeductStock(ctx, repositories.StockDeductionRequest{
		Lines: []repositories.StockLine{
			{ProductID: "prod-1", Quantity: 1},
			{ProductID: "prod-2", Quantity: 5},
		},
		OrderRef: "orders/o-2",
		Now:      now.Add(time.Second),
	})
	if err == nil {
		t.Fatalf("expected insufficient stock error")
	}
	if !errors.As(err, &stockErr) || stockErr.Code != repositories.StockErrorInsufficient {
		t.Fatalf("expected insufficient stock code, got %v", err)
	}

	untouched, err := repo.FindByID(ctx, "prod-1")
	if err != nil {
		t.Fatalf("find prod-1: %v", err)
	}
	if untouched.Inventory.Quantity != 2 {
		t.Fatalf("expected prod-1 quantity unchanged at 2, got %d", untouched.Inventory.Quantity)
	}

	stockErr = nil
	_, err = repo.DeductStock(ctx, repositories.StockDeductionRequest{
		Lines:    []repositories.StockLine{{ProductID: "prod-3", Quantity: 1}},
		OrderRef: "orders/o-3",
		Now:      now,
	})
	if err == nil {
		t.Fatalf("expected item unavailable error")
	}
	if !errors.As(err, &stockErr) || stockErr.Code != repositories.StockErrorItemUnavailable {
		t.Fatalf("expected item unavailable code, got %v", err)
	}

	stockErr = nil
	_, err = repo.DeductStock(ctx, repositories.StockDeductionRequest{
		Lines:    []repositories.StockLine{{ProductID: "prod-missing", Quantity: 1}},
		OrderRef: "orders/o-4",
		Now:      now,
	})
	if err == nil {
		t.Fatalf("expected product not found error")
	}
	if !errors.As(err, &stockErr) || stockErr.Code != repositories.StockErrorProductNotFound {
		t.Fatalf("expected product not found code, got %v", err)
	}

	restored, err := repo.RestoreStock(ctx, repositories.StockRestoreRequest{
		Lines: []repositories.StockLine{
			{ProductID: "prod-1", Quantity: 3},
			{ProductID: "prod-2", Quantity: 1},
		},
		OrderRef: "orders/o-1",
		Reason:   "order_cancelled",
		Now:      now.Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("restore stock: %v", err)
	}
	if got := restored.Stocks["prod-1"].Quantity; got != 5 {
		t.Fatalf("expected prod-1 quantity 5 after restore, got %d", got)
	}
	if got := restored.Stocks["prod-2"].Quantity; got != 2 {
		t.Fatalf("expected prod-2 quantity 2 after restore, got %d", got)
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	addr, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unable to allocate port: %v", err)
	}
	defer addr.Close()
	return addr.Addr().(*net.TCPAddr).Port
}

func startFirestoreEmulator(t *testing.T, port int) string {
	t.Helper()
	args := []string{
		"run", "-d", "--rm",
		"-p", fmt.Sprintf("%d:8080", port),
		firestoreEmulatorImage,
		"gcloud", "beta", "emulators", "firestore", "start",
		"--host-port=0.0.0.0:8080",
		"--quiet",
	}

	cmd := exec.Command("docker", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("failed to start firestore emulator: %v - %s", err, string(out))
	}
	id := strings.TrimSpace(string(out))
	if id == "" {
		t.Fatalf("docker returned empty container id")
	}
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}

func ensureDockerDaemon(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "docker", "info")
	if err := cmd.Run(); err != nil {
		t.Fatalf("docker daemon not available: %v", err)
	}
}

func stopContainer(id string) {
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "docker", "stop", id)
	_ = cmd.Run()
}

func waitForEndpoint(t *testing.T, endpoint string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", endpoint, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatalf("firestore emulator at %s did not become ready within %s", endpoint, timeout)
}

const firestoreEmulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"
