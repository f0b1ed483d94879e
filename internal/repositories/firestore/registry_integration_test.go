//go:build integration

package firestore

import (
	"context"
	"fmt"
	"os/exec"
	"testing"
	"time"

	domain "github.com/craftline/api/internal/domain"
	pconfig "github.com/craftline/api/internal/platform/config"
	pfirestore "github.com/craftline/api/internal/platform/firestore"
	"github.com/craftline/api/internal/repositories"
)

// Exercises the transactional boundary around stock mutation plus order write:
// both commit together, and a failed order write rolls the deduction back.
func TestRegistryRunInTxIntegration(t *testing.T) {
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
		ProjectID:    "registry-test",
		EmulatorHost: endpoint,
	}

	provider := pfirestore.NewProvider(cfg)
	t.Cleanup(func() {
		_ = provider.Close(context.Background())
	})

	registry, err := NewRegistry(provider)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	client, err := provider.Client(ctx)
	if err != nil {
		t.Fatalf("provider client: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	seed := map[string]any{
		"artisanId":      "artisan-1",
		"title":          "Hand Thrown Mug",
		"category":       "kitchen",
		"price":          int64(900),
		"currency":       "INR",
		"stockQuantity":  5,
		"trackInventory": true,
		"totalSold":      0,
		"active":         true,
		"createdAt":      now,
		"updatedAt":      now,
	}
	if _, err := client.Collection(productsCollection).Doc("prod-1").Set(ctx, seed); err != nil {
		t.Fatalf("seed product: %v", err)
	}

	order := domain.Order{
		ID:          "ord-1",
		OrderNumber: "CL-20260315-001",
		BuyerID:     "buyer-1",
		Status:      domain.OrderStatusPending,
		Items: []domain.OrderLineItem{
			{ProductID: "prod-1", ArtisanID: "artisan-1", Title: "Hand Thrown Mug", Quantity: 2, UnitPrice: 900, Subtotal: 1800},
		},
		Totals:    domain.OrderTotals{Subtotal: 1800, Total: 1800},
		CreatedAt: now,
		UpdatedAt: now,
	}

	deduction := repositories.StockDeductionRequest{
		Lines:    []repositories.StockLine{{ProductID: "prod-1", Quantity: 2}},
		OrderRef: order.ID,
		Now:      now,
	}

	err = registry.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := registry.Products().DeductStock(txCtx, deduction); err != nil {
			return err
		}
		return registry.Orders().Insert(txCtx, order)
	})
	if err != nil {
		t.Fatalf("run in tx: %v", err)
	}

	product, err := registry.Products().FindByID(ctx, "prod-1")
	if err != nil {
		t.Fatalf("find product: %v", err)
	}
	if product.Inventory.Quantity != 3 {
		t.Fatalf("expected quantity 3 after deduction, got %d", product.Inventory.Quantity)
	}
	if _, err := registry.Orders().FindByID(ctx, order.ID); err != nil {
		t.Fatalf("order should exist after commit: %v", err)
	}

	// Inserting the same order again must fail and roll the deduction back.
	err = registry.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := registry.Products().DeductStock(txCtx, deduction); err != nil {
			return err
		}
		return registry.Orders().Insert(txCtx, order)
	})
	if err == nil {
		t.Fatal("expected duplicate order insert to fail the transaction")
	}

	product, err = registry.Products().FindByID(ctx, "prod-1")
	if err != nil {
		t.Fatalf("find product after rollback: %v", err)
	}
	if product.Inventory.Quantity != 3 {
		t.Fatalf("expected rollback to keep quantity 3, got %d", product.Inventory.Quantity)
	}
}
