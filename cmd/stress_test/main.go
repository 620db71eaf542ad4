package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/cart-checkout/internal/adapter/storage"
	"github.com/rl1809/cart-checkout/internal/config"
	"github.com/rl1809/cart-checkout/internal/core/domain"
)

const stressProductID = 9001

func main() {
	cfg := config.Load()

	baseURL := flag.String("url", "http://localhost"+cfg.HTTPAddr, "checkout service base URL")
	initialStock := flag.Int("stock", 20, "stock of the contested product")
	buyers := flag.Int("buyers", 50, "number of concurrent buyers")
	flag.Parse()

	ctx := context.Background()

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatalf("failed to open mysql: %v", err)
	}
	defer db.Close()

	// Reset the contested product so every run starts from the same stock.
	catalog := storage.NewMySQLAdapter(db).Catalog()
	if _, err := catalog.UpsertProduct(ctx, domain.Product{
		ID:     stressProductID,
		Name:   "Stress Test Item",
		Price:  decimal.RequireFromString("10.00"),
		Stock:  *initialStock,
		Active: true,
	}); err != nil {
		log.Fatalf("failed to reset product: %v", err)
	}

	client := &http.Client{Timeout: 10 * time.Second}

	// Every buyer fills a cart first so the timed phase measures checkout only.
	users := make([]string, *buyers)
	for i := range users {
		users[i] = "stress-" + uuid.NewString()
		status, err := post(client, *baseURL+"/api/v1/cart/items", users[i], "",
			map[string]any{"product_id": stressProductID, "quantity": 1})
		if err != nil || status != http.StatusCreated {
			log.Fatalf("failed to fill cart for %s: status=%d err=%v", users[i], status, err)
		}
	}

	var successCount, soldOutCount, errorCount atomic.Int32
	var wg sync.WaitGroup
	start := time.Now()

	for _, user := range users {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()

			status, err := post(client, *baseURL+"/api/v1/checkout", user, uuid.NewString(),
				map[string]any{"shipping_address": "1 Load Test Way"})
			switch {
			case err == nil && status == http.StatusCreated:
				successCount.Add(1)
			case err == nil && status == http.StatusConflict:
				soldOutCount.Add(1)
			default:
				errorCount.Add(1)
			}
		}(user)
	}

	wg.Wait()
	elapsed := time.Since(start)

	success := successCount.Load()
	soldOut := soldOutCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", *initialStock)
	fmt.Printf("Buyers:           %d\n", *buyers)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Sold out:         %d\n", soldOut)
	fmt.Printf("Errors:           %d\n", errorCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	expected := min(*initialStock, *buyers)
	if int(success) == expected && int(soldOut) == *buyers-expected {
		fmt.Printf("PASS: exactly %d checkouts succeeded\n", expected)
	} else {
		fmt.Printf("FAIL: expected %d success/%d sold out, got %d/%d\n",
			expected, *buyers-expected, success, soldOut)
	}

	var finalStock int
	if err := db.QueryRowContext(ctx, `SELECT stock FROM products WHERE id = ?`, stressProductID).Scan(&finalStock); err != nil {
		log.Fatalf("failed to read final stock: %v", err)
	}
	fmt.Printf("Final Stock:      %d\n", finalStock)

	if finalStock == *initialStock-expected {
		fmt.Println("PASS: stock never oversold")
	} else {
		fmt.Printf("FAIL: expected stock %d, got %d\n", *initialStock-expected, finalStock)
	}
}

func post(client *http.Client, url, userID, idempotencyKey string, body any) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", userID)
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}
