// Command auditstats prints a summary of the prediction audit table.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/joho/godotenv"

	"github.com/hoopsml/shotpredict/internal/worker"
)

func main() {
	_ = godotenv.Load(".env")

	dsn := os.Getenv("CLICKHOUSE_URL")
	if dsn == "" {
		log.Fatal("CLICKHOUSE_URL is not set")
	}
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		log.Fatal(err)
	}
	conn, err := clickhouse.Open(opts)
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var total uint64
	err = conn.QueryRow(ctx, "SELECT count() FROM "+worker.AuditTable).Scan(&total)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Total audit events: %d\n", total)

	rows, err := conn.Query(ctx, `
		SELECT model_version, outcome, count(), avg(probability), toFloat64(quantile(0.95)(latency_ms))
		FROM `+worker.AuditTable+`
		WHERE timestamp > now() - INTERVAL 1 DAY
		GROUP BY model_version, outcome
		ORDER BY model_version, outcome
	`)
	if err != nil {
		log.Fatal(err)
	}
	defer rows.Close()

	fmt.Println("Last 24h:")
	for rows.Next() {
		var (
			version, outcome string
			n                uint64
			avgProb, p95     float64
		)
		if err := rows.Scan(&version, &outcome, &n, &avgProb, &p95); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("- %-28s %-15s n=%-8d avg_p=%.3f p95_latency=%.1fms\n", version, outcome, n, avgProb, p95)
	}
	if err := rows.Err(); err != nil {
		log.Fatal(err)
	}
}
