package main

import (
	"database/sql"
	"log"
	"os"

	_ "github.com/lib/pq"
)

// 快速查看会话表的诊断工具: go run tools/check_sessions.go
func main() {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is not set")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer db.Close()

	var active, total int
	if err := db.QueryRow(`SELECT COUNT(*) FILTER (WHERE is_active), COUNT(*) FROM live_reporting_sessions`).Scan(&active, &total); err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	log.Printf("Sessions: %d total, %d active", total, active)

	rows, err := db.Query(`
		SELECT match_id, COALESCE(last_status, ''), COALESCE(last_score, ''), update_count, error_count, last_update
		FROM live_reporting_sessions
		ORDER BY last_update DESC
		LIMIT 20`)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	defer rows.Close()

	for rows.Next() {
		var matchID, status, score, lastUpdate string
		var updates, errors int
		if err := rows.Scan(&matchID, &status, &score, &updates, &errors, &lastUpdate); err != nil {
			log.Fatalf("Scan failed: %v", err)
		}
		log.Printf("  %-12s %-22s %-7s updates=%-3d errors=%d last=%s", matchID, status, score, updates, errors, lastUpdate)
	}

	var audits int
	if err := db.QueryRow(`SELECT COUNT(*) FROM match_audit`).Scan(&audits); err == nil {
		log.Printf("Audit rows: %d", audits)
	}
}
