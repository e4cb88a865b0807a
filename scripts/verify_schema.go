package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	_ "modernc.org/sqlite"
)

// verify_schema inspects a journal database and reports whether the tables
// and indexes the fleet writes to are present.
//
//	go run ./scripts/verify_schema.go [path/to/fleet.db]
func main() {
	dbPath := "./data/fleet.db"
	if len(os.Args) > 1 {
		dbPath = os.Args[1]
	}
	fmt.Printf("Verifying journal at: %s\n", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	for _, table := range []string{"trades", "events"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		switch err {
		case nil:
			fmt.Printf("ok: table %s exists\n", table)
		case sql.ErrNoRows:
			log.Fatalf("missing table %s", table)
		default:
			log.Fatalf("query failed: %v", err)
		}
	}

	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='index' AND tbl_name='trades'")
	if err != nil {
		log.Fatalf("index query failed: %v", err)
	}
	defer rows.Close()
	indexes := 0
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			log.Fatalf("scan: %v", err)
		}
		fmt.Printf("ok: index %s\n", name)
		indexes++
	}
	if indexes == 0 {
		log.Fatal("no indexes on trades")
	}

	var trades int
	if err := db.QueryRow("SELECT COUNT(*) FROM trades").Scan(&trades); err != nil {
		log.Fatalf("count trades: %v", err)
	}
	fmt.Printf("trades recorded: %d\n", trades)
	fmt.Println("Schema verification passed")
}
