package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/grantayeye/gamma-budget-planner/internal/budget"
	"github.com/grantayeye/gamma-budget-planner/internal/catalog"
	"github.com/grantayeye/gamma-budget-planner/internal/quote"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping DB: %v", err)
	}

	catalogs, err := catalog.SeedCatalogs()
	if err != nil {
		log.Fatalf("Failed to load embedded catalogs: %v", err)
	}

	for _, c := range catalogs {
		seedCatalog(db, c)
	}
	seedDemoBudget(db, catalogs)

	log.Println("Seeding completed successfully!")
}

func seedDemoBudget(db *sql.DB, catalogs []catalog.Catalog) {
	var residential *catalog.Catalog
	for i := range catalogs {
		if catalogs[i].PropertyType == "residential" {
			residential = &catalogs[i]
			break
		}
	}
	if residential == nil {
		log.Println("Skipping demo budget: no residential catalog in seed data")
		return
	}

	quotes := quote.NewService(quote.ServiceConfig{})
	result := quotes.Price(*residential, quote.SelectionPayload{
		PropertyType: "residential",
		Tiers: map[string]string{
			"network":  "standard",
			"lighting": "good",
			"security": "good",
		},
		Extras: map[string]bool{"structured-wiring": true},
	})

	state, err := json.Marshal(budget.State{Selection: result.Selection, Totals: result.Totals})
	if err != nil {
		log.Printf("Failed to encode demo budget state: %v", err)
		return
	}

	fmt.Println("Seeding demo budget...")
	var id string
	err = db.QueryRow(`
		INSERT INTO budgets (client_name, builder_name, property_type, current_state)
		VALUES ('Demo Client', 'Demo Builder', 'residential', $1)
		RETURNING id;
	`, state).Scan(&id)
	if err != nil {
		log.Printf("Failed to seed demo budget: %v", err)
		return
	}
	_, err = db.Exec(`
		INSERT INTO budget_versions (budget_id, version_number, state, note, pinned)
		VALUES ($1, 1, $2, $3, true)
		ON CONFLICT (budget_id, version_number) DO NOTHING;
	`, id, state, budget.NoteCreated)
	if err != nil {
		log.Printf("Failed to seed demo budget version: %v", err)
	}
}

func seedCatalog(db *sql.DB, c catalog.Catalog) {
	fmt.Printf("Seeding %s catalog...\n", c.PropertyType)
	for _, cat := range c.Categories {
		tiers, err := json.Marshal(cat.Tiers)
		if err != nil {
			log.Printf("Failed to encode tiers for %s/%s: %v", c.PropertyType, cat.ID, err)
			continue
		}
		_, err = db.Exec(`
			INSERT INTO catalog_categories (property_type, id, name, description, icon, size_scale, base_tier_no_scale, is_customized, sort_order, tiers)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (property_type, id) DO UPDATE SET
				name = EXCLUDED.name,
				description = EXCLUDED.description,
				icon = EXCLUDED.icon,
				size_scale = EXCLUDED.size_scale,
				base_tier_no_scale = EXCLUDED.base_tier_no_scale,
				is_customized = EXCLUDED.is_customized,
				sort_order = EXCLUDED.sort_order,
				tiers = EXCLUDED.tiers,
				updated_at = NOW();
		`, c.PropertyType, cat.ID, cat.Name, cat.Description, cat.Icon, cat.SizeScale, cat.BaseTierNoScale, cat.IsCustomized, cat.SortOrder, tiers)
		if err != nil {
			log.Printf("Failed to seed category %s/%s: %v", c.PropertyType, cat.ID, err)
		}
	}

	for _, extra := range c.Extras {
		_, err := db.Exec(`
			INSERT INTO catalog_extras (property_type, id, name, description, price, size_scale, is_default)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (property_type, id) DO UPDATE SET
				name = EXCLUDED.name,
				description = EXCLUDED.description,
				price = EXCLUDED.price,
				size_scale = EXCLUDED.size_scale,
				is_default = EXCLUDED.is_default,
				updated_at = NOW();
		`, c.PropertyType, extra.ID, extra.Name, extra.Description, extra.Price, extra.SizeScale, extra.Default)
		if err != nil {
			log.Printf("Failed to seed extra %s/%s: %v", c.PropertyType, extra.ID, err)
		}
	}
}
