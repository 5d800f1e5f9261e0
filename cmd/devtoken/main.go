// Command devtoken prints a signed customer identity token for local testing
// of wallet and mixed checkouts:
//
//	JWT_SECRET=... devtoken -customer cust-1 -name "Priya Nair" -email priya@example.com
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/mmynk/salonwise/internal/auth"
	"github.com/mmynk/salonwise/internal/config"
	"github.com/mmynk/salonwise/internal/models"
	"github.com/mmynk/salonwise/pkg/logging"
)

func main() {
	logging.Setup()

	customerID := flag.String("customer", "", "customer id (required)")
	name := flag.String("name", "", "customer name")
	email := flag.String("email", "", "customer email")
	phone := flag.String("phone", "", "customer phone")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	token, err := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTTTL).Generate(models.Identity{
		CustomerID: *customerID,
		Name:       *name,
		Email:      *email,
		Phone:      *phone,
	})
	if err != nil {
		slog.Error("Failed to issue token", "error", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
