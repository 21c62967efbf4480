// glowctl is a small CLI over the Glowbook SDK: log in, browse the
// catalog and poke at the cart. Mostly useful for smoke-testing a
// deployment.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	glowbook "github.com/glowbook/glowbook-go"
	"github.com/glowbook/glowbook-go/credential"
	"github.com/glowbook/glowbook-go/internal/config"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := cfg.Logger()

	store, err := credential.NewFileStore(cfg.TokenFile)
	if err != nil {
		return err
	}

	opts := []glowbook.Option{
		glowbook.WithCredentialStore(store),
		glowbook.WithLogger(log),
		glowbook.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	}
	if cfg.NoCache {
		opts = append(opts, glowbook.WithoutCache())
	}
	client, err := glowbook.New(cfg.BaseURL, opts...)
	if err != nil {
		return err
	}

	ctx := context.Background()
	cmd := "salons"
	if len(args) > 0 {
		cmd = args[0]
	}

	switch cmd {
	case "help", "--help", "-h":
		usage()
		return nil
	case "login":
		if !cfg.HasLogin() {
			return fmt.Errorf("set GLOWBOOK_EMAIL and GLOWBOOK_PASSWORD to log in")
		}
		user, err := client.Login(ctx, cfg.Email, cfg.Password)
		if err != nil {
			return err
		}
		fmt.Printf("Logged in as %s (%s)\n", user.Name, user.Email)
		return nil
	case "logout":
		if err := client.Logout(ctx); err != nil {
			return err
		}
		fmt.Println("Logged out.")
		return nil
	case "salons":
		salons, err := client.ListSalons(ctx, glowbook.SalonFilter{})
		if err != nil {
			return err
		}
		for _, s := range salons {
			fmt.Printf("%-10s %-24s %-14s %.1f (%d reviews)\n", s.ID, s.Name, s.City, s.Rating, s.ReviewCount)
		}
		return nil
	case "cart":
		cart, err := client.GetCart(ctx)
		if err != nil {
			return err
		}
		for _, it := range cart.Items {
			fmt.Printf("%dx %-24s %d\n", it.Quantity, it.Name, it.Price*it.Quantity)
		}
		fmt.Printf("Total: %d\n", cart.Total)
		return nil
	case "bookings":
		bookings, err := client.ListBookings(ctx)
		if err != nil {
			return err
		}
		for _, b := range bookings {
			fmt.Printf("%-10s %-24s %-10s %s\n", b.ID, b.SalonName, b.Status, b.StartsAt.Format("2006-01-02 15:04"))
		}
		return nil
	default:
		usage()
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func usage() {
	fmt.Println("Usage: glowctl [command]")
	fmt.Println("Commands:")
	fmt.Println("  login     Authenticate with GLOWBOOK_EMAIL / GLOWBOOK_PASSWORD")
	fmt.Println("  logout    End the current session")
	fmt.Println("  salons    List salons (default)")
	fmt.Println("  cart      Show the current cart")
	fmt.Println("  bookings  List your bookings")
	fmt.Println("Environment:")
	fmt.Println("  GLOWBOOK_API_URL    API base URL")
	fmt.Println("  GLOWBOOK_TOKEN_FILE Token file path (default ~/" + credential.DefaultFileName + ")")
	fmt.Println("  GLOWBOOK_NOCACHE    Disable the response cache")
	fmt.Println("  GLOWBOOK_LOG_LEVEL  trace|debug|info|warn|error")
}
