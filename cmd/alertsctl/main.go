// alertsctl - утилита для локальной разработки: выпуск тестовых токенов
// и просмотр ленты алертов в терминале.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/shenikar/neighborhood_alerts/internal/auth"
	"github.com/shenikar/neighborhood_alerts/internal/models"
	"github.com/shenikar/neighborhood_alerts/pkg/client"
	"github.com/shenikar/neighborhood_alerts/pkg/dashboard"
	"github.com/shenikar/neighborhood_alerts/pkg/logger"
	"github.com/sirupsen/logrus"
)

const usage = `usage:
  alertsctl token -sub <user id> [-role resident|admin] [-ttl 24h]
  alertsctl dashboard [-url http://localhost:8080/api] [-q query] [-sort newest|oldest] [-page 1]`

func main() {
	// .env необязателен
	_ = godotenv.Load()
	log := logger.NewWithOutput(getEnv("LOG_LEVEL", "warn"), os.Stderr)

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "token":
		err = runToken(os.Args[2:], os.Stdout)
	case "dashboard":
		err = runDashboard(os.Args[2:], os.Stdout, log)
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		log.WithError(err).Error("alertsctl failed")
		os.Exit(1)
	}
}

func runToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	sub := fs.String("sub", "", "user id (token subject)")
	role := fs.String("role", string(models.RoleResident), "resident or admin")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *sub == "" {
		return errors.New("-sub is required")
	}
	parsedRole, ok := models.ParseRole(*role)
	if !ok {
		return fmt.Errorf("unknown role %q", *role)
	}
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return errors.New("JWT_SECRET is not set")
	}

	token, err := auth.NewIssuer(secret, os.Getenv("JWT_ISSUER")).Issue(*sub, parsedRole, *ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}

func runDashboard(args []string, out io.Writer, log *logrus.Logger) error {
	fs := flag.NewFlagSet("dashboard", flag.ContinueOnError)
	baseURL := fs.String("url", getEnv("ALERTS_API_URL", "http://localhost:8080/api"), "API base URL")
	search := fs.String("q", "", "search in title, category and location")
	order := fs.String("sort", string(dashboard.Newest), "newest or oldest")
	page := fs.Int("page", 1, "page number")
	timeout := fs.Duration("timeout", 15*time.Second, "request timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	api := client.New(*baseURL, client.NewMemoryStore(os.Getenv("ALERTS_TOKEN")),
		client.WithLogger(log),
		client.WithLogoutHook(func() {
			log.Warn("Session expired. Mint a new token with `alertsctl token` and set ALERTS_TOKEN")
		}),
	)

	board := dashboard.NewBoard(api)
	board.SetSearch(*search)
	board.SetSort(dashboard.ParseSortOrder(*order))

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	if err := board.Refresh(ctx); err != nil {
		if client.IsRetryable(err) {
			return fmt.Errorf("could not load alerts, try again: %w", err)
		}
		return err
	}
	board.SetPage(*page)

	return render(out, board.State())
}

func render(out io.Writer, state dashboard.State) error {
	view := state.View
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CREATED\tSEVERITY\tCATEGORY\tTITLE\tLOCATION")
	for _, a := range view.Page.Items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			a.CreatedAt.Local().Format("02 Jan 15:04"),
			a.Severity,
			a.Category,
			truncate(a.Title, 40),
			truncate(a.LocationLabel, 30),
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	totalPages := max(view.Page.TotalPages, 1)
	_, err := fmt.Fprintf(out, "\npage %d / %d, %d alerts, %d on map\n",
		view.Page.Number, totalPages, view.Page.Total, len(view.Markers))
	return err
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-3]) + "..."
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
