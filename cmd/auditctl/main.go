package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"google.golang.org/grpc/status"

	"asset-audit/config"
	"asset-audit/internal/database"
	"asset-audit/internal/services/audit/engine"
	"asset-audit/internal/services/audit/export"
	audit "asset-audit/internal/services/audit/handler"
	inventory "asset-audit/internal/services/inventory/handler"
	"asset-audit/internal/utils"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg := config.LoadConfig()
	utils.SetJwtSecret(cfg.Auth.JWTSecret)

	var err error
	switch os.Args[1] {
	case "token":
		err = runToken(cfg, os.Args[2:])
	case "compare":
		err = runCompare(cfg, os.Args[2:])
	case "history":
		err = runHistory(cfg, os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "FAIL: %v\n", err)
		os.Exit(2)
	}
}

func usage() {
	fmt.Println("Usage: auditctl <command> [flags]")
	fmt.Println("  token   --user 1 --username admin --role superadmin --ttl 1h")
	fmt.Println("  compare --location HQ-3F --auditor \"Jane Doe\" --file scans.csv")
	fmt.Println("  history --limit 50 [--csv out.csv]")
}

func runToken(cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	userID := fs.Int64("user", 1, "user id")
	username := fs.String("username", "admin", "username")
	role := fs.String("role", utils.RoleSuperadmin, "role claim")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	_ = fs.Parse(args)

	if cfg.Auth.JWTSecret == "" {
		fmt.Fprintln(os.Stderr, "warning: JWT_SECRET is not set, signing with the development key")
	}
	token, expires, err := utils.GenerateToken(*userID, *username, *role, *ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires %s\n", expires.Format(time.RFC3339))
	return nil
}

func newAuditHandler(cfg config.Config) (*audit.AuditHandler, error) {
	db, err := database.NewConnection(cfg.DB.DSN)
	if err != nil {
		return nil, err
	}
	inv := inventory.NewInventoryHandler(db, nil)
	return audit.NewAuditHandler(db, nil, inv, nil, audit.WithStrictSnapshot(cfg.Audit.StrictSnapshot)), nil
}

func runCompare(cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("compare", flag.ExitOnError)
	location := fs.String("location", "", "location code")
	auditor := fs.String("auditor", "", "auditor name")
	file := fs.String("file", "", "CSV or XLSX file with scanned serials")
	_ = fs.Parse(args)

	if *file == "" {
		return fmt.Errorf("--file is required")
	}
	serials, err := readSerialFile(*file)
	if err != nil {
		return err
	}

	h, err := newAuditHandler(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	resp, err := h.Compare(ctx, audit.CompareRequest{
		Location:    *location,
		Serials:     serials,
		AuditorName: *auditor,
	})
	if err != nil {
		return fmt.Errorf("%s", status.Convert(err).Message())
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		return err
	}
	if !resp.Recorded {
		fmt.Fprintf(os.Stderr, "warning: %s\n", resp.Warning)
	}
	return nil
}

func readSerialFile(path string) ([]string, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return engine.ParseSerialsXLSX(f)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return engine.ParseSerials(string(data)), nil
}

func runHistory(cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	limit := fs.Int("limit", audit.DefaultHistoryLimit, "number of runs")
	csvPath := fs.String("csv", "", "write history CSV to this path")
	_ = fs.Parse(args)

	h, err := newAuditHandler(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	runs, err := h.ListAuditRuns(ctx, *limit, false)
	if err != nil {
		return fmt.Errorf("%s", status.Convert(err).Message())
	}

	if *csvPath == "" {
		for _, run := range runs {
			fmt.Printf("%s  %-12s  %-20s  %d/%d found, %d missing  (%s%%)\n",
				run.Timestamp.Format(time.RFC3339), run.Location, run.AuditorName,
				run.FoundItems, run.TotalItems, run.MissingItems, run.MatchRate().StringFixed(2))
		}
		return nil
	}

	out, err := os.Create(*csvPath)
	if err != nil {
		return err
	}
	defer out.Close()
	if err := export.WriteHistoryCSV(out, runs); err != nil {
		return err
	}
	fmt.Printf("OK: %d runs written to %s\n", len(runs), *csvPath)
	return nil
}
