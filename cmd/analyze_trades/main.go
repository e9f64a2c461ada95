package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"trade-journal/config"
	"trade-journal/internal/analytics"
	"trade-journal/internal/journal"
	"trade-journal/internal/vault"

	"github.com/joho/godotenv"
)

func main() {
	exe, _ := os.Executable()
	exeDir := filepath.Dir(exe)

	// Try multiple locations for .env
	godotenv.Load()
	godotenv.Load(filepath.Join(exeDir, ".env"))
	godotenv.Load(filepath.Join(exeDir, "..", "..", ".env"))

	tz := flag.String("tz", "Local", "time zone for weekday and hour buckets")
	perTrade := flag.Bool("trades", false, "print the quality score of every trade")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("❌ Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	loc, err := time.LoadLocation(*tz)
	if err != nil {
		fmt.Printf("❌ Unknown time zone %q\n", *tz)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	client := journal.NewClient(cfg.APIConfig.BaseURL, cfg.APIConfig.Timeout, nil)

	user, err := signIn(ctx, client, cfg)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}

	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("📊 TRADE JOURNAL ANALYSIS: %s\n", user.Name)
	fmt.Println(strings.Repeat("=", 80))

	fmt.Println("\n🔄 Fetching trade history...")
	trades, err := client.AllTrades(ctx, user.ID)
	if err != nil {
		fmt.Printf("❌ Failed to fetch trades: %v\n", err)
		os.Exit(1)
	}
	if len(trades) == 0 {
		fmt.Println("\n❌ No trades found")
		return
	}

	stats := analytics.Compute(trades, loc)

	fmt.Printf("   %d trades (%d open)\n", stats.TotalTrades, stats.OpenTrades)
	fmt.Printf("\n💰 Net profit:     $%+.2f\n", stats.NetProfit)
	fmt.Printf("📈 Win rate:       %.1f%% (%d W / %d L / %d BE)\n", stats.WinRate, stats.Wins, stats.Losses, stats.Breakeven)
	fmt.Printf("⚖️  Profit factor:  %.2f\n", stats.ProfitFactor)
	fmt.Printf("🟢 Average win:    $%.2f (largest $%.2f)\n", stats.AverageWin, stats.LargestWin)
	fmt.Printf("🔴 Average loss:   $%.2f (largest $%.2f)\n", stats.AverageLoss, stats.LargestLoss)
	fmt.Printf("📉 Max drawdown:   $%.2f (%.1f%%)\n", stats.MaxDrawdown, stats.MaxDrawdownPercent)
	fmt.Printf("🔥 Streaks:        best %d wins, worst %d losses, current %+d\n",
		stats.LongestWinStreak, stats.LongestLossStreak, stats.CurrentStreak)
	fmt.Printf("⭐ Average score:  %.1f\n", stats.AverageScore)

	printBuckets("TRADE PERFORMANCE BY SYMBOL", stats.BySymbol)
	printBuckets("TRADE PERFORMANCE BY WEEKDAY", stats.ByWeekday)

	if *perTrade {
		printScores(trades)
	}
}

// signIn uses JOURNAL_TOKEN when set, otherwise the stored credentials
func signIn(ctx context.Context, client *journal.Client, cfg *config.Config) (*journal.User, error) {
	if token := os.Getenv("JOURNAL_TOKEN"); token != "" {
		client.SetTokenSource(journal.StaticToken(token))
		user, err := client.Me(ctx)
		if err != nil {
			return nil, fmt.Errorf("token rejected: %w", err)
		}
		return user, nil
	}

	email, password := os.Getenv("JOURNAL_EMAIL"), os.Getenv("JOURNAL_PASSWORD")
	if email == "" {
		vc, err := vault.NewClient(cfg.VaultConfig)
		if err != nil {
			return nil, err
		}
		creds, err := vc.Credentials(ctx)
		if err != nil {
			return nil, fmt.Errorf("JOURNAL_TOKEN or JOURNAL_EMAIL/JOURNAL_PASSWORD required: %w", err)
		}
		email, password = creds.Email, creds.Password
	}

	resp, err := client.Login(ctx, email, password)
	if err != nil {
		return nil, fmt.Errorf("sign-in failed: %w", err)
	}
	client.SetTokenSource(journal.StaticToken(resp.Token))
	return &resp.User, nil
}

func printBuckets(title string, buckets []analytics.Bucket) {
	if len(buckets) == 0 {
		return
	}
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("📈 " + title)
	fmt.Println(strings.Repeat("=", 80))

	fmt.Println("┌──────────────┬────────┬─────────┬──────────────┬──────────┐")
	fmt.Println("│ Key          │ Trades │ Winners │ Net PnL      │ Win Rate │")
	fmt.Println("├──────────────┼────────┼─────────┼──────────────┼──────────┤")
	for _, b := range buckets {
		emoji := "🟢"
		if b.NetProfit < 0 {
			emoji = "🔴"
		}
		fmt.Printf("│ %s %-10s │ %6d │ %7d │ %+12.2f │ %7.1f%% │\n",
			emoji, truncate(b.Key, 10), b.Trades, b.Wins, b.NetProfit, b.WinRate)
	}
	fmt.Println("└──────────────┴────────┴─────────┴──────────────┴──────────┘")
}

func printScores(trades []journal.Trade) {
	sorted := append([]journal.Trade(nil), trades...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].OpenTime.Before(sorted[j].OpenTime)
	})

	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("⭐ QUALITY SCORES")
	fmt.Println(strings.Repeat("=", 80))
	for _, t := range sorted {
		score := analytics.QualityScore(t)
		fmt.Printf("   %s  %-10s %-4s %+10.2f  %3d  %s\n",
			t.OpenTime.Format("2006-01-02 15:04"), truncate(t.Symbol, 10), t.Side, t.NetProfit, score, analytics.ScoreGrade(score))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
