package cli

import (
	"context"
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/AI2HU/chatstats/internal/models"
	"github.com/AI2HU/chatstats/internal/router"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "View daily usage statistics",
	Long:  `View per-entity daily message and token usage recorded by the tracker.`,
}

var statsTodayCmd = &cobra.Command{
	Use:   "today",
	Short: "View today's usage per entity",
	RunE:  runStatsToday,
}

var statsEntityCmd = &cobra.Command{
	Use:   "entity [id]",
	Short: "View the full day-by-day history for one entity",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatsEntity,
}

func init() {
	statsCmd.AddCommand(statsTodayCmd)
	statsCmd.AddCommand(statsEntityCmd)
}

func runStatsToday(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	// Read-only snapshot; no aggregator is needed for display.
	rt := router.New(nil, database, nil, 0, 0)

	rows, err := rt.TodaySnapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to read usage: %w", err)
	}

	today := time.Now().UTC().Format(models.DateFormat)

	all, err := database.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to read usage: %w", err)
	}

	if len(all) == 0 {
		fmt.Printf("%sNo usage data recorded yet.%s\n", WarningStyle, Reset)
		return nil
	}

	fmt.Printf("%s📊 Usage for %s%s\n", HeaderStyle, today, Reset)
	fmt.Printf("%s====================%s\n", DimStyle, Reset)
	fmt.Println()

	if len(rows) == 0 {
		fmt.Printf("%sNo chat activity today (%s).%s\n", WarningStyle, today, Reset)
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%sNAME\tUSER\tAI\tPROMPT TOKENS\tDATE%s\n", LabelStyle, Reset)
	fmt.Fprintf(w, "%s────\t────\t──\t─────────────\t────%s\n", DimStyle, Reset)

	for _, row := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			FormatValue(row.EntityName),
			fmt.Sprintf("%s (%d tk)", FormatCount(row.UserMessages), row.UserTokens),
			fmt.Sprintf("%s (%d tk)", FormatCount(row.AIMessages), row.AITokens),
			FormatCount(row.CumulativeTokens),
			FormatMeta(row.Date),
		)
	}

	w.Flush()
	return nil
}

func runStatsEntity(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	entityID := args[0]

	stats, err := database.Get(ctx, entityID)
	if err != nil {
		return fmt.Errorf("failed to get entity stats: %w", err)
	}

	fmt.Printf("%s📊 Usage History: %s%s\n", HeaderStyle, FormatValue(stats.EntityName), Reset)
	fmt.Printf("%s========================%s\n", DimStyle, Reset)
	fmt.Println()

	if len(stats.DailyData) == 0 {
		fmt.Printf("%sNo activity recorded for this entity.%s\n", WarningStyle, Reset)
		return nil
	}

	dates := make([]string, 0, len(stats.DailyData))
	for date := range stats.DailyData {
		dates = append(dates, date)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%sDATE\tUSER\tAI\tPROMPT TOKENS%s\n", LabelStyle, Reset)
	fmt.Fprintf(w, "%s────\t────\t──\t─────────────%s\n", DimStyle, Reset)

	for _, date := range dates {
		bucket := stats.DailyData[date]
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			FormatMeta(date),
			fmt.Sprintf("%s (%d tk)", FormatCount(bucket.UserMessages), bucket.UserTokens),
			fmt.Sprintf("%s (%d tk)", FormatCount(bucket.AIMessages), bucket.AITokens),
			FormatCount(bucket.CumulativeTokens),
		)
	}

	w.Flush()
	return nil
}
