package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"trackhub/internal/calendar"
	"trackhub/internal/config"
	"trackhub/internal/tui"
)

var (
	calendarMonth     string
	calendarStart     string
	calendarEnd       string
	calendarWeekStart int
)

var calendarCmd = &cobra.Command{
	Use:   "calendar",
	Short: "Print a month grid as the date picker shows it",
	Long: `Prints the date picker for one month. With --start (and --end) the
selection is highlighted the same way the wizard renders it.`,
	Example: "  trackhub calendar --month 2026-10 --start 2026-10-17 --end 2026-10-19",
	RunE:    runCalendar,
}

func init() {
	calendarCmd.Flags().StringVar(&calendarMonth, "month", "", "Month to show as YYYY-MM (default current month)")
	calendarCmd.Flags().StringVar(&calendarStart, "start", "", "Selected start date, YYYY-MM-DD")
	calendarCmd.Flags().StringVar(&calendarEnd, "end", "", "Selected end date, YYYY-MM-DD (multi-day)")
	calendarCmd.Flags().IntVar(&calendarWeekStart, "week-start", -1, "First weekday column, 0=Sunday (default CALENDAR_WEEK_START)")
	rootCmd.AddCommand(calendarCmd)
}

func runCalendar(cmd *cobra.Command, args []string) error {
	config.LoadEnv()

	weekStart := config.WeekStart()
	if calendarWeekStart >= 0 {
		if calendarWeekStart > 6 {
			return fmt.Errorf("--week-start must be 0-6")
		}
		weekStart = time.Weekday(calendarWeekStart)
	}

	sel := calendar.NewSelector(time.Now, weekStart)
	if calendarMonth != "" {
		t, err := time.Parse("2006-01", calendarMonth)
		if err != nil {
			return fmt.Errorf("invalid --month %q, want YYYY-MM", calendarMonth)
		}
		sel.SetDisplayedMonth(calendar.DateOf(t))
	}

	if calendarStart != "" {
		start, err := calendar.ParseDate(calendarStart)
		if err != nil {
			return err
		}
		sel.SetMultiDay(calendarEnd != "")
		sel.SelectDate(start)
	}
	if calendarEnd != "" {
		if calendarStart == "" {
			return fmt.Errorf("--end needs --start")
		}
		end, err := calendar.ParseDate(calendarEnd)
		if err != nil {
			return err
		}
		sel.SelectDate(end)
	}

	fmt.Fprintln(cmd.OutOrStdout(), tui.RenderCalendar(sel, nil, calendar.DateOf(time.Now()), tui.DefaultStyles()))
	return nil
}
