package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alem-hub/gradebook/internal/application/command"
	"github.com/alem-hub/gradebook/internal/application/query"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEMO COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// gradeEntry is one step of the demo scenario.
type gradeEntry struct {
	student string
	grade   int
}

var (
	demoEnrollments = []string{"Alice", "Bob", "Alice"}
	demoGrades      = []gradeEntry{
		{"Alice", 90}, {"Alice", 85}, {"Alice", 95},
		{"Bob", 80}, {"Bob", 90},
		{"Carol", 70},
	}
)

func newDemoCmd(opts *rootOptions) *cobra.Command {
	var top int

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Enroll students, record grades and print the averages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			app, err := newApplication(ctx, opts.cfg, opts.log)
			if err != nil {
				return err
			}
			defer app.Close()

			return runDemo(ctx, app, cmd.OutOrStdout(), top)
		},
	}

	cmd.Flags().IntVar(&top, "top", 0, "also print the top N students from the Redis ranking (needs the Redis projection)")

	return cmd
}

func runDemo(ctx context.Context, app *application, out io.Writer, top int) error {
	for _, id := range demoEnrollments {
		res, err := app.enroll.Handle(ctx, command.EnrollStudentCommand{StudentID: id})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "enroll %s: %s\n", id, res.Outcome)
	}

	for _, g := range demoGrades {
		res, err := app.record.Handle(ctx, command.RecordGradeCommand{StudentID: g.student, Grade: g.grade})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "grade %d for %s: %s\n", g.grade, g.student, res.Outcome)
	}

	roster, err := app.students.Handle(ctx, query.ListStudentsQuery{Sorted: true})
	if err != nil {
		return err
	}
	names := make([]string, 0, len(roster.Students))
	for _, id := range roster.Students {
		names = append(names, id.String())
	}
	fmt.Fprintf(out, "\nstudents (%d): %s\n", roster.TotalCount, strings.Join(names, ", "))

	averages, err := app.averages.Handle(ctx, query.ListAveragesQuery{})
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "averages:")
	for _, entry := range averages.Entries {
		stats, err := app.stats.Handle(ctx, query.GetStudentStatsQuery{StudentID: entry.StudentID.String()})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "  %-10s %6.2f  (%d grades)\n", entry.StudentID, entry.Average, stats.Stats.Count)
	}

	unknown, err := app.average.Handle(ctx, query.GetAverageQuery{StudentID: "Carol"})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "average for Carol: %.2f (enrolled: %t)\n", unknown.Average, unknown.Enrolled)

	if top > 0 {
		return printRanking(ctx, app, out, top)
	}
	return nil
}

func printRanking(ctx context.Context, app *application, out io.Writer, top int) error {
	if app.ranking == nil {
		fmt.Fprintln(out, "ranking: Redis projection is not enabled")
		return nil
	}

	// Async delivery may still be in flight; drain it before reading the projection.
	if err := app.bus.Close(); err != nil {
		return err
	}

	ranked, err := app.ranking.TopByAverage(ctx, top)
	if err != nil {
		return fmt.Errorf("failed to read ranking: %w", err)
	}

	fmt.Fprintf(out, "top %d by average:\n", top)
	for _, r := range ranked {
		fmt.Fprintf(out, "  %d. %-10s %6.2f\n", r.Rank, r.StudentID, r.Average)
	}
	return nil
}
