package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"

	"consultation-relay/internal/booking"
	"consultation-relay/internal/config"
	"consultation-relay/internal/database"
)

func main() {
	status := flag.String("status", "", "Only show bookings with this status")
	dueOnly := flag.Bool("due", false, "Only show bookings inside the reminder window")
	sweep := flag.Bool("sweep", false, "Run one reminder sweep before listing")
	noColor := flag.Bool("no-color", false, "Disable coloured output")
	flag.Parse()

	if err := run(*status, *dueOnly, *sweep, !*noColor); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(status string, dueOnly, sweep, colours bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logs.GetLoggerFromString(cfg.LogLevel)
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ReminderInterval)
	defer cancel()

	store, closeStore, err := database.OpenStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	scheduler := booking.NewScheduler(store, booking.NewNotifier(cfg.NotifierURL, log), booking.SchedulerConfig{
		Interval:  cfg.ReminderInterval,
		Lead:      cfg.ReminderLead,
		Tolerance: cfg.ReminderTolerance,
		Location:  loc,
	}, log)

	if sweep {
		result, err := scheduler.Sweep(ctx)
		if err != nil {
			return fmt.Errorf("sweep: %w", err)
		}
		fmt.Printf("Sweep: scanned %d, due %d, sent %d, failed %d\n", result.Scanned, result.Due, result.Sent, result.Failed)
	}

	bookings, err := store.List(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	bookings = lo.Filter(bookings, func(b booking.Booking, _ int) bool {
		if status != "" && string(b.Status) != status {
			return false
		}
		if dueOnly {
			_, due := scheduler.Due(b, now)
			return due
		}
		return true
	})
	booking.SortByAppointment(bookings)

	render(os.Stdout, bookings, scheduler, now, colours)
	return nil
}

func render(w io.Writer, bookings []booking.Booking, scheduler *booking.Scheduler, now time.Time, colours bool) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"ID", "Date", "Time", "Specialist", "Client", "Phone", "Status", "Reminder"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)

	for _, b := range bookings {
		table.Append([]string{
			b.ID,
			b.Date,
			b.Time,
			b.SpecialistName,
			b.ClientName,
			b.PhoneNumber,
			paint(statusStyle(b.Status), string(b.Status), colours),
			reminderCell(b, scheduler, now, colours),
		})
	}
	table.Render()
	fmt.Fprintf(w, "%d booking(s)\n", len(bookings))
}

func reminderCell(b booking.Booking, scheduler *booking.Scheduler, now time.Time, colours bool) string {
	if b.ReminderSent {
		sent := "sent"
		if b.ReminderSentAt != nil {
			sent += " " + b.ReminderSentAt.Local().Format("2006-01-02 15:04")
		}
		return paint(color.New(color.FgGreen), sent, colours)
	}
	if _, due := scheduler.Due(b, now); due {
		return paint(color.New(color.FgYellow, color.OpBold), "due", colours)
	}
	return "-"
}

func statusStyle(status booking.Status) color.Style {
	switch status {
	case booking.StatusConfirmed, booking.StatusCompleted:
		return color.New(color.FgGreen)
	case booking.StatusCancelled:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgCyan)
	}
}

func paint(style color.Style, s string, colours bool) string {
	if !colours {
		return s
	}
	return style.Render(s)
}
