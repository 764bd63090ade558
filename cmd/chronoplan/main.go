package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/chronoplan/internal/profile"
	"github.com/hrygo/chronoplan/server"
	"github.com/hrygo/chronoplan/server/scheduler/availability"
	"github.com/hrygo/chronoplan/server/scheduler/recurrence"
	"github.com/hrygo/chronoplan/server/timezone"
	"github.com/hrygo/chronoplan/store"
	"github.com/hrygo/chronoplan/store/db"
)

const version = "0.1.0"

var (
	rootCmd = &cobra.Command{
		Use:   "chronoplan",
		Short: "Calendar planning server: recurring events, busy time and free slots.",
		Run: func(_ *cobra.Command, _ []string) {
			serve()
		},
	}

	expandCmd = &cobra.Command{
		Use:   "expand",
		Short: "Print the occurrences of a recurring event within a window.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExpand(cmd)
		},
	}

	slotsCmd = &cobra.Command{
		Use:   "slots",
		Short: "Print free work-time slots around busy intervals.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSlots(cmd)
		},
	}
)

func newProfile() *profile.Profile {
	p := &profile.Profile{
		Mode:     viper.GetString("mode"),
		Addr:     viper.GetString("addr"),
		Port:     viper.GetInt("port"),
		Data:     viper.GetString("data"),
		Driver:   viper.GetString("driver"),
		DSN:      viper.GetString("dsn"),
		Timezone: viper.GetString("timezone"),
		Version:  version,
	}
	p.FromEnv()
	return p
}

func serve() {
	instanceProfile := newProfile()
	if err := instanceProfile.Validate(); err != nil {
		slog.Error("invalid profile", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	dbDriver, err := db.NewDBDriver(instanceProfile)
	if err != nil {
		cancel()
		slog.Error("failed to create db driver", "error", err)
		return
	}

	storeInstance := store.New(dbDriver, instanceProfile)
	if err := storeInstance.Migrate(ctx); err != nil {
		cancel()
		slog.Error("failed to migrate", "error", err)
		return
	}

	s, err := server.NewServer(ctx, instanceProfile, storeInstance)
	if err != nil {
		cancel()
		slog.Error("failed to create server", "error", err)
		return
	}

	c := make(chan os.Signal, 1)
	// Trigger graceful shutdown on SIGINT or SIGTERM.
	// The default signal sent by the `kill` command is SIGTERM,
	// which is taken as the graceful shutdown signal for many systems, eg., Kubernetes, Gunicorn.
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	if err := s.Start(ctx); err != nil {
		cancel()
		slog.Error("failed to start server", "error", err)
		return
	}

	printGreetings(instanceProfile)

	go func() {
		<-c
		s.Shutdown(ctx)
		cancel()
	}()

	// Wait for CTRL-C.
	<-ctx.Done()
}

func runExpand(cmd *cobra.Command) error {
	loc, err := newProfile().Location()
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	values := map[string]time.Time{}
	for _, name := range []string{"start", "end", "from", "to"} {
		raw, _ := flags.GetString(name)
		t, err := parseFlagTime(raw, loc)
		if err != nil {
			return fmt.Errorf("--%s: %w", name, err)
		}
		values[name] = t
	}
	rawPattern, _ := flags.GetString("pattern")
	pattern, err := recurrence.ParsePattern(rawPattern)
	if err != nil {
		return err
	}
	title, _ := flags.GetString("title")

	def := &recurrence.Definition{
		ID:          1,
		Title:       title,
		StartDate:   values["start"],
		EndDate:     values["end"],
		IsRecurring: pattern.Repeats(),
		Pattern:     pattern,
	}
	if raw, _ := flags.GetString("until"); raw != "" {
		until, err := parseFlagTime(raw, loc)
		if err != nil {
			return fmt.Errorf("--until: %w", err)
		}
		def.RecurrenceEndDate = &until
	}
	maxInstances, _ := flags.GetInt("max")

	result, err := recurrence.NewEngine(recurrence.Config{MaxInstances: maxInstances}).Expand(def, values["from"], values["to"])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, instance := range result.Instances {
		fmt.Fprintf(out, "%s\t%s\n", timezone.FormatSpan(instance.StartDate, instance.EndDate, instance.AllDay, loc), instance.Title)
	}
	if result.Truncated {
		fmt.Fprintf(out, "(truncated after %d occurrences)\n", len(result.Instances))
	}
	return nil
}

func runSlots(cmd *cobra.Command) error {
	p := newProfile()
	loc, err := p.Location()
	if err != nil {
		return err
	}
	workDays, err := p.ParseWorkDays()
	if err != nil {
		return err
	}
	engine, err := availability.NewEngine(availability.Config{
		Schedule: availability.WorkSchedule{
			Days:      workDays,
			StartHour: p.WorkStartHour,
			EndHour:   p.WorkEndHour,
			Location:  loc,
		},
		HorizonDays: p.HorizonDays,
	})
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	start, end := engine.Horizon(time.Now())
	if raw, _ := flags.GetString("from"); raw != "" {
		if start, err = parseFlagTime(raw, loc); err != nil {
			return fmt.Errorf("--from: %w", err)
		}
	}
	if raw, _ := flags.GetString("to"); raw != "" {
		if end, err = parseFlagTime(raw, loc); err != nil {
			return fmt.Errorf("--to: %w", err)
		}
	}

	var busy []availability.BusyInterval
	rawBusy, _ := flags.GetStringArray("busy")
	for _, raw := range rawBusy {
		from, to, ok := strings.Cut(raw, "/")
		if !ok {
			return fmt.Errorf("--busy %q: expected start/end", raw)
		}
		busyStart, err := parseFlagTime(from, loc)
		if err != nil {
			return fmt.Errorf("--busy %q: %w", raw, err)
		}
		busyEnd, err := parseFlagTime(to, loc)
		if err != nil {
			return fmt.Errorf("--busy %q: %w", raw, err)
		}
		busy = append(busy, availability.BusyInterval{Start: busyStart, End: busyEnd, Source: availability.SourceEvent})
	}
	minHours, _ := flags.GetFloat64("min-hours")
	minDuration, err := availability.HoursToDuration(minHours)
	if err != nil {
		return fmt.Errorf("--min-hours: %w", err)
	}

	slots, err := engine.FindFreeSlots(busy, start, end, minDuration)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, slot := range slots {
		fmt.Fprintf(out, "%s\t%.2fh\n", timezone.FormatSpan(slot.Start, slot.End, false, loc), slot.DurationHours)
	}
	return nil
}

// parseFlagTime accepts RFC 3339, "2006-01-02 15:04" and "2006-01-02" in loc.
func parseFlagTime(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	for _, layout := range []string{"2006-01-02 15:04", "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", value)
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("port", 8081)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 8081, "port of server")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", "database driver")
	rootCmd.PersistentFlags().String("dsn", "", "database source name(aka. DSN)")
	rootCmd.PersistentFlags().String("timezone", "", "IANA timezone of work hours and dates (default: local)")

	for _, name := range []string{"mode", "addr", "port", "data", "driver", "dsn", "timezone"} {
		if err := viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("chronoplan")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	expandCmd.Flags().String("start", "", "first occurrence start")
	expandCmd.Flags().String("end", "", "first occurrence end")
	expandCmd.Flags().String("pattern", "weekly", "daily, weekly, monthly or yearly")
	expandCmd.Flags().String("from", "", "window start")
	expandCmd.Flags().String("to", "", "window end")
	expandCmd.Flags().String("until", "", "last day of the series")
	expandCmd.Flags().String("title", "event", "title printed next to each occurrence")
	expandCmd.Flags().Int("max", recurrence.DefaultMaxInstances, "stop after this many occurrences")
	for _, name := range []string{"start", "end", "from", "to"} {
		_ = expandCmd.MarkFlagRequired(name)
	}

	slotsCmd.Flags().String("from", "", "search start (default: now)")
	slotsCmd.Flags().String("to", "", "search end (default: end of the horizon)")
	slotsCmd.Flags().Float64("min-hours", 1, "shortest slot in hours")
	slotsCmd.Flags().StringArray("busy", nil, "busy interval as start/end, repeatable")

	rootCmd.AddCommand(expandCmd, slotsCmd)
}

func printGreetings(profile *profile.Profile) {
	fmt.Printf("chronoplan %s started successfully!\n", profile.Version)
	if profile.IsDev() {
		fmt.Fprint(os.Stderr, "Development mode is enabled\n")
		if profile.DSN != "" {
			fmt.Fprintf(os.Stderr, "Database: %s\n", profile.DSN)
		}
	}

	if len(profile.Addr) == 0 {
		fmt.Printf("Listening on port %d\n", profile.Port)
	} else {
		fmt.Printf("Listening on %s:%d\n", profile.Addr, profile.Port)
	}
}

func main() {
	// CHRONOPLAN_* variables may also come from a .env file in the working directory.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}
	if err := rootCmd.Execute(); err != nil {
		panic(err)
	}
}
