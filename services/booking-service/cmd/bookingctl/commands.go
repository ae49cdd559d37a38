package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/pawmarket/petcare/libs/auth"
	"github.com/pawmarket/petcare/libs/config"
	"github.com/pawmarket/petcare/libs/db"
	"github.com/pawmarket/petcare/services/booking-service/internal/booking"
	"github.com/pawmarket/petcare/services/booking-service/internal/outbox"
	"github.com/pawmarket/petcare/services/booking-service/internal/slots"
	"github.com/pawmarket/petcare/services/booking-service/internal/storage"
	"github.com/spf13/cobra"
)

func openPool(cmd *cobra.Command) (*db.Pool, error) {
	url, _ := cmd.Flags().GetString("database-url")
	if url == "" {
		var err error
		if url, err = config.RequiredString("DATABASE_URL"); err != nil {
			return nil, err
		}
	}
	return db.Open(cmd.Context(), url)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the booking schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pool, err := openPool(cmd)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := storage.Migrate(cmd.Context(), pool); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}

func newAvailabilityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "availability",
		Short: "Manage provider availability",
	}
	cmd.AddCommand(newAvailabilityPublishCmd())
	return cmd
}

func newAvailabilityPublishCmd() *cobra.Command {
	var (
		providerID, date string
		times            []string
		replace          bool
	)
	c := &cobra.Command{
		Use:   "publish",
		Short: "Declare bookable times for a provider on a date",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pool, err := openPool(cmd)
			if err != nil {
				return err
			}
			defer pool.Close()

			publisher := booking.NewPublisher(storage.NewAvailabilityRepository(pool, outbox.NewRepository()))
			write := publisher.SetAvailability
			if replace {
				write = publisher.ReplaceAvailability
			}
			// The operator acts on the provider's behalf.
			entry, err := write(cmd.Context(), providerID, providerID, date, times)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"id":         entry.ID,
				"providerId": entry.ProviderID,
				"date":       slots.DateKey(entry.Date),
				"times":      entry.Times,
				"replaced":   replace,
			})
		},
	}
	c.Flags().StringVar(&providerID, "provider", "", "provider id")
	c.Flags().StringVar(&date, "date", "", "date (YYYY-MM-DD)")
	c.Flags().StringSliceVar(&times, "times", nil, "comma-separated HH:MM slots")
	c.Flags().BoolVar(&replace, "replace", false, "supersede existing entries for the date")
	_ = c.MarkFlagRequired("provider")
	_ = c.MarkFlagRequired("date")
	_ = c.MarkFlagRequired("times")
	return c
}

func newSlotsCmd() *cobra.Command {
	var providerID, date, month string
	c := &cobra.Command{
		Use:   "slots",
		Short: "Show free slots for a date or month",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (date == "") == (month == "") {
				return errors.New("exactly one of --date or --month is required")
			}
			pool, err := openPool(cmd)
			if err != nil {
				return err
			}
			defer pool.Close()

			outboxRepo := outbox.NewRepository()
			resolver := booking.NewResolver(
				storage.NewAvailabilityRepository(pool, outboxRepo),
				storage.NewReservationRepository(pool, outboxRepo),
			)
			if date != "" {
				free, err := resolver.AvailableSlotsForDate(cmd.Context(), providerID, date)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{"availableSlots": free})
			}
			year, mon, err := slots.ParseMonth(month)
			if err != nil {
				return err
			}
			byDate, err := resolver.AvailableSlotsForMonth(cmd.Context(), providerID, year, mon)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), byDate)
		},
	}
	c.Flags().StringVar(&providerID, "provider", "", "provider id")
	c.Flags().StringVar(&date, "date", "", "date (YYYY-MM-DD)")
	c.Flags().StringVar(&month, "month", "", "month (YYYY-MM)")
	_ = c.MarkFlagRequired("provider")
	return c
}

func newSummaryCmd() *cobra.Command {
	var providerID string
	c := &cobra.Command{
		Use:   "summary",
		Short: "Show declared, booked and free slots per date",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pool, err := openPool(cmd)
			if err != nil {
				return err
			}
			defer pool.Close()

			outboxRepo := outbox.NewRepository()
			resolver := booking.NewResolver(
				storage.NewAvailabilityRepository(pool, outboxRepo),
				storage.NewReservationRepository(pool, outboxRepo),
			)
			sum, err := resolver.Summary(cmd.Context(), providerID)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, day := range sum.Days {
				fmt.Fprintf(w, "%s  declared=%v booked=%v free=%v\n", day.Date, day.AllTimeSlots, day.BookedTimeSlots, day.AvailableTimeSlots)
			}
			fmt.Fprintf(w, "%d dates, %d with free slots\n", sum.TotalDates, sum.DatesWithAvailability)
			return nil
		},
	}
	c.Flags().StringVar(&providerID, "provider", "", "provider id")
	_ = c.MarkFlagRequired("provider")
	return c
}

func newRatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rates",
		Short: "Manage per-provider slot prices",
	}

	var (
		providerID, currency string
		price                float64
	)
	set := &cobra.Command{
		Use:   "set",
		Short: "Set the price charged per reserved slot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if price < 0 {
				return errors.New("--price must not be negative")
			}
			pool, err := openPool(cmd)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := storage.NewRatesRepository(pool).SetRate(cmd.Context(), providerID, price, currency); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rate for %s set to %.2f %s\n", providerID, price, currency)
			return nil
		},
	}
	set.Flags().StringVar(&providerID, "provider", "", "provider id")
	set.Flags().Float64Var(&price, "price", 0, "price per slot")
	set.Flags().StringVar(&currency, "currency", "USD", "ISO currency code")
	_ = set.MarkFlagRequired("provider")
	_ = set.MarkFlagRequired("price")
	cmd.AddCommand(set)
	return cmd
}

func newTokenCmd() *cobra.Command {
	var (
		subject, role, secret string
		ttl                   time.Duration
	)
	c := &cobra.Command{
		Use:   "token",
		Short: "Mint an HS256 token the gateway accepts (development only)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if secret == "" {
				secret = config.String("JWT_SECRET", "")
			}
			if secret == "" {
				return errors.New("--secret or $JWT_SECRET is required")
			}
			now := time.Now()
			raw, err := auth.SignHS256(auth.Claims{
				RegisteredClaims: jwt.RegisteredClaims{
					Subject:   subject,
					IssuedAt:  jwt.NewNumericDate(now),
					ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
				},
				Role: role,
			}, secret)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), raw)
			return nil
		},
	}
	c.Flags().StringVar(&subject, "subject", "", "user id")
	c.Flags().StringVar(&role, "role", auth.RoleCustomer, "customer, provider or admin")
	c.Flags().StringVar(&secret, "secret", "", "signing secret (defaults to $JWT_SECRET)")
	c.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = c.MarkFlagRequired("subject")
	return c
}

