package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"

	"github.com/jonathan/dream-bridge/internal/astrology"
	"github.com/jonathan/dream-bridge/internal/config"
	"github.com/jonathan/dream-bridge/internal/db"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage user profiles",
}

var profileSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Create or replace a user profile",
	Long: `Create or replace the profile used to personalize messages. The zodiac sign
may be an English or French name, or a JSON object such as {"sign": "leo"}.
When astrology is enabled and no sign is given, it is derived from the birth date.`,
	RunE: runProfileSet,
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print a user profile",
	RunE:  runProfileShow,
}

// profileInput is the validated form of the profile set flags.
type profileInput struct {
	UserID    string `validate:"required,uuid"`
	Name      string `validate:"max=100"`
	BirthDate string `validate:"omitempty,datetime=2006-01-02"`
	Sign      string `validate:"max=100"`
	Astrology bool
}

var (
	profileUser   string
	profileInputs profileInput
)

func init() {
	profileCmd.PersistentFlags().StringVarP(&profileUser, "user", "u", "", "User id")
	profileSetCmd.Flags().StringVar(&profileInputs.Name, "name", "", "Display name")
	profileSetCmd.Flags().StringVar(&profileInputs.BirthDate, "birth-date", "", "Birth date (YYYY-MM-DD)")
	profileSetCmd.Flags().StringVar(&profileInputs.Sign, "sign", "", "Zodiac sign")
	profileSetCmd.Flags().BoolVar(&profileInputs.Astrology, "astrology", false, "Use the daily horoscope instead of the quote of the day")

	profileCmd.AddCommand(profileSetCmd)
	profileCmd.AddCommand(profileShowCmd)
	rootCmd.AddCommand(profileCmd)
}

// toProfile validates in and converts it to a stored profile.
func (in profileInput) toProfile() (db.Profile, error) {
	if err := validator.New().Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return db.Profile{}, fmt.Errorf("invalid profile: %s failed '%s'", verrs[0].Field(), verrs[0].Tag())
		}
		return db.Profile{}, fmt.Errorf("invalid profile: %w", err)
	}

	userID, err := parseUserID(in.UserID)
	if err != nil {
		return db.Profile{}, err
	}
	profile := db.Profile{
		UserID:              userID,
		DisplayName:         in.Name,
		BelievesInAstrology: in.Astrology,
	}
	var birth *time.Time
	if in.BirthDate != "" {
		date, err := db.ParseDate(in.BirthDate)
		if err != nil {
			return db.Profile{}, err
		}
		profile.BirthDate = &date
		birth = &date.Time
	}
	if in.Sign != "" {
		sign, ok := astrology.Parse(in.Sign)
		if !ok {
			return db.Profile{}, fmt.Errorf("unknown zodiac sign %q", in.Sign)
		}
		profile.ZodiacSign = string(sign)
	} else if in.Astrology && birth != nil {
		profile.ZodiacSign = string(astrology.ForDate(*birth))
	}
	return profile, nil
}

func runProfileSet(cmd *cobra.Command, _ []string) error {
	in := profileInputs
	in.UserID = profileUser
	profile, err := in.toProfile()
	if err != nil {
		return err
	}
	return withStore(cmd, func(ctx context.Context, _ *config.Config, store db.Store) error {
		if err := store.UpsertProfile(ctx, profile); err != nil {
			return fmt.Errorf("failed to save profile: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved profile for %s\n", profile.UserID)
		return nil
	})
}

func runProfileShow(cmd *cobra.Command, _ []string) error {
	userID, err := parseUserID(profileUser)
	if err != nil {
		return err
	}
	return withStore(cmd, func(ctx context.Context, _ *config.Config, store db.Store) error {
		profile, err := store.GetProfile(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to load profile: %w", err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "User:       %s\n", profile.UserID)
		fmt.Fprintf(out, "Name:       %s\n", profile.DisplayName)
		if profile.BirthDate != nil {
			fmt.Fprintf(out, "Birth date: %s\n", profile.BirthDate)
		}
		if sign, ok := astrology.Resolve(profile.ZodiacSign, profile.BirthTime()); ok {
			fmt.Fprintf(out, "Sign:       %s\n", sign.Title())
		}
		fmt.Fprintf(out, "Astrology:  %t\n", profile.BelievesInAstrology)
		return nil
	})
}

// withStore loads the config, opens the store and runs fn against it.
func withStore(cmd *cobra.Command, fn func(ctx context.Context, cfg *config.Config, store db.Store) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	store, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	return fn(cmd.Context(), cfg, store)
}
