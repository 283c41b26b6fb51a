package main

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/spf13/cobra"

	"github.com/jonathan/dream-bridge/internal/astrology"
	"github.com/jonathan/dream-bridge/internal/db"
)

var signCmd = &cobra.Command{
	Use:   "sign <birth-date|sign-name>",
	Short: "Resolve a zodiac sign from a birth date or a free-text name",
	Long: `Print the zodiac sign for a birth date (YYYY-MM-DD) or normalize a sign name.
Names may be English or French, in any case, with or without accents, or a
JSON object such as {"sign": "Bélier"}.`,
	Args: cobra.ExactArgs(1),
	RunE: runSign,
}

var signLanguage string

func init() {
	signCmd.Flags().StringVarP(&signLanguage, "language", "l", "fr", "Language of the printed name")
	rootCmd.AddCommand(signCmd)
}

func runSign(cmd *cobra.Command, args []string) error {
	sign, err := resolveSign(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", sign.Name(signLanguage), sign)
	return nil
}

func resolveSign(raw string) (astrology.Sign, error) {
	if date, err := db.ParseDate(raw); err == nil {
		return astrology.ForDate(date.Time), nil
	}
	if sign, ok := astrology.Parse(raw); ok {
		return sign, nil
	}
	if strings.Count(raw, "-") == 2 && unicode.IsDigit([]rune(strings.TrimSpace(raw))[0]) {
		return "", fmt.Errorf("invalid birth date %q, expected YYYY-MM-DD", raw)
	}
	return "", fmt.Errorf("unknown zodiac sign %q", raw)
}
