package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/BiasLens/internal/auth"
	"github.com/TobiSchelling/BiasLens/internal/database"
)

// --- vote command ---

var voteCmd = &cobra.Command{
	Use:   "vote [user-id] [article-id] [upvote|downvote]",
	Short: "Cast, change or toggle off a vote",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		rep, err := newReputation(db)
		if err != nil {
			return err
		}
		res, err := rep.CastVote(cmd.Context(), args[0], args[1], database.VoteType(args[2]))
		if err != nil {
			return err
		}

		current := "none"
		if res.UserVote != nil {
			current = string(*res.UserVote)
		}
		fmt.Printf("Vote %s: %d up, %d down (your vote: %s)\n", res.Operation, res.Upvotes, res.Downvotes, current)
		for _, b := range res.AwardedBadges {
			fmt.Printf("  Badge earned: %s\n", b)
		}
		return nil
	},
}

// --- login command ---

var loginCmd = &cobra.Command{
	Use:   "login [user-id]",
	Short: "Record a sign-in for the daily streak",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		rep, err := newReputation(db)
		if err != nil {
			return err
		}
		res, err := rep.RecordLogin(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if !res.Counted {
			fmt.Printf("Already signed in today. Streak: %d\n", res.Streak)
			return nil
		}
		fmt.Printf("Streak: %d day(s)\n", res.Streak)
		if res.AwardedBadge != "" {
			fmt.Printf("  Badge earned: %s\n", res.AwardedBadge)
		}
		return nil
	},
}

// --- badges command ---

var badgesCmd = &cobra.Command{
	Use:   "badges [user-id]",
	Short: "Show a user's badges and profile stats",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		rep, err := newReputation(db)
		if err != nil {
			return err
		}
		summary, err := rep.Badges(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		p := summary.Profile
		fmt.Printf("Reputation: %d  Badges: %d  Streak: %d\n", p.ReputationScore, p.TotalBadges, p.DailyStreak)
		if len(summary.Badges) == 0 {
			fmt.Println("\nNo badges yet.")
			return nil
		}
		fmt.Println()
		for _, ub := range summary.Badges {
			desc := ""
			if ub.Badge.Description != nil {
				desc = " - " + *ub.Badge.Description
			}
			fmt.Printf("  %s%s (%s)\n", ub.Badge.Name, desc, database.FormatDisplay(ub.EarnedAt))
		}
		return nil
	},
}

// --- related command ---

var relatedFlags struct {
	bias    string
	exclude string
	limit   int
	user    string
}

var relatedCmd = &cobra.Command{
	Use:   "related",
	Short: "List recently analyzed articles",
	RunE: func(cmd *cobra.Command, args []string) error {
		if relatedFlags.bias != "" && !database.ValidBiasLabel(relatedFlags.bias) {
			return fmt.Errorf("invalid bias label %q; use one of %v", relatedFlags.bias, database.BiasLabels)
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		articles, err := db.RelatedArticles(cmd.Context(), database.RelatedQuery{
			ExcludeID: relatedFlags.exclude,
			BiasLabel: relatedFlags.bias,
			Limit:     relatedFlags.limit,
		}, relatedFlags.user)
		if err != nil {
			return err
		}

		if len(articles) == 0 {
			fmt.Println("No articles found.")
			return nil
		}
		for _, a := range articles {
			label := "?"
			if a.BiasLabel != nil {
				label = *a.BiasLabel
			}
			mine := ""
			if a.UserVote != nil {
				mine = fmt.Sprintf(" [you: %s]", *a.UserVote)
			}
			fmt.Printf("  %s  %-12s +%d/-%d%s  %s\n", a.ID, label, a.Upvotes, a.Downvotes, mine, a.Headline)
		}
		return nil
	},
}

func init() {
	relatedCmd.Flags().StringVar(&relatedFlags.bias, "bias", "", "Filter by bias label")
	relatedCmd.Flags().StringVar(&relatedFlags.exclude, "exclude", "", "Article ID to leave out")
	relatedCmd.Flags().IntVar(&relatedFlags.limit, "limit", 5, "Number of articles (1-50)")
	relatedCmd.Flags().StringVar(&relatedFlags.user, "user", "", "Show this user's votes")
}

// --- users command ---

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage API users and tokens",
}

var usersAddFlags struct {
	id    string
	name  string
	label string
}

var usersAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a user (or a new token for --id) and print its bearer token",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		issued, err := auth.NewTokenStore(db).Issue(cmd.Context(), usersAddFlags.id, usersAddFlags.name, usersAddFlags.label)
		if err != nil {
			return err
		}
		fmt.Printf("User:  %s\n", issued.UserID)
		fmt.Printf("Token: %s\n", issued.Token)
		fmt.Println("\nThe token is shown only once. Send it as 'Authorization: Bearer <token>'.")
		return nil
	},
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List API tokens",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		tokens, err := db.ListAPITokens(cmd.Context())
		if err != nil {
			return err
		}
		if len(tokens) == 0 {
			fmt.Println("No users yet. Add one with: biaslens users add --name <name>")
			return nil
		}
		for _, t := range tokens {
			label := ""
			if t.Label != nil {
				label = *t.Label
			}
			lastUsed := "never"
			if t.LastUsedAt != nil {
				lastUsed = database.FormatDisplay(*t.LastUsedAt)
			}
			fmt.Printf("  %s  %-12s created %s, last used %s\n", t.UserID, label, database.FormatDisplay(t.CreatedAt), lastUsed)
		}
		return nil
	},
}

func init() {
	usersAddCmd.Flags().StringVar(&usersAddFlags.id, "id", "", "Existing user ID (default: generate one)")
	usersAddCmd.Flags().StringVar(&usersAddFlags.name, "name", "", "Display name")
	usersAddCmd.Flags().StringVar(&usersAddFlags.label, "label", "", "Token label")

	usersCmd.AddCommand(usersAddCmd)
	usersCmd.AddCommand(usersListCmd)
}
