package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/pbaille/platelog/internal/analysis"
	"github.com/pbaille/platelog/internal/api"
	"github.com/pbaille/platelog/internal/backend"
	"github.com/pbaille/platelog/internal/config"
	"github.com/pbaille/platelog/internal/domain"
	"github.com/pbaille/platelog/internal/fetcher"
	"github.com/pbaille/platelog/internal/store"
	"github.com/spf13/cobra"
)

var cfg config.Config

func main() {
	cfg = config.Load()

	rootCmd := &cobra.Command{
		Use:   "platelog",
		Short: "Food photo nutrition analysis and meal log",
	}

	rootCmd.PersistentFlags().StringVar(&cfg.APIBase, "api", cfg.APIBase, "analysis backend base URL")
	rootCmd.PersistentFlags().StringVar(&cfg.DBPath, "db", cfg.DBPath, "meal log database path")

	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(textCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(recipesCmd())
	rootCmd.AddCommand(recipeCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// openLog opens the meal log. The returned close func releases the database.
func openLog() (*store.MealLog, func(), error) {
	kv, err := store.NewSQLiteKV(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	return store.NewMealLog(kv), func() { kv.Close() }, nil
}

func analyzeCmd() *cobra.Command {
	var (
		noStream bool
		noLog    bool
		portions []string
	)

	cmd := &cobra.Command{
		Use:   "analyze [image...]",
		Short: "Analyze meal photos",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			images := make([]backend.Image, 0, len(args))
			for _, path := range args {
				img, err := backend.ImageFromFile(path)
				if err != nil {
					return err
				}
				images = append(images, img)
			}

			edits, err := parsePortions(portions)
			if err != nil {
				return err
			}

			// A nil *store.MealLog must not reach the pipeline as a non-nil interface
			var meals analysis.MealLogger
			if !noLog {
				ml, closeLog, err := openLog()
				if err != nil {
					return err
				}
				defer closeLog()
				meals = ml
			}

			client := backend.New(cfg.APIBase)
			p := analysis.NewPipeline(client, meals)
			opts := backend.AnalyzeOptions{Model: cfg.Model, UseLogMeal: cfg.UseLogMeal}
			ctx := cmd.Context()

			var sess *analysis.Session
			if noStream {
				fmt.Print("Analyzing... ")
				sess, err = p.RunSync(ctx, images, opts)
				fmt.Println()
			} else {
				sess, err = p.Run(ctx, images, opts, progress())
			}
			if err != nil {
				return err
			}

			if err := applyPortions(sess, edits); err != nil {
				return err
			}

			printResult(sess)

			score, err := sess.AwaitHealthScore(ctx)
			if err != nil {
				return err
			}
			printHealthScore(score)
			return nil
		},
	}

	cmd.Flags().StringVar(&cfg.Model, "model", cfg.Model, "analysis model")
	cmd.Flags().BoolVar(&cfg.UseLogMeal, "logmeal", cfg.UseLogMeal, "use the LogMeal recognition service")
	cmd.Flags().BoolVar(&noStream, "no-stream", false, "wait for the full result instead of streaming phases")
	cmd.Flags().BoolVar(&noLog, "no-log", false, "don't record the meal in the log")
	cmd.Flags().StringArrayVarP(&portions, "portion", "p", nil, "override a portion as name=grams (repeatable)")
	return cmd
}

// progress prints each phase the first time it arrives
func progress() func(*analysis.Session) {
	var recognized, quantified, counted bool
	return func(s *analysis.Session) {
		if s.GotRecognize && !recognized {
			recognized = true
			if s.Result.Dish != nil {
				fmt.Printf("Recognized: %s\n", *s.Result.Dish)
			}
		}
		if s.GotIngQuant && !quantified {
			quantified = true
			fmt.Printf("Weighed %d ingredients\n", len(s.Result.ItemsGrams))
		}
		if s.GotCalories && !counted {
			counted = true
			if s.Result.TotalKcal != nil {
				fmt.Printf("Calories: %.0f kcal\n", *s.Result.TotalKcal)
			}
		}
	}
}

type portionEdit struct {
	name  string
	grams float64
}

func parsePortions(flags []string) ([]portionEdit, error) {
	edits := make([]portionEdit, 0, len(flags))
	for _, f := range flags {
		name, value, ok := strings.Cut(f, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid portion %q: want name=grams", f)
		}
		grams, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(value), "g")), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid portion %q: %w", f, err)
		}
		edits = append(edits, portionEdit{name: name, grams: grams})
	}
	return edits, nil
}

func applyPortions(sess *analysis.Session, edits []portionEdit) error {
	if len(edits) == 0 {
		return nil
	}
	rows := sess.Portions()
	if rows == nil {
		return fmt.Errorf("no ingredient rows to adjust")
	}
	for _, e := range edits {
		i := rows.Index(e.name)
		if i < 0 {
			return fmt.Errorf("portion %q: %w", e.name, analysis.ErrNoSuchItem)
		}
		got, err := rows.Set(i, e.grams)
		if err != nil {
			return err
		}
		if got != e.grams {
			fmt.Printf("(%s clamped to %.0f g)\n", e.name, got)
		}
	}
	return nil
}

func printResult(sess *analysis.Session) {
	r := sess.Result
	fmt.Println()
	if r.Dish != nil {
		fmt.Printf("Dish: %s", *r.Dish)
		if r.DishConfidence != nil {
			fmt.Printf(" (%.0f%%)", *r.DishConfidence*100)
		}
		fmt.Println()
	}

	items := sess.Items()
	if len(items) == 0 {
		fmt.Println("No ingredient breakdown.")
		return
	}

	grams := sess.Portions().Grams()
	for i, it := range items {
		fmt.Printf("  %-24s %6.0f g  %6.0f kcal\n", truncate(it.Name, 24), grams[i], rowKcal(it, grams[i]))
	}

	t := sess.Totals()
	fmt.Printf("Total: %.0f g, %.0f kcal, P %.1f g, C %.1f g, F %.1f g\n", t.Grams, t.Kcal, t.Protein, t.Carbs, t.Fat)

	if r.Notes != nil && *r.Notes != "" {
		fmt.Printf("Notes: %s\n", *r.Notes)
	}
	if sess.Meal != nil {
		fmt.Printf("Logged as %s on %s\n", shortID(sess.Meal.ID), sess.Meal.Date)
	}
}

// rowKcal is a row's energy at the chosen portion, rounded like the totals
func rowKcal(it analysis.UIItem, grams float64) float64 {
	return math.Round(grams * it.KcalPerG)
}

// healthLine formats a score on the backend's 1 to 10 scale
func healthLine(score float64) string {
	return fmt.Sprintf("Health score: %.1f/10", score)
}

func printHealthScore(out *domain.HealthScoreOutput) {
	if out == nil {
		return
	}
	fmt.Println(healthLine(out.HealthScore))
	for _, d := range out.DriversPositive {
		fmt.Printf("  + %s\n", d)
	}
	for _, d := range out.DriversNegative {
		fmt.Printf("  - %s\n", d)
	}
}

func textCmd() *cobra.Command {
	var noLog bool

	cmd := &cobra.Command{
		Use:   "text [description]",
		Short: "Estimate a meal from a description",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var meals analysis.MealLogger
			if !noLog {
				ml, closeLog, err := openLog()
				if err != nil {
					return err
				}
				defer closeLog()
				meals = ml
			}

			p := analysis.NewPipeline(backend.New(cfg.APIBase), meals)
			sess, err := p.RunText(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}

			printResult(sess)
			score, err := sess.AwaitHealthScore(cmd.Context())
			if err != nil {
				return err
			}
			printHealthScore(score)
			return nil
		},
	}

	cmd.Flags().BoolVar(&noLog, "no-log", false, "don't record the meal in the log")
	return cmd
}

func historyCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent analyses stored by the backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := backend.New(cfg.APIBase).History(cmd.Context(), limit)
			if err != nil {
				return err
			}

			if len(items) == 0 {
				fmt.Println("No analyses yet.")
				return nil
			}

			for _, it := range items {
				dish := "?"
				if it.Dish != nil {
					dish = *it.Dish
				}
				kcal := 0.0
				if it.TotalKcal != nil {
					kcal = *it.TotalKcal
				}
				fmt.Printf("%s  %-30s %6.0f kcal\n", it.CreatedAt, truncate(dish, 30), kcal)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of analyses to show")
	return cmd
}

func recipesCmd() *cobra.Command {
	var (
		top    int
		strict bool
	)

	cmd := &cobra.Command{
		Use:   "recipes [ingredient...]",
		Short: "Find dishes you can make from ingredients",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode := backend.ModeFlexible
			if strict {
				mode = backend.ModeStrict
			}

			resp, err := backend.New(cfg.APIBase).QueryRecipes(cmd.Context(), args, top, mode)
			if err != nil {
				return err
			}

			if len(resp.Hits) == 0 {
				fmt.Println("No matching dishes found.")
				return nil
			}

			for _, h := range resp.Hits {
				fmt.Printf("%5.2f  %s\n", h.Score, h.DishName)
				if len(h.Ingredients) > 0 {
					fmt.Printf("       %s\n", truncate(strings.Join(h.Ingredients, ", "), 70))
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&top, "top", "n", 10, "number of dishes to return")
	cmd.Flags().BoolVar(&strict, "strict", false, "only dishes using nothing but the given ingredients")
	return cmd
}

func recipeCmd() *cobra.Command {
	var (
		ingredients []string
		preview     int
	)

	cmd := &cobra.Command{
		Use:   "recipe [dish]",
		Short: "Show web sources for a dish",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			details, err := backend.New(cfg.APIBase).RecipeDetails(cmd.Context(), strings.Join(args, " "), ingredients)
			if err != nil {
				return err
			}

			if len(details.Sources) == 0 {
				fmt.Println("No sources found.")
				return nil
			}

			if preview > 0 {
				fetcher.FillPreviews(cmd.Context(), details.Sources, preview)
			}

			fmt.Printf("%s\n\n", details.DishName)
			for _, src := range details.Sources {
				fmt.Printf("%s\n  %s\n", src.Title, src.Link)
				if preview > 0 && src.ContentPreview != "" {
					fmt.Printf("  %s\n", fetcher.Preview(src.ContentPreview, preview))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&ingredients, "ingredient", "i", nil, "ingredients to refine the search")
	cmd.Flags().IntVar(&preview, "preview", 0, "show the first N characters of each source page")
	return cmd
}

func logCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Browse and edit the meal log",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List logged meals, newest first",
		RunE: withLog(func(meals *store.MealLog, args []string) error {
			printMeals(meals.GetAll())
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "day [date]",
		Short: "Show one day's meals and totals (default today)",
		Args:  cobra.MaximumNArgs(1),
		RunE: withLog(func(meals *store.MealLog, args []string) error {
			day := meals.GetTodaysMealLog()
			if len(args) == 1 {
				if err := checkDate(args[0]); err != nil {
					return err
				}
				day = meals.GetDailyMealLog(args[0])
			}
			fmt.Printf("%s\n", day.Date)
			printMeals(day.Meals)
			t := day.DailyTotals
			fmt.Printf("Total: %.0f kcal, P %.1f g, C %.1f g, F %.1f g, %.0f g\n",
				t.TotalKcal, t.TotalProteinG, t.TotalCarbsG, t.TotalFatG, t.TotalGrams)
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "search [query]",
		Short: "Search meals by dish or ingredient",
		Args:  cobra.MinimumNArgs(1),
		RunE: withLog(func(meals *store.MealLog, args []string) error {
			printMeals(meals.SearchMeals(strings.Join(args, " ")))
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "dates",
		Short: "List days with logged meals",
		RunE: withLog(func(meals *store.MealLog, args []string) error {
			for _, d := range meals.GetAllMealDates() {
				fmt.Println(d)
			}
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rm [id]",
		Short: "Remove a meal",
		Args:  cobra.ExactArgs(1),
		RunE: withLog(func(meals *store.MealLog, args []string) error {
			id, err := resolveID(meals, args[0])
			if err != nil {
				return err
			}
			if err := meals.RemoveMeal(id); err != nil {
				return err
			}
			fmt.Printf("Removed %s\n", shortID(id))
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "move [id] [date]",
		Short: "Move a meal to another day",
		Args:  cobra.ExactArgs(2),
		RunE: withLog(func(meals *store.MealLog, args []string) error {
			id, err := resolveID(meals, args[0])
			if err != nil {
				return err
			}
			if err := checkDate(args[1]); err != nil {
				return err
			}
			if err := meals.MoveMealToDate(id, args[1]); err != nil {
				return err
			}
			fmt.Printf("Moved %s to %s\n", shortID(id), args[1])
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "dup [id] [date]",
		Short: "Copy a meal to another day (default today)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: withLog(func(meals *store.MealLog, args []string) error {
			id, err := resolveID(meals, args[0])
			if err != nil {
				return err
			}
			meal, err := meals.Get(id)
			if err != nil {
				return err
			}

			var dup *domain.LoggedMeal
			if len(args) == 2 {
				if err := checkDate(args[1]); err != nil {
					return err
				}
				dup, err = meals.DuplicateToDate(*meal, args[1])
			} else {
				dup, err = meals.DuplicateToToday(*meal)
			}
			if err != nil {
				return err
			}
			fmt.Printf("Copied to %s as %s\n", dup.Date, shortID(dup.ID))
			return nil
		}),
	})

	var yes bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every logged meal",
		RunE: withLog(func(meals *store.MealLog, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to clear %d meals without --yes", len(meals.GetAll()))
			}
			return meals.ClearAll()
		}),
	}
	clearCmd.Flags().BoolVar(&yes, "yes", false, "confirm clearing the log")
	cmd.AddCommand(clearCmd)

	return cmd
}

func withLog(fn func(meals *store.MealLog, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		meals, closeLog, err := openLog()
		if err != nil {
			return err
		}
		defer closeLog()
		return fn(meals, args)
	}
}

func checkDate(date string) error {
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return fmt.Errorf("invalid date %q: want YYYY-MM-DD", date)
	}
	return nil
}

// resolveID accepts a full meal id or a unique prefix of one
func resolveID(meals *store.MealLog, prefix string) (string, error) {
	var found string
	for _, m := range meals.GetAll() {
		if m.ID == prefix {
			return m.ID, nil
		}
		if strings.HasPrefix(m.ID, prefix) {
			if found != "" {
				return "", fmt.Errorf("meal id %q is ambiguous", prefix)
			}
			found = m.ID
		}
	}
	if found == "" {
		return "", fmt.Errorf("%w: %s", store.ErrMealNotFound, prefix)
	}
	return found, nil
}

func printMeals(meals []domain.LoggedMeal) {
	if len(meals) == 0 {
		fmt.Println("No meals logged. Use 'platelog analyze' to add one.")
		return
	}
	for _, m := range meals {
		fmt.Printf("%s  %s %s  %-30s %6.0f kcal\n",
			shortID(m.ID), m.Date, m.Timestamp.Local().Format("15:04"), truncate(m.Dish, 30), m.TotalKcal)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, max int) string {
	// Replace newlines with spaces for display
	s = strings.ReplaceAll(s, "\n", " ")
	if len([]rune(s)) <= max {
		return s
	}
	return string([]rune(s)[:max-3]) + "..."
}

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the meal log over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			meals, closeLog, err := openLog()
			if err != nil {
				return err
			}
			defer closeLog()

			return api.New(meals, addr).Run()
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", ":8080", "server address")
	return cmd
}
