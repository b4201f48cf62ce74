package main

import (
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadscout/internal/model"
)

var (
	searchLocation string
	searchIndustry string
	searchRadius   string
	searchCount    int
	searchUser     string
)

// searchTrigger builds the normalized trigger from the search flags and
// rejects it before any search row is created.
func searchTrigger() (model.Trigger, error) {
	var radius int
	if searchRadius != "" {
		r, err := model.ParseRadius(searchRadius)
		if err != nil {
			return model.Trigger{}, err
		}
		radius = r
	}

	t := model.Trigger{
		UserID:         searchUser,
		Location:       searchLocation,
		Industry:       searchIndustry,
		RadiusMeters:   radius,
		RequestedCount: searchCount,
	}.Normalize()
	if strings.TrimSpace(t.Location) == "" {
		return model.Trigger{}, eris.New("search: --location is required")
	}
	return t, nil
}

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Discover, enrich and score leads for one location",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		t, err := searchTrigger()
		if err != nil {
			return err
		}

		env, err := initPipeline(ctx, "search")
		if err != nil {
			return err
		}
		defer env.Close()

		sr := &model.SearchRequest{
			UserID:         t.UserID,
			Location:       t.Location,
			Industry:       t.Industry,
			RadiusMeters:   t.RadiusMeters,
			RequestedCount: t.RequestedCount,
		}
		if err := env.Store.CreateSearch(ctx, sr); err != nil {
			return eris.Wrap(err, "create search")
		}

		zap.L().Info("search started",
			zap.String("search_id", sr.ID),
			zap.String("location", sr.Location),
			zap.String("industry", sr.Industry),
			zap.Int("radius_meters", sr.RadiusMeters),
		)

		if err := env.Orchestrator.Run(ctx, sr.Trigger()); err != nil {
			return eris.Wrapf(err, "search %s", sr.ID)
		}

		leads, err := env.Store.ListLeads(ctx, sr.ID)
		if err != nil {
			return eris.Wrap(err, "list leads")
		}
		sortByScore(leads)

		fmt.Fprintf(os.Stderr, "Search %s: %d leads\n", sr.ID, len(leads))
		if len(leads) == 0 {
			return nil
		}
		formatLeads(os.Stdout, leads)
		return nil
	},
}

// sortByScore orders leads by descending score, unscored last.
func sortByScore(leads []model.Lead) {
	sort.SliceStable(leads, func(i, j int) bool {
		a, b := leads[i].ProbabilityScore, leads[j].ProbabilityScore
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return *a > *b
		}
	})
}

func init() {
	searchCmd.Flags().StringVar(&searchLocation, "location", "", "city, address or region to search (required)")
	searchCmd.Flags().StringVar(&searchIndustry, "industry", "", "business category, e.g. plumber")
	searchCmd.Flags().StringVar(&searchRadius, "radius", "", "search radius, e.g. 5mi, 10km, 800m (default 5mi)")
	searchCmd.Flags().IntVar(&searchCount, "count", model.DefaultRequestedCount, "maximum businesses to discover")
	searchCmd.Flags().StringVar(&searchUser, "user", "", "owner recorded on the search")
	_ = searchCmd.MarkFlagRequired("location")
	rootCmd.AddCommand(searchCmd)
}
