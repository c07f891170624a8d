package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/meemoee/market-movers-hub-sub000/internal/config"
	"github.com/meemoee/market-movers-hub-sub000/internal/domain"
	"github.com/meemoee/market-movers-hub-sub000/internal/extract"
	"github.com/meemoee/market-movers-hub-sub000/internal/gamma"
	"github.com/meemoee/market-movers-hub-sub000/internal/logger"
	"github.com/meemoee/market-movers-hub-sub000/internal/openrouter"
	"github.com/meemoee/market-movers-hub-sub000/internal/repository"
	"github.com/meemoee/market-movers-hub-sub000/internal/service"
)

func init() {
	runCmd.Flags().String("focus", "", "focus text steering the analysis")
	runCmd.Flags().String("model", "", "override the analysis model")
	runCmd.Flags().Int("max-iterations", 0, "research iterations (0 uses the configured default)")
	runCmd.Flags().Bool("force", false, "run even if the market was researched recently")

	listCmd.Flags().String("market", "", "filter by market id")
	listCmd.Flags().Int("limit", 20, "maximum number of jobs to list")
}

// stack bundles the services the commands need.
type stack struct {
	research *service.ResearchService
	jobs     *repository.JobRepository
}

func buildStack(cmd *cobra.Command) (*stack, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	log := logger.New(&logger.Config{Level: "warn", Format: "text", ServiceName: "researchctl"})
	logger.SetDefaultLogger(log)

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		return nil, err
	}

	jobs := repository.NewJobRepository(db)
	streams := repository.NewStreamRepository(db)
	researchRepo := repository.NewResearchRepository(db)

	or := openrouter.NewClient(&openrouter.Config{
		APIKey:      cfg.OpenRouter.APIKey,
		BaseURL:     cfg.OpenRouter.BaseURL,
		Timeout:     cfg.OpenRouter.Timeout,
		Retries:     cfg.OpenRouter.Retries,
		BackoffBase: cfg.OpenRouter.BackoffBase,
	})
	gammaClient := gamma.NewClient(&gamma.Config{
		BaseURL: cfg.Gamma.BaseURL,
		Timeout: cfg.Gamma.Timeout,
	})

	research := service.NewResearchService(jobs, streams, researchRepo, or, gammaClient,
		extract.NewExtractor(cfg.Gamma.Timeout), log, &service.ResearchConfig{
			AnalysisModel:       cfg.OpenRouter.AnalysisModel,
			ExtractionModel:     cfg.OpenRouter.ExtractionModel,
			MaxTokens:           cfg.OpenRouter.MaxTokens,
			MaxIterations:       cfg.Research.MaxIterations,
			QueriesPerIteration: cfg.Research.QueriesPerIteration,
			MaxSearchResults:    cfg.OpenRouter.MaxSearchResults,
			ReprocessWindow:     cfg.Research.ReprocessWindow,
		})

	return &stack{research: research, jobs: jobs}, nil
}

// --- run ---

var runCmd = &cobra.Command{
	Use:   "run <market-slug>",
	Short: "Run a research job synchronously for a market",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := buildStack(cmd)
		if err != nil {
			return err
		}

		focus, _ := cmd.Flags().GetString("focus")
		model, _ := cmd.Flags().GetString("model")
		maxIterations, _ := cmd.Flags().GetInt("max-iterations")
		force, _ := cmd.Flags().GetBool("force")

		ctx := cmd.Context()
		job, err := s.research.CreateJob(ctx, &service.CreateJobRequest{
			MarketSlug:    args[0],
			FocusText:     focus,
			Model:         model,
			MaxIterations: maxIterations,
			Force:         force,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Job %s queued for %s\n", job.ID, job.MarketID)

		if err := s.research.Execute(ctx, job); err != nil {
			return err
		}

		done, err := s.jobs.GetByID(ctx, job.ID)
		if err != nil {
			return err
		}
		printJob(done, true)
		return nil
	},
}

// --- list ---

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List research jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := buildStack(cmd)
		if err != nil {
			return err
		}

		market, _ := cmd.Flags().GetString("market")
		limit, _ := cmd.Flags().GetInt("limit")

		jobs, err := s.research.ListJobs(cmd.Context(), market, limit, 0)
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			fmt.Println("No jobs found.")
			return nil
		}
		for _, job := range jobs {
			fmt.Printf("%s  %-10s  %-12s  %s\n",
				job.ID, job.Status, job.CreatedAt.Format("2006-01-02"), job.MarketID)
		}
		return nil
	},
}

// --- show ---

var showCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show a research job with its results",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := buildStack(cmd)
		if err != nil {
			return err
		}
		job, err := s.research.GetJob(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printJob(job, false)
		return nil
	},
}

func printJob(job *domain.ResearchJob, withAnalysis bool) {
	fmt.Printf("Job:     %s\n", job.ID)
	fmt.Printf("Market:  %s\n", job.MarketID)
	fmt.Printf("Query:   %s\n", job.Query)
	fmt.Printf("Status:  %s", job.Status)
	if job.ErrorMessage != "" {
		fmt.Printf(" (%s)", job.ErrorMessage)
	}
	fmt.Println()
	fmt.Printf("Rounds:  %d/%d\n", job.CurrentIteration, job.MaxIterations)

	if len(job.Results) > 0 {
		fmt.Println("\nResults:")
		if p, ok := job.Results["probability"].(string); ok {
			fmt.Printf("  Probability: %s\n", p)
		}
		if lk, ok := job.Results["likelihood"].(float64); ok {
			fmt.Printf("  Likelihood:  %.2f\n", lk)
		}
		if areas, ok := job.Results["areasForResearch"].([]interface{}); ok && len(areas) > 0 {
			fmt.Println("  Areas for further research:")
			for _, a := range areas {
				fmt.Printf("    - %v\n", a)
			}
		}
		if withAnalysis {
			if analysis, ok := job.Results["analysis"].(string); ok {
				fmt.Println("\nFinal evaluation:")
				fmt.Println(strings.TrimSpace(analysis))
			}
		} else if len(job.ProgressLog) > 0 {
			fmt.Println("\nProgress:")
			for _, line := range job.ProgressLog {
				fmt.Printf("  %s\n", line)
			}
		}
	}

	if !withAnalysis && len(job.Iterations) > 0 {
		raw, err := json.MarshalIndent(job.Iterations, "", "  ")
		if err == nil {
			fmt.Println("\nIterations:")
			os.Stdout.Write(raw)
			fmt.Println()
		}
	}
}
