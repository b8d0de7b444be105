// Package main is the entry point for cursorwriting.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/yewanyuan/Cursor-Writing/internal/app"
	"github.com/yewanyuan/Cursor-Writing/internal/orch"
)

var version = "0.1.0"

var configPath string

func main() {
	// Missing .env is fine; real environments export variables directly.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "cursorwriting",
	Short: "AI-assisted long-form fiction writing pipeline",
	Long: `Cursorwriting drives a multi-agent writing pipeline: an archivist
prepares a scene brief, a writer drafts the chapter, a reviewer scores
it, and an editor polishes it. The draft then waits for your feedback
before being finalized into the project's canon.`,
	Version: version,
}

func loadApp(ctx context.Context) (*app.App, error) {
	cfg, err := app.LoadConfig(configPath)
	if errors.Is(err, os.ErrNotExist) {
		cfg = app.DefaultConfig()
	} else if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, printNotification)
}

func printNotification(n orch.Notification) {
	fmt.Printf("[%s/%s] %s %s\n", n.Project, n.Chapter, n.Status, n.Message)
}

var writeCmd = &cobra.Command{
	Use:   "write <project> <chapter>",
	Short: "Generate a chapter draft and wait for feedback",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		goal, _ := cmd.Flags().GetString("goal")
		participants, _ := cmd.Flags().GetStringSlice("participants")
		wordTarget, _ := cmd.Flags().GetInt("words")

		ctx := cmd.Context()
		application, err := loadApp(ctx)
		if err != nil {
			return fmt.Errorf("failed to initialize app: %w", err)
		}
		defer application.Close()

		res, err := application.Orchestrator.StartSession(ctx, orch.StartRequest{
			Project:      args[0],
			Chapter:      args[1],
			Goal:         goal,
			Participants: participants,
			WordTarget:   wordTarget,
		})
		if err != nil {
			return fmt.Errorf("failed to generate chapter: %w", err)
		}

		fmt.Printf("\n章节 %s 草稿完成（版本 %s，评分 %.2f）\n", args[1], res.Version, res.Score)
		if len(res.Confirmations) > 0 {
			fmt.Println("\n待确认事项：")
			for _, c := range res.Confirmations {
				fmt.Printf("  - %s\n", c)
			}
		}
		fmt.Printf("\n确认定稿：cursorwriting feedback %s %s --confirm\n", args[0], args[1])
		fmt.Printf("提出修改：cursorwriting feedback %s %s --revise \"...\"\n", args[0], args[1])
		return nil
	},
}

var feedbackCmd = &cobra.Command{
	Use:   "feedback <project> <chapter>",
	Short: "Confirm a waiting draft or request a revision",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		revise, _ := cmd.Flags().GetString("revise")

		var action string
		var message string
		switch {
		case confirm && revise != "":
			return fmt.Errorf("--confirm and --revise are mutually exclusive")
		case confirm:
			action = orch.ActionConfirm
		case revise != "":
			action = orch.ActionRevise
			message = revise
		default:
			return fmt.Errorf("specify --confirm or --revise \"<feedback>\"")
		}

		ctx := cmd.Context()
		application, err := loadApp(ctx)
		if err != nil {
			return fmt.Errorf("failed to initialize app: %w", err)
		}
		defer application.Close()

		res, err := application.Orchestrator.SubmitFeedback(ctx, orch.FeedbackRequest{
			Project: args[0],
			Chapter: args[1],
			Action:  action,
			Message: message,
		})
		if err != nil {
			return fmt.Errorf("failed to submit feedback: %w", err)
		}

		if res.Message != "" {
			fmt.Println(res.Message)
		}
		if !res.Success {
			os.Exit(1)
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <project> <chapter>",
	Short: "Show the generation status of a chapter",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := loadApp(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to initialize app: %w", err)
		}
		defer application.Close()

		info := application.Orchestrator.GetStatus(args[0], args[1])
		fmt.Printf("状态: %s\n", info.Status)
		if info.Version != "" {
			fmt.Printf("版本: %s\n", info.Version)
		}
		if info.Revisions > 0 {
			fmt.Printf("修改轮次: %d/%d\n", info.Revisions, orch.MaxRevisions)
		}
		if info.Error != "" {
			fmt.Printf("错误: %s\n", info.Error)
		}
		return nil
	},
}

var ontologyCmd = &cobra.Command{
	Use:   "ontology <project>",
	Short: "Show the structured story ontology of a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		characters, _ := cmd.Flags().GetStringSlice("characters")
		full, _ := cmd.Flags().GetBool("full")

		application, err := loadApp(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to initialize app: %w", err)
		}
		defer application.Close()

		o, err := application.Ontology.Get(args[0])
		if err != nil {
			return fmt.Errorf("failed to load ontology: %w", err)
		}
		if len(o.Characters.Nodes) == 0 && len(o.Timeline.Events) == 0 && len(o.World.Rules) == 0 {
			fmt.Printf("项目 %s 还没有本体数据，定稿章节后会自动提取。\n", args[0])
			return nil
		}

		if full {
			fmt.Println(o.ReviewContext(characters))
		} else {
			fmt.Println(o.WritingContext(characters))
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats <project>",
	Short: "Show word counts and progress for a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		ctx := cmd.Context()
		application, err := loadApp(ctx)
		if err != nil {
			return fmt.Errorf("failed to initialize app: %w", err)
		}
		defer application.Close()

		stats, err := application.Stats.ProjectStats(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to compute stats: %w", err)
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		}

		if len(stats.Chapters) == 0 {
			fmt.Printf("项目 %s 还没有章节。\n", args[0])
			return nil
		}

		fmt.Printf("项目: %s\n\n", stats.Project)
		for _, ch := range stats.Chapters {
			title := ch.Title
			if title == "" {
				title = ch.Chapter
			}
			fmt.Printf("  %-8s %s — %d 字（%d 个版本）\n", ch.Status, title, ch.WordCount, ch.Versions)
		}
		fmt.Printf("\n共 %d 章（定稿 %d，草稿 %d），合计 %d 字，平均每章 %d 字\n",
			len(stats.Chapters), stats.FinalChapters, stats.DraftChapters,
			stats.TotalWords, stats.AverageWords)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "cursorwriting.yaml", "Path to config file")

	writeCmd.Flags().String("goal", "", "What this chapter should accomplish")
	writeCmd.Flags().StringSlice("participants", nil, "Characters appearing in the chapter")
	writeCmd.Flags().Int("words", 0, "Target word count for the draft")

	feedbackCmd.Flags().Bool("confirm", false, "Accept the draft and finalize the chapter")
	feedbackCmd.Flags().String("revise", "", "Request a revision with this feedback")

	statsCmd.Flags().Bool("json", false, "Output statistics as JSON")

	ontologyCmd.Flags().StringSlice("characters", nil, "Limit to these characters and their relations")
	ontologyCmd.Flags().Bool("full", false, "Show the fuller review-grade context")

	rootCmd.AddCommand(writeCmd)
	rootCmd.AddCommand(feedbackCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(ontologyCmd)
}
