package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/untoldecay/DocLoom/internal/config"
	"github.com/untoldecay/DocLoom/internal/recipe"
)

var recipeCmd = &cobra.Command{
	Use:   "recipe",
	Short: "Store and replay command sequences",
}

func recipeStore() *recipe.Store {
	return recipe.NewStore(config.DataDir())
}

var recipeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored recipes",
	Run: func(cmd *cobra.Command, args []string) {
		recipes, err := recipeStore().List()
		if err != nil {
			fail(err)
		}
		if jsonOutput {
			_ = outputJSON(map[string]any{"count": len(recipes), "recipes": recipes})
			return
		}
		if len(recipes) == 0 {
			fmt.Println("No recipes. Create one with: loom recipe create <name> -- <step> [-- <step>...]")
			return
		}
		for _, r := range recipes {
			fmt.Printf("%-20s %d step(s)  %s\n", r.Name, len(r.Steps), r.Description)
		}
	},
}

var recipeCreateCmd = &cobra.Command{
	Use:   "create <name> -- <step...> [-- <step...>]",
	Short: "Create a recipe from loom subcommand invocations",
	Long: `Steps are separated by "--". Each step is one loom invocation without
the binary name, e.g.:

  loom recipe create weekly --description "weekly refresh" \
    -- maintain wikify --all -- maintain wiki generate --limit 5`,
	Args: cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		name := args[0]
		var steps [][]string
		var current []string
		for _, arg := range args[1:] {
			if arg == "--" {
				if len(current) > 0 {
					steps = append(steps, current)
					current = nil
				}
				continue
			}
			current = append(current, arg)
		}
		if len(current) > 0 {
			steps = append(steps, current)
		}
		description, _ := cmd.Flags().GetString("description")
		r := &recipe.Recipe{Name: name, Description: description, Steps: steps}
		if err := recipeStore().Create(r); err != nil {
			fail(err)
		}
		if jsonOutput {
			_ = outputJSON(r)
			return
		}
		fmt.Printf("Created recipe %q with %d step(s)\n", name, len(steps))
	},
}

var recipeRunCmd = &cobra.Command{
	Use:   "run <name>",
	Short: "Run a recipe's steps in order",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		results, err := recipeStore().Run(cmd.Context(), args[0],
			func(_ context.Context, step []string) error {
				if !jsonOutput {
					fmt.Printf("==> loom %s\n", strings.Join(step, " "))
				}
				rootCmd.SetArgs(step)
				return rootCmd.Execute()
			})
		if err != nil {
			fail(err)
		}
		if jsonOutput {
			_ = outputJSON(map[string]any{"recipe": args[0], "steps": results})
			return
		}
		fmt.Printf("Recipe %q finished: %d step(s)\n", args[0], len(results))
	},
}

func init() {
	recipeCreateCmd.Flags().String("description", "", "what this recipe is for")
	recipeCmd.AddCommand(recipeListCmd, recipeCreateCmd, recipeRunCmd)
	rootCmd.AddCommand(recipeCmd)
}
