package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/autorp/autorp/internal/config"
	"github.com/autorp/autorp/internal/scenario"
)

var (
	scenariosWorld string
	scenariosJSON  bool
	scenariosTag   string
)

func init() {
	rootCmd.AddCommand(scenariosCmd)
	scenariosCmd.Flags().StringVar(&scenariosWorld, "world", "world.yml", "Path to the automation world file")
	scenariosCmd.Flags().BoolVar(&scenariosJSON, "json", false, "Emit the listing as JSON")
	scenariosCmd.Flags().StringVar(&scenariosTag, "tag", "", "Only scenarios carrying this tag")
}

var scenariosCmd = &cobra.Command{
	Use:   "scenarios",
	Short: "List the scenarios defined in the world file",
	RunE:  listScenarios,
}

type scenarioListing struct {
	Name        string   `json:"name"`
	Slug        string   `json:"slug"`
	Description string   `json:"description,omitempty"`
	Steps       int      `json:"steps"`
	Tags        []string `json:"tags,omitempty"`
}

func listScenarios(cmd *cobra.Command, args []string) error {
	world, err := config.Load(scenariosWorld)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(exitConfig)
	}
	plan, err := config.BuildPlan(world, nil, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(exitConfig)
	}

	var listings []scenarioListing
	for _, s := range plan.Scenarios() {
		if scenariosTag != "" && !containsTag(s.Tags, scenariosTag) {
			continue
		}
		listings = append(listings, scenarioListing{
			Name:        s.Name,
			Slug:        scenario.Slug(s.Name),
			Description: s.Description,
			Steps:       len(s.Steps),
			Tags:        s.Tags,
		})
	}

	if scenariosJSON {
		out, err := json.MarshalIndent(listings, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	for _, l := range listings {
		fmt.Printf("  %-30s %3d steps", l.Name, l.Steps)
		if len(l.Tags) > 0 {
			fmt.Printf("  [%s]", joinTags(l.Tags))
		}
		fmt.Println()
	}
	fmt.Printf("\n%d scenarios.\n", len(listings))
	return nil
}

func containsTag(tags []string, want string) bool {
	for _, t := range tags {
		if t == want {
			return true
		}
	}
	return false
}

func joinTags(tags []string) string {
	out := ""
	for i, t := range tags {
		if i > 0 {
			out += ", "
		}
		out += t
	}
	return out
}
