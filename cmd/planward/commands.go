package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/planward/planward/internal/config"
)

// --- plan ---

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Manage marketing plans",
}

var planCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new plan from questionnaire responses",
	Long: `Create a new plan from questionnaire responses.

Examples:
  planward plan create --responses ./responses.json --context ./business.json
  planward plan create --responses ./responses.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		responsesPath, _ := cmd.Flags().GetString("responses")
		contextPath, _ := cmd.Flags().GetString("context")

		if responsesPath == "" {
			return fmt.Errorf("--responses is required")
		}

		responses, err := readJSONFile(responsesPath)
		if err != nil {
			return err
		}
		req := map[string]any{"questionnaireResponses": responses}
		if contextPath != "" {
			businessContext, err := readJSONFile(contextPath)
			if err != nil {
				return err
			}
			req["businessContext"] = businessContext
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post("/plans", req)
		if err != nil {
			return err
		}

		var result struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Created plan %s (status: %s)", result.ID, result.Status)
		fmt.Println(result.ID)
		return nil
	},
}

var planListCmd = &cobra.Command{
	Use:   "list",
	Short: "List plans",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(fmt.Sprintf("/plans?limit=%d", limit))
		if err != nil {
			return err
		}

		var plans []struct {
			ID                   string `json:"id"`
			Status               string `json:"status"`
			CompletionPercentage int    `json:"completionPercentage"`
			CreatedAt            string `json:"createdAt"`
		}
		if err := decodeJSON(resp, &plans); err != nil {
			return err
		}

		if len(plans) == 0 {
			fmt.Println("No plans found.")
			return nil
		}

		for _, p := range plans {
			fmt.Printf("%s  %-12s %3d%%  %s\n",
				colorize(colorCyan, p.ID[:8]),
				p.Status,
				p.CompletionPercentage,
				p.CreatedAt,
			)
		}
		return nil
	},
}

var planShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a plan as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get("/plans/" + args[0])
		if err != nil {
			return err
		}

		var p any
		if err := decodeJSON(resp, &p); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	},
}

var planGenerateCmd = &cobra.Command{
	Use:   "generate <id>",
	Short: "Run analysis and strategy generation for a plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		notify, _ := cmd.Flags().GetString("notify")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Generating plan %s (this can take a few minutes)...", args[0])

		var body any
		if notify != "" {
			body = map[string]string{"notifyEmail": notify}
		}
		resp, err := client.post("/plans/"+args[0]+"/generate", body)
		if err != nil {
			return err
		}

		var result struct {
			Success        bool  `json:"success"`
			ProcessingTime int64 `json:"processingTime"`
			Plan           struct {
				Status string `json:"status"`
			} `json:"plan"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Plan generated in %dms (status: %s)", result.ProcessingTime, result.Plan.Status)
		return nil
	},
}

var planDownloadCmd = &cobra.Command{
	Use:   "download <id>",
	Short: "Download the plan PDF",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get("/plans/" + args[0] + "/download")
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
		}

		if output == "" {
			output = filenameFromDisposition(resp, "marketing-plan.pdf")
		}
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()

		n, err := io.Copy(f, resp.Body)
		if err != nil {
			return fmt.Errorf("writing pdf: %w", err)
		}

		printSuccess("Saved %s (%d bytes)", output, n)
		return nil
	},
}

var planEmailCmd = &cobra.Command{
	Use:   "email <id>",
	Short: "Email a plan notification or share it with the PDF attached",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		to, _ := cmd.Flags().GetString("to")
		action, _ := cmd.Flags().GetString("action")
		sender, _ := cmd.Flags().GetString("sender")
		message, _ := cmd.Flags().GetString("message")

		if to == "" {
			return fmt.Errorf("--to is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := map[string]string{
			"action":         action,
			"recipientEmail": to,
		}
		if sender != "" {
			req["senderEmail"] = sender
		}
		if message != "" {
			req["message"] = message
		}
		resp, err := client.post("/plans/"+args[0]+"/email", req)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Email sent to %s", to)
		return nil
	},
}

var planDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a plan and its interaction history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete("/plans/" + args[0])
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted plan %s", args[0])
		return nil
	},
}

var planInteractionsCmd = &cobra.Command{
	Use:   "interactions <id>",
	Short: "List a plan's interaction log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(fmt.Sprintf("/plans/%s/interactions?limit=%d", args[0], limit))
		if err != nil {
			return err
		}

		var interactions []struct {
			ID               string `json:"id"`
			Type             string `json:"type"`
			ProcessingTimeMs int64  `json:"processingTimeMs"`
			CreatedAt        string `json:"createdAt"`
		}
		if err := decodeJSON(resp, &interactions); err != nil {
			return err
		}

		if len(interactions) == 0 {
			fmt.Println("No interactions found.")
			return nil
		}

		for _, ix := range interactions {
			fmt.Printf("%s  %-20s %6dms  %s\n",
				colorize(colorCyan, ix.ID[:8]),
				ix.Type,
				ix.ProcessingTimeMs,
				ix.CreatedAt,
			)
		}
		return nil
	},
}

func init() {
	planCreateCmd.Flags().String("responses", "", "path to questionnaire responses JSON file")
	planCreateCmd.Flags().String("context", "", "path to business context JSON file")
	planListCmd.Flags().Int("limit", 20, "maximum number of plans to list")
	planGenerateCmd.Flags().String("notify", "", "email address to notify on completion")
	planDownloadCmd.Flags().String("output", "", "output file path (default: server-suggested filename)")
	planEmailCmd.Flags().String("to", "", "recipient email address")
	planEmailCmd.Flags().String("action", "send_completion", "email action: send_completion or share")
	planEmailCmd.Flags().String("sender", "", "sender email shown in shared emails")
	planEmailCmd.Flags().String("message", "", "personal note included in shared emails")
	planInteractionsCmd.Flags().Int("limit", 20, "maximum number of interactions to list")

	planCmd.AddCommand(planCreateCmd)
	planCmd.AddCommand(planListCmd)
	planCmd.AddCommand(planShowCmd)
	planCmd.AddCommand(planGenerateCmd)
	planCmd.AddCommand(planDownloadCmd)
	planCmd.AddCommand(planEmailCmd)
	planCmd.AddCommand(planDeleteCmd)
	planCmd.AddCommand(planInteractionsCmd)
}

// --- validate ---

var validateCmd = &cobra.Command{
	Use:   "validate <responses.json>",
	Short: "Get feedback on questionnaire responses before generating",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		responses, err := readJSONFile(args[0])
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post("/validate-responses", map[string]any{"responses": responses})
		if err != nil {
			return err
		}

		var result struct {
			Suggestions     []string `json:"suggestions"`
			CompletionScore int      `json:"completionScore"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printStatus("Completion score", "%d/100", result.CompletionScore)
		for _, s := range result.Suggestions {
			printStep("%s", s)
		}
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

func readJSONFile(path string) (json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%s does not contain valid JSON", path)
	}
	return json.RawMessage(data), nil
}

func filenameFromDisposition(resp *http.Response, fallback string) string {
	disp := resp.Header.Get("Content-Disposition")
	const marker = `filename="`
	if idx := strings.Index(disp, marker); idx >= 0 {
		rest := disp[idx+len(marker):]
		if j := strings.Index(rest, `"`); j > 0 {
			return rest[:j]
		}
	}
	return fallback
}
