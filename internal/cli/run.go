package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

var (
	runURL   string
	runLang  string
	runStdin string
)

var runCmd = &cobra.Command{
	Use:   "run [source-file]",
	Short: "Run a source file against a judge server's /run endpoint",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		source, err := os.ReadFile(args[0])
		if err != nil {
			fmt.Printf("Failed to read %s: %v\n", args[0], err)
			os.Exit(1)
		}

		payload := map[string]any{
			"lang":   runLang,
			"source": source,
			"tests":  []map[string]any{{"stdin": []byte(runStdin)}},
		}
		body, err := json.Marshal(payload)
		if err != nil {
			fmt.Printf("Failed to encode request: %v\n", err)
			os.Exit(1)
		}

		resp, err := http.Post(runURL+"/run", "application/json", bytes.NewReader(body))
		if err != nil {
			fmt.Printf("Failed to connect: %v\nIs the server running?\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			fmt.Printf("Request failed: %s\n", resp.Status)
			io.Copy(os.Stderr, resp.Body)
			os.Exit(1)
		}

		var result struct {
			Success bool   `json:"success"`
			Error   string `json:"error"`
			Compile *struct {
				Status string `json:"status"`
				Stderr []byte `json:"stderr"`
			} `json:"compile"`
			Tests []struct {
				Name     string `json:"name"`
				Status   string `json:"status"`
				ExitCode int    `json:"exitcode"`
				Stdout   []byte `json:"stdout"`
				Stderr   []byte `json:"stderr"`
			} `json:"tests"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			fmt.Printf("Bad response: %v\n", err)
			os.Exit(1)
		}

		if !result.Success {
			fmt.Printf("judge error: %s\n", result.Error)
			os.Exit(1)
		}
		if result.Compile != nil && result.Compile.Status != "OK" {
			fmt.Printf("compile failed: %s\n%s\n", result.Compile.Status, result.Compile.Stderr)
			os.Exit(1)
		}
		for _, t := range result.Tests {
			fmt.Printf("== %s: %s (exit %d) ==\n", t.Name, t.Status, t.ExitCode)
			os.Stdout.Write(t.Stdout)
			if len(t.Stderr) > 0 {
				fmt.Fprintln(os.Stderr, string(t.Stderr))
			}
		}
	},
}

func init() {
	runCmd.Flags().StringVar(&runURL, "url", "http://localhost:8080", "Base URL of the judge server")
	runCmd.Flags().StringVarP(&runLang, "lang", "l", "", "Registered language name")
	runCmd.Flags().StringVar(&runStdin, "stdin", "", "Stdin fed to the single test run")
	runCmd.MarkFlagRequired("lang")
	RootCmd.AddCommand(runCmd)
}
