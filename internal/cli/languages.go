package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var languagesURL string

var languagesCmd = &cobra.Command{
	Use:   "languages",
	Short: "List languages registered on a running judge server",
	Run: func(cmd *cobra.Command, args []string) {
		resp, err := http.Get(languagesURL + "/languages")
		if err != nil {
			fmt.Printf("Error connecting to server: %v\nIs the server running?\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			fmt.Printf("Server returned error: %s\n", resp.Status)
			os.Exit(1)
		}

		var result struct {
			Languages map[string]struct {
				Name     string   `json:"name"`
				Eligible bool     `json:"eligible"`
				Programs []string `json:"programs"`
			} `json:"languages"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			fmt.Printf("Error parsing response: %v\n", err)
			os.Exit(1)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "KEY\tELIGIBLE\tPROGRAMS")
		for key, info := range result.Languages {
			fmt.Fprintf(w, "%s\t%v\t%v\n", key, info.Eligible, info.Programs)
		}
		w.Flush()
	},
}

func init() {
	languagesCmd.Flags().StringVar(&languagesURL, "url", "http://localhost:8080", "Base URL of the judge server")
	RootCmd.AddCommand(languagesCmd)
}
