package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var apiAddr string

var predicatesCmd = &cobra.Command{
	Use:   "predicates",
	Short: "Manage registered chainhook predicates via the control API",
}

var predicatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered predicates",
	RunE:  runPredicatesList,
}

var predicatesRegisterCmd = &cobra.Command{
	Use:   "register <spec-file>",
	Short: "Register a predicate from a spec file (YAML or JSON)",
	Args:  cobra.ExactArgs(1),
	RunE:  runPredicatesRegister,
}

var predicatesUnregisterCmd = &cobra.Command{
	Use:   "unregister <uuid>",
	Short: "Unregister a predicate by uuid",
	Args:  cobra.ExactArgs(1),
	RunE:  runPredicatesUnregister,
}

var registerNetwork string

func init() {
	predicatesCmd.PersistentFlags().StringVar(&apiAddr, "api-addr", "http://localhost:8080", "control API base address")
	predicatesRegisterCmd.Flags().StringVar(&registerNetwork, "network", "mainnet", "network name within the spec file")
	predicatesCmd.AddCommand(predicatesListCmd, predicatesRegisterCmd, predicatesUnregisterCmd)
}

var httpClient = &http.Client{Timeout: 10 * time.Second}

func runPredicatesList(cmd *cobra.Command, args []string) error {
	resp, err := httpClient.Get(apiAddr + "/predicates")
	if err != nil {
		return fmt.Errorf("failed to reach control API: %w", err)
	}
	defer resp.Body.Close()

	return printResponse(resp)
}

func runPredicatesRegister(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read spec file: %w", err)
	}

	contentType := "application/yaml"
	if strings.HasSuffix(args[0], ".json") {
		contentType = "application/json"
	}

	url := fmt.Sprintf("%s/predicates?network=%s", apiAddr, registerNetwork)
	resp, err := httpClient.Post(url, contentType, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to reach control API: %w", err)
	}
	defer resp.Body.Close()

	return printResponse(resp)
}

func runPredicatesUnregister(cmd *cobra.Command, args []string) error {
	req, err := http.NewRequest(http.MethodDelete, apiAddr+"/predicates/"+args[0], nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach control API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		fmt.Println("unregistered")
		return nil
	}
	return printResponse(resp)
}

func printResponse(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read control API response: %w", err)
	}

	var pretty map[string]any
	if err := json.Unmarshal(body, &pretty); err == nil {
		encoded, _ := json.MarshalIndent(pretty, "", "  ")
		fmt.Println(string(encoded))
		return nil
	}

	var prettyList []map[string]any
	if err := json.Unmarshal(body, &prettyList); err == nil {
		encoded, _ := json.MarshalIndent(prettyList, "", "  ")
		fmt.Println(string(encoded))
		return nil
	}

	fmt.Println(string(body))
	return nil
}
