// Package main はCLIツールのエントリポイント。
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

const version = "1.0.0"

var (
	apiURL  string
	output  string
	timeout time.Duration
)

// HTTPクライアント
var httpClient *http.Client

func main() {
	rootCmd := &cobra.Command{
		Use:   "keystorectl",
		Short: "Keystore Service CLI",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if apiURL == "" {
				apiURL = os.Getenv("KEYSTORECTL_API_URL")
			}
			httpClient = &http.Client{Timeout: timeout}
		},
	}

	// グローバルフラグ
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "API endpoint URL (or set KEYSTORECTL_API_URL)")
	rootCmd.PersistentFlags().StringVar(&output, "output", "text", "Output format: text, json")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")

	// サブコマンド登録
	rootCmd.AddCommand(createCmd())
	rootCmd.AddCommand(getCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(useCmd())
	rootCmd.AddCommand(deleteCmd())
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// versionCmd はバージョン情報を表示する。
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("keystorectl version %s\n", version)
		},
	}
}

// protectionFlags は保護パラメータのコマンドラインフラグ群。
type protectionFlags struct {
	encryptionRequired bool
	validityStart      string
	validityEnd        string
	originationEnd     string
	consumptionEnd     string
	purposes           []string
	paddings           []string
	digests            []string
	digestsSet         bool
	blockModes         []string
	authenticators     []string
	authValiditySecs   int
}

func (f *protectionFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.encryptionRequired, "encryption-required", false, "Require the entry to be encrypted at rest")
	cmd.Flags().StringVar(&f.validityStart, "validity-start", "", "Key not usable before this instant (RFC3339)")
	cmd.Flags().StringVar(&f.validityEnd, "validity-end", "", "Key not usable after this instant (RFC3339, sets both ends)")
	cmd.Flags().StringVar(&f.originationEnd, "origination-end", "", "Key not usable for encryption/signing after this instant (RFC3339)")
	cmd.Flags().StringVar(&f.consumptionEnd, "consumption-end", "", "Key not usable for decryption/verification after this instant (RFC3339)")
	cmd.Flags().StringSliceVar(&f.purposes, "purposes", nil, "Allowed purposes (encrypt,decrypt,sign,verify)")
	cmd.Flags().StringSliceVar(&f.paddings, "paddings", nil, "Allowed paddings (none,pkcs7,rsa-pkcs1,rsa-oaep,rsa-pss)")
	cmd.Flags().StringSliceVar(&f.digests, "digests", nil, "Allowed digests (sha1,sha256,sha384,sha512)")
	cmd.Flags().StringSliceVar(&f.blockModes, "block-modes", nil, "Allowed block modes (ecb,cbc,ctr,gcm)")
	cmd.Flags().StringSliceVar(&f.authenticators, "authenticators", nil, "Required user authenticators (lockscreen,fingerprint)")
	cmd.Flags().IntVar(&f.authValiditySecs, "auth-validity", -1, "Seconds a user authentication remains valid (-1 unlimited, 0 per use)")
}

// toRequest はフラグ群をAPIリクエストの保護パラメータ部に変換する。
func (f *protectionFlags) toRequest(cmd *cobra.Command) (map[string]interface{}, error) {
	protection := map[string]interface{}{
		"encryption_required":        f.encryptionRequired,
		"user_auth_validity_seconds": f.authValiditySecs,
	}

	for flag, value := range map[string]string{
		"key_validity_start":               f.validityStart,
		"key_validity_end":                 f.validityEnd,
		"key_validity_for_origination_end": f.originationEnd,
		"key_validity_for_consumption_end": f.consumptionEnd,
	} {
		if value == "" {
			continue
		}
		if _, err := time.Parse(time.RFC3339, value); err != nil {
			return nil, fmt.Errorf("invalid timestamp %q: %w", value, err)
		}
		protection[flag] = value
	}

	if len(f.purposes) > 0 {
		protection["purposes"] = f.purposes
	}
	if len(f.paddings) > 0 {
		protection["paddings"] = f.paddings
	}
	// --digestsは明示指定の有無で未指定と空集合を区別する
	if cmd.Flags().Changed("digests") {
		protection["digests"] = f.digests
	}
	if len(f.blockModes) > 0 {
		protection["block_modes"] = f.blockModes
	}
	if len(f.authenticators) > 0 {
		protection["user_authenticators"] = f.authenticators
	}

	return protection, nil
}

// createCmd はエントリの生成コマンド。
func createCmd() *cobra.Command {
	var alias string
	var flags protectionFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new keystore entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			if apiURL == "" {
				return fmt.Errorf("--api-url is required (or set KEYSTORECTL_API_URL)")
			}

			protection, err := flags.toRequest(cmd)
			if err != nil {
				return err
			}
			payload, err := json.Marshal(map[string]interface{}{
				"alias":      alias,
				"protection": protection,
			})
			if err != nil {
				return fmt.Errorf("encoding request: %w", err)
			}

			url := fmt.Sprintf("%s/v1/entries", apiURL)
			resp, err := httpClient.Post(url, "application/json", bytes.NewReader(payload))
			if err != nil {
				return fmt.Errorf("API request failed: %w", err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("reading response: %w", err)
			}

			if resp.StatusCode != http.StatusCreated {
				return handleErrorResponse(resp.StatusCode, body)
			}

			if output == "json" {
				fmt.Println(string(body))
			} else {
				fmt.Printf("Created entry %q\n", alias)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&alias, "alias", "", "Entry alias (required)")
	cmd.MarkFlagRequired("alias")
	flags.register(cmd)
	return cmd
}

// getCmd はエントリメタデータの取得コマンド。
func getCmd() *cobra.Command {
	var alias string
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Get a keystore entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			if apiURL == "" {
				return fmt.Errorf("--api-url is required (or set KEYSTORECTL_API_URL)")
			}

			url := fmt.Sprintf("%s/v1/entries/%s", apiURL, alias)
			resp, err := httpClient.Get(url)
			if err != nil {
				return fmt.Errorf("API request failed: %w", err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("reading response: %w", err)
			}

			if resp.StatusCode != http.StatusOK {
				return handleErrorResponse(resp.StatusCode, body)
			}

			fmt.Println(string(body))
			return nil
		},
	}
	cmd.Flags().StringVar(&alias, "alias", "", "Entry alias (required)")
	cmd.MarkFlagRequired("alias")
	return cmd
}

// listCmd はエントリ一覧の取得コマンド。
func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List keystore entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			if apiURL == "" {
				return fmt.Errorf("--api-url is required (or set KEYSTORECTL_API_URL)")
			}

			url := fmt.Sprintf("%s/v1/entries", apiURL)
			resp, err := httpClient.Get(url)
			if err != nil {
				return fmt.Errorf("API request failed: %w", err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("reading response: %w", err)
			}

			if resp.StatusCode != http.StatusOK {
				return handleErrorResponse(resp.StatusCode, body)
			}

			if output == "json" {
				fmt.Println(string(body))
				return nil
			}

			var result struct {
				Entries []struct {
					Alias      string `json:"alias"`
					Encrypted  bool   `json:"encrypted"`
					CreatedAt  string `json:"created_at"`
					Protection struct {
						Purposes []string `json:"purposes"`
					} `json:"protection"`
				} `json:"entries"`
			}
			if err := json.Unmarshal(body, &result); err != nil {
				return fmt.Errorf("parsing response: %w", err)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "ALIAS\tENCRYPTED\tPURPOSES\tCREATED AT")
			for _, e := range result.Entries {
				purposes := strings.Join(e.Protection.Purposes, ",")
				if purposes == "" {
					purposes = "-"
				}
				fmt.Fprintf(w, "%s\t%t\t%s\t%s\n", e.Alias, e.Encrypted, purposes, e.CreatedAt)
			}
			return w.Flush()
		},
	}
}

// useCmd は制約検証付きの鍵取得コマンド。
func useCmd() *cobra.Command {
	var alias string
	var purpose string
	var authenticatedAt string
	cmd := &cobra.Command{
		Use:   "use",
		Short: "Use a key for a purpose, subject to its protection parameters",
		RunE: func(cmd *cobra.Command, args []string) error {
			if apiURL == "" {
				return fmt.Errorf("--api-url is required (or set KEYSTORECTL_API_URL)")
			}

			request := map[string]interface{}{
				"purpose": purpose,
			}
			if authenticatedAt != "" {
				if _, err := time.Parse(time.RFC3339, authenticatedAt); err != nil {
					return fmt.Errorf("invalid timestamp %q: %w", authenticatedAt, err)
				}
				request["authenticated_at"] = authenticatedAt
			}
			payload, err := json.Marshal(request)
			if err != nil {
				return fmt.Errorf("encoding request: %w", err)
			}

			url := fmt.Sprintf("%s/v1/entries/%s/key", apiURL, alias)
			resp, err := httpClient.Post(url, "application/json", bytes.NewReader(payload))
			if err != nil {
				return fmt.Errorf("API request failed: %w", err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("reading response: %w", err)
			}

			if resp.StatusCode != http.StatusOK {
				return handleErrorResponse(resp.StatusCode, body)
			}

			if output == "json" {
				fmt.Println(string(body))
			} else {
				var result map[string]interface{}
				if err := json.Unmarshal(body, &result); err != nil {
					return fmt.Errorf("parsing response: %w", err)
				}
				fmt.Printf("%v\n", result["key"])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&alias, "alias", "", "Entry alias (required)")
	cmd.Flags().StringVar(&purpose, "purpose", "", "Purpose of use: encrypt, decrypt, sign, verify (required)")
	cmd.Flags().StringVar(&authenticatedAt, "authenticated-at", "", "Time of last successful user authentication (RFC3339)")
	cmd.MarkFlagRequired("alias")
	cmd.MarkFlagRequired("purpose")
	return cmd
}

// deleteCmd はエントリの削除コマンド。
func deleteCmd() *cobra.Command {
	var alias string
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a keystore entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			if apiURL == "" {
				return fmt.Errorf("--api-url is required (or set KEYSTORECTL_API_URL)")
			}

			url := fmt.Sprintf("%s/v1/entries/%s", apiURL, alias)
			req, err := http.NewRequest(http.MethodDelete, url, nil)
			if err != nil {
				return fmt.Errorf("building request: %w", err)
			}
			resp, err := httpClient.Do(req)
			if err != nil {
				return fmt.Errorf("API request failed: %w", err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("reading response: %w", err)
			}

			if resp.StatusCode != http.StatusNoContent {
				return handleErrorResponse(resp.StatusCode, body)
			}

			fmt.Printf("Deleted entry %q\n", alias)
			return nil
		},
	}
	cmd.Flags().StringVar(&alias, "alias", "", "Entry alias (required)")
	cmd.MarkFlagRequired("alias")
	return cmd
}

// handleErrorResponse はAPIのエラーレスポンスをCLIエラーに変換する。
func handleErrorResponse(status int, body []byte) error {
	var errResp struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Code == "" {
		return fmt.Errorf("API error (HTTP %d)", status)
	}
	return fmt.Errorf("%s: %s (HTTP %d)", errResp.Code, errResp.Message, status)
}
