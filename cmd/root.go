package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"log/slog"

	"github.com/spf13/cobra"

	"github.com/opendocs/chatstream/internal/config"
	"github.com/opendocs/chatstream/internal/format"
	"github.com/opendocs/chatstream/internal/logging"
	"github.com/opendocs/chatstream/internal/mock"
	"github.com/opendocs/chatstream/internal/version"
)

// mockAddr is where --mock hosts the embedded backend.
const mockAddr = "127.0.0.1:8091"

var rootCmd = &cobra.Command{
	Use:   "chatstream [prompt]",
	Short: "Stream answers from a document-grounded chat backend",
	Long: `chatstream sends a prompt to a retrieval-backed chat endpoint and renders
the answer as it streams in. It reassembles the newline-delimited response,
tracks tool calls the assistant makes against the document store, and prints
the final result as text or JSON.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flag("help").Changed {
			cmd.Help()
			return nil
		}
		if cmd.Flag("version").Changed {
			fmt.Println(version.Version)
			return nil
		}

		// Setup logging
		textHandler := slog.NewTextHandler(logging.NewSlogWriter(), &slog.HandlerOptions{})
		slog.SetDefault(slog.New(textHandler))

		// Load the config
		debug, _ := cmd.Flags().GetBool("debug")
		cwd, _ := cmd.Flags().GetString("cwd")
		if cwd != "" {
			if err := os.Chdir(cwd); err != nil {
				return fmt.Errorf("failed to change directory: %v", err)
			}
		}
		if cwd == "" {
			c, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get current working directory: %v", err)
			}
			cwd = c
		}
		cfg, err := config.Load(cwd, debug)
		if err != nil {
			return err
		}

		if endpoint, _ := cmd.Flags().GetString("endpoint"); endpoint != "" {
			cfg.Server.Endpoint = endpoint
		}

		// --mock runs the embedded dev backend and points the client at it.
		if useMock, _ := cmd.Flags().GetBool("mock"); useMock {
			mockCtx, stopMock := context.WithCancel(cmd.Context())
			defer stopMock()
			go func() {
				if err := mock.NewServer(mockAddr).Start(mockCtx); err != nil {
					slog.Error("Mock server failed", "error", err)
				}
			}()
			cfg.Server.Endpoint = "http://" + mockAddr + "/chat"
			time.Sleep(100 * time.Millisecond)
		}

		prompt, _ := cmd.Flags().GetString("prompt")
		if prompt == "" && len(args) > 0 {
			prompt = args[0]
		}
		if piped, ok := checkStdinPipe(); ok {
			if prompt == "" {
				prompt = piped
			} else {
				prompt = prompt + "\n\n" + piped
			}
		}
		if prompt == "" {
			cmd.Help()
			return fmt.Errorf("a prompt is required")
		}

		outputFormatStr, _ := cmd.Flags().GetString("output-format")
		outputFormat := format.OutputFormat(outputFormatStr)
		if !outputFormat.IsValid() {
			return fmt.Errorf("invalid output format: %s", outputFormatStr)
		}

		quiet, _ := cmd.Flags().GetBool("quiet")
		verbose, _ := cmd.Flags().GetBool("verbose")
		previousResponseID, _ := cmd.Flags().GetString("continue-from")

		return handleChat(cmd.Context(), chatOptions{
			Prompt:             prompt,
			OutputFormat:       outputFormat,
			Quiet:              quiet,
			Verbose:            verbose,
			PreviousResponseID: previousResponseID,
		})
	},
}

// checkStdinPipe reports whether data was piped on stdin and returns it.
func checkStdinPipe() (string, bool) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return "", false
	}
	if stat.Mode()&os.ModeCharDevice != 0 {
		return "", false
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil || len(data) == 0 {
		return "", false
	}
	return strings.TrimRight(string(data), "\n"), true
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolP("help", "h", false, "Help")
	rootCmd.Flags().BoolP("version", "v", false, "Version")
	rootCmd.Flags().BoolP("debug", "d", false, "Debug")
	rootCmd.Flags().StringP("cwd", "c", "", "Current working directory")
	rootCmd.Flags().StringP("prompt", "p", "", "The prompt to send")
	rootCmd.Flags().StringP("output-format", "f", "text", "Output format (text, json)")
	rootCmd.Flags().StringP("endpoint", "e", "", "Override the chat endpoint")
	rootCmd.Flags().String("continue-from", "", "Response id to continue the conversation from")
	rootCmd.Flags().BoolP("quiet", "q", false, "Suppress streaming output, print only the final result")
	rootCmd.Flags().Bool("verbose", false, "Log progress to stderr while streaming")
	rootCmd.Flags().Bool("mock", false, "Run against the embedded mock backend")

	rootCmd.AddCommand(serveCmd)
}
