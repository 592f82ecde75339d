// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// chatctl is a small CLI for talking to a running chat orchestrator:
// send messages, upsert documents, inspect conversations, check
// health.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianChat/services/orchestrator/datatypes"
)

var (
	serverURL      string
	conversationID string
	userID         string

	httpClient = &http.Client{Timeout: 10 * time.Minute}
)

var rootCmd = &cobra.Command{
	Use:   "chatctl",
	Short: "A CLI for the Aleutian chat orchestrator",
	Long: `chatctl talks to a running chat orchestrator: send chat messages
and stream the reply, upsert documents into the conversation's
context, list and delete conversations, and check service health.`,
}

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Send a message and stream the reply (interactive without args)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 {
			_, err := sendMessage(strings.Join(args, " "))
			return err
		}
		return runInteractive()
	},
}

var upsertCmd = &cobra.Command{
	Use:   "upsert <file>...",
	Short: "Upsert document files into the conversation's context",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if conversationID == "" {
			return fmt.Errorf("--conversation is required for upsert")
		}

		req := datatypes.UpsertRequest{ConversationID: conversationID}
		for _, path := range args {
			content, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}
			req.Documents = append(req.Documents, datatypes.UpsertDocument{
				ID:       filepath.Base(path),
				Text:     string(content),
				Metadata: map[string]string{"source": path},
			})
		}

		body, err := postJSON("/upsert", req)
		if err != nil {
			return err
		}
		var resp datatypes.UpsertResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return fmt.Errorf("unexpected upsert response: %w", err)
		}
		fmt.Printf("Stored %d chunks for conversation %s\n", resp.Chunks, conversationID)
		return nil
	},
}

var conversationsCmd = &cobra.Command{
	Use:   "conversations",
	Short: "Manage stored conversations",
}

var listConversationsCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := getJSON("/v1/conversations")
		if err != nil {
			return err
		}
		var resp struct {
			Conversations []datatypes.ConversationSummary `json:"conversations"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return fmt.Errorf("unexpected response: %w", err)
		}
		if len(resp.Conversations) == 0 {
			fmt.Println("No conversations.")
			return nil
		}
		for _, conv := range resp.Conversations {
			fmt.Printf("%s  user=%s  messages=%d\n",
				conv.ConversationID, conv.UserID, conv.MessageCount)
		}
		return nil
	},
}

var showConversationCmd = &cobra.Command{
	Use:   "show <conversation-id>",
	Short: "Print a conversation transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := getJSON("/v1/conversations/" + args[0] + "/messages")
		if err != nil {
			return err
		}
		var resp struct {
			Messages []datatypes.ChatMessage `json:"messages"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return fmt.Errorf("unexpected response: %w", err)
		}
		for _, msg := range resp.Messages {
			fmt.Printf("[%s] %s\n", msg.Role, msg.Content)
		}
		return nil
	},
}

var deleteConversationCmd = &cobra.Command{
	Use:   "delete <conversation-id>",
	Short: "Delete a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := http.NewRequest(http.MethodDelete,
			serverURL+"/v1/conversations/"+args[0], nil)
		if err != nil {
			return err
		}
		resp, err := httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusNoContent {
			return apiError(resp)
		}
		fmt.Println("Deleted.")
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check orchestrator health",
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := getJSON("/health")
		if err != nil {
			return err
		}
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, body, "", "  "); err != nil {
			fmt.Println(string(body))
			return nil
		}
		fmt.Println(pretty.String())
		return nil
	},
}

// sendMessage posts one chat turn and streams the reply to stdout.
// It returns the conversation id the server settled on.
func sendMessage(message string) (string, error) {
	req := datatypes.ChatRequest{
		Messages:       []datatypes.ChatMessage{{Role: datatypes.RoleUser, Content: message}},
		ConversationID: conversationID,
		UserID:         userID,
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequest(http.MethodPost,
		serverURL+"/message", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", apiError(resp)
	}

	result, err := NewStreamProcessor(os.Stdout).Process(resp.Body)
	if err != nil {
		return "", err
	}
	return result.ConversationID, nil
}

// runInteractive reads lines from stdin and keeps the conversation id
// across turns.
func runInteractive() error {
	fmt.Println("Interactive chat. Empty line or Ctrl-D to quit.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			break
		}
		convID, err := sendMessage(line)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			continue
		}
		if conversationID == "" {
			conversationID = convID
			fmt.Printf("(conversation %s)\n", convID)
		}
	}
	return scanner.Err()
}

func getJSON(path string) ([]byte, error) {
	resp, err := httpClient.Get(serverURL + path)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}
	return io.ReadAll(resp.Body)
}

func postJSON(path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Post(serverURL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}
	return io.ReadAll(resp.Body)
}

func apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var parsed struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != "" {
		return fmt.Errorf("server returned %s: %s", resp.Status, parsed.Error)
	}
	return fmt.Errorf("server returned %s", resp.Status)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server",
		"http://localhost:8000", "orchestrator base URL")
	rootCmd.PersistentFlags().StringVar(&conversationID, "conversation", "",
		"conversation id to continue (server generates one when empty)")
	rootCmd.PersistentFlags().StringVar(&userID, "user", "",
		"user id to attribute messages to")

	conversationsCmd.AddCommand(listConversationsCmd, showConversationCmd,
		deleteConversationCmd)
	rootCmd.AddCommand(chatCmd, upsertCmd, conversationsCmd, healthCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}
