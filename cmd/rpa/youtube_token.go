package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"multi-platform-rpa/internal/publishers"
)

func newYouTubeTokenCmd() *cobra.Command {
	var credentialsPath, tokenPath string
	cmd := &cobra.Command{
		Use:   "youtube-token",
		Short: "Authorize the YouTube publisher and save an offline token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			config, err := publishers.YouTubeOAuthConfig(credentialsPath)
			if err != nil {
				fmt.Fprintln(out, "Download OAuth 2.0 credentials (Desktop app) from https://console.cloud.google.com/")
				return err
			}
			fmt.Fprintf(out, "Using credentials: %s\n", credentialsPath)
			fmt.Fprintf(out, "Token will be saved to: %s\n\n", tokenPath)

			authURL := config.AuthCodeURL("state", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
			fmt.Fprintf(out, "Open this URL in your browser:\n   %s\n\n", authURL)
			fmt.Fprint(out, "Authorization code: ")

			var authCode string
			if _, err := fmt.Fscanln(cmd.InOrStdin(), &authCode); err != nil {
				return fmt.Errorf("read auth code: %w", err)
			}

			token, err := config.Exchange(ctx, authCode)
			if err != nil {
				return fmt.Errorf("exchange token: %w", err)
			}
			if token.RefreshToken == "" {
				fmt.Fprintln(out, "warning: no refresh token returned; the token will expire")
			}

			if dir := filepath.Dir(tokenPath); dir != "." && dir != "" {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return err
				}
			}
			if err := publishers.SaveToken(tokenPath, token); err != nil {
				return fmt.Errorf("save token: %w", err)
			}
			fmt.Fprintf(out, "Token saved: %s\n", tokenPath)

			// Channel lookup only confirms which account was authorized.
			service, err := youtube.NewService(ctx, option.WithHTTPClient(config.Client(ctx, token)))
			if err != nil {
				fmt.Fprintf(out, "could not verify channel: %v\n", err)
				return nil
			}
			channels, err := service.Channels.List([]string{"snippet"}).Mine(true).Context(ctx).Do()
			if err != nil {
				fmt.Fprintf(out, "could not fetch channel info: %v\n", err)
				return nil
			}
			if len(channels.Items) > 0 {
				ch := channels.Items[0]
				fmt.Fprintf(out, "Channel: %s (%s)\n", ch.Snippet.Title, ch.Id)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&credentialsPath, "credentials", envOr("YOUTUBE_CLIENT_SECRETS", "client_secrets.json"), "OAuth client secrets file")
	cmd.Flags().StringVar(&tokenPath, "token", envOr("YOUTUBE_TOKEN", "youtube_token.json"), "where to save the token")
	return cmd
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
