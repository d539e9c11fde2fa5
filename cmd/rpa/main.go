// Command rpa publishes videos from the command line with the same
// engine and publishers the daemon uses.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"multi-platform-rpa/internal"
	"multi-platform-rpa/internal/logging"
	"multi-platform-rpa/internal/model"
	"multi-platform-rpa/internal/platforms"
	"multi-platform-rpa/internal/publishers"
	"multi-platform-rpa/internal/scheduler"
	"multi-platform-rpa/internal/server"
)

func main() {
	for _, path := range []string{".env", "../.env", "../../.env"} {
		_ = godotenv.Load(path)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "rpa",
		Short:        "Publish videos to video platforms through browser automation or their APIs",
		SilenceUsage: true,
	}
	root.AddCommand(
		newPublishCmd(),
		newBatchCmd(),
		newPlatformsCmd(),
		newCheckScriptsCmd(),
		newYouTubeTokenCmd(),
	)
	return root
}

// session is one CLI invocation's stack. Browser publishing needs the
// file-buffer endpoint, so an in-process server runs while it is open.
type session struct {
	log   *logging.Logger
	stack *scheduler.Stack
	stop  context.CancelFunc
	done  chan error
}

// openSession builds the stack. The browser and file server start only
// when one of reqs is published through the engine.
func openSession(ctx context.Context, reqs []model.PublishRequest) (*session, error) {
	cfg, err := internal.LoadConfig()
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.ErrorsLog)
	if err != nil {
		return nil, err
	}
	stack, err := scheduler.NewStack(ctx, cfg, log)
	if err != nil {
		log.Close()
		return nil, err
	}
	s := &session{log: log, stack: stack}
	if !needsBrowser(stack.Table, reqs) {
		stack.Engine.LoadScripts()
		return s, nil
	}

	srvCtx, cancel := context.WithCancel(ctx)
	s.stop = cancel
	s.done = make(chan error, 1)
	router := server.NewRouter(server.Deps{StorageDir: cfg.StorageDir, Dispatcher: stack.Dispatcher, Metrics: stack.Metrics, Log: log})
	srv := server.New(cfg.HTTPAddr, router, log.With("http"))
	go func() { s.done <- srv.Run(srvCtx) }()

	if err := stack.Engine.Initialize(ctx); err != nil {
		s.close()
		return nil, fmt.Errorf("initialize engine: %w", err)
	}
	return s, nil
}

func (s *session) close() {
	if err := s.stack.Engine.Cleanup(); err != nil {
		s.log.Errorf("engine cleanup: %v", err)
	}
	if s.stop != nil {
		s.stop()
		if err := <-s.done; err != nil {
			s.log.Errorf("file server: %v", err)
		}
	}
	s.log.Close()
}

// needsBrowser reports whether any request goes through the RPA engine.
func needsBrowser(table platforms.Table, reqs []model.PublishRequest) bool {
	return lo.SomeBy(reqs, func(r model.PublishRequest) bool {
		e, ok := table.Lookup(r.Platform)
		return ok && e.Method == model.MethodRPA
	})
}

func newPublishCmd() *cobra.Command {
	var (
		req      model.PublishRequest
		platform string
	)
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish one video to one platform",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := model.ParsePlatform(platform)
			if err != nil {
				return err
			}
			req.Platform = p
			reqs := []model.PublishRequest{req}

			s, err := openSession(cmd.Context(), reqs)
			if err != nil {
				return err
			}
			defer s.close()

			res, err := s.stack.Dispatcher.Dispatch(publishers.WithSource(cmd.Context(), publishers.SourceCLI), req)
			if err != nil {
				return err
			}
			if err := printJSON(cmd, res); err != nil {
				return err
			}
			if !res.Success {
				return fmt.Errorf("publish to %s failed: %s", res.Platform, res.Error)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&platform, "platform", "p", "", "target platform")
	f.StringVar(&req.Content.VideoPath, "video", "", "video path relative to the storage directory")
	f.StringVar(&req.Content.Title, "title", "", "video title")
	f.StringVar(&req.Content.Description, "description", "", "video description")
	f.StringSliceVar(&req.Content.Tags, "tags", nil, "comma separated tags")
	f.StringVar(&req.Content.ThumbnailPath, "thumbnail", "", "thumbnail path relative to the storage directory")
	f.StringVar(&req.Content.Location, "location", "", "location keyword")
	f.StringVar(&req.CredentialPath, "cookies", "", "cookie bundle for browser publishing")
	_ = cmd.MarkFlagRequired("platform")
	_ = cmd.MarkFlagRequired("video")
	return cmd
}

func newBatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "batch FILE",
		Short: "Publish every request listed in a YAML or JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reqs, err := readRequests(args[0])
			if err != nil {
				return err
			}
			s, err := openSession(cmd.Context(), reqs)
			if err != nil {
				return err
			}
			defer s.close()

			results := s.stack.Dispatcher.DispatchBatch(publishers.WithSource(cmd.Context(), publishers.SourceCLI), reqs)
			if err := printJSON(cmd, results); err != nil {
				return err
			}
			if failed := lo.CountBy(results, func(r model.ExecutionResult) bool { return !r.Success }); failed > 0 {
				return fmt.Errorf("%d of %d publishes failed", failed, len(results))
			}
			return nil
		},
	}
}

// readRequests parses a request list. YAML is a superset of JSON, so
// one decoder serves both.
func readRequests(path string) ([]model.PublishRequest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reqs []model.PublishRequest
	if err := yaml.Unmarshal(b, &reqs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(reqs) == 0 {
		return nil, fmt.Errorf("%s: no requests", path)
	}
	for i := range reqs {
		p, err := model.ParsePlatform(string(reqs[i].Platform))
		if err != nil {
			return nil, fmt.Errorf("request %d: %w", i, err)
		}
		reqs[i].Platform = p
	}
	return reqs, nil
}

func newPlatformsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "platforms",
		Short: "List platforms, their publish method and availability",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer s.close()
			for _, info := range s.stack.Dispatcher.Platforms() {
				mark := "-"
				if info.Available {
					mark = "+"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %-12s %-10s %s\n", mark, info.Platform, info.Method, info.URL)
			}
			return nil
		},
	}
}

func newCheckScriptsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-scripts",
		Short: "Verify that every browser platform has an automation script",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer s.close()

			want := s.stack.Table.ByMethod(model.MethodRPA)
			have := s.stack.Engine.SupportedPlatforms()
			missing, _ := lo.Difference(want, have)
			fmt.Fprintf(cmd.OutOrStdout(), "scripts dir: %s\n", s.stack.Config.ScriptsDir)
			fmt.Fprintf(cmd.OutOrStdout(), "supported:   %v\n", have)
			if len(missing) > 0 {
				return fmt.Errorf("missing scripts for %v", missing)
			}
			return nil
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
