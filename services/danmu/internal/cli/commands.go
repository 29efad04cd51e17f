package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/example/danmu-platform/internal/platform/auth"
	"github.com/example/danmu-platform/internal/platform/httpserver"
	"github.com/example/danmu-platform/services/danmu/internal/domain"
	"github.com/example/danmu-platform/services/danmu/internal/service"
)

// NewRootCommand builds danmuctl. Commands that need the engine call open
// once and release it before returning.
func NewRootCommand(open Opener) *cobra.Command {
	var configFlag, logLevelFlag string
	ctx := &commandContext{open: open, configPath: &configFlag, logLevel: &logLevelFlag}

	root := &cobra.Command{
		Use:           "danmuctl",
		Short:         "Resolve videos and fetch danmu without the HTTP server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cmd.SetContext(httpserver.WithRequestID(cmd.Context(), "cli-"+uuid.NewString()))
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (default $DANMU_CONFIG)")
	root.PersistentFlags().StringVar(&logLevelFlag, "log-level", "warn", "Log level written to stderr")

	root.AddCommand(newCommentsCommand(ctx))
	root.AddCommand(newResolveCommand(ctx))
	root.AddCommand(newEpisodeCommand(ctx))
	root.AddCommand(newStatsCommand(ctx))
	root.AddCommand(newPurgeCommand(ctx))
	root.AddCommand(newTokenCommand())
	return root
}

type identityFlags struct {
	catalogID string
	title     string
	season    string
	series    bool
	videoType string
}

func (f *identityFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.catalogID, "douban-id", "", "Douban subject id")
	cmd.Flags().StringVar(&f.title, "title", "", "Title to resolve when no douban id is known")
	cmd.Flags().StringVar(&f.season, "season", "", "Season number hint for title lookups")
	cmd.Flags().BoolVar(&f.series, "series", true, "Title names a series rather than a movie")
	cmd.Flags().StringVar(&f.videoType, "type", "tv", "Video type: tv | movie")
	cmd.MarkFlagsMutuallyExclusive("douban-id", "title")
	cmd.MarkFlagsOneRequired("douban-id", "title")
}

func (f *identityFlags) identity() (domain.Identity, error) {
	vt, ok := domain.ParseVideoType(f.videoType)
	if !ok {
		return domain.Identity{}, fmt.Errorf("invalid --type %q (want tv or movie)", f.videoType)
	}
	id := domain.Identity{
		CatalogID:    strings.TrimSpace(f.catalogID),
		Title:        strings.TrimSpace(f.title),
		SeasonNumber: strings.TrimSpace(f.season),
		IsSeries:     f.series,
		VideoType:    vt,
	}
	if !id.HasCatalogID() && !id.HasTitle() {
		return domain.Identity{}, errors.New("one of --douban-id or --title is required")
	}
	return id, nil
}

func newCommentsCommand(ctx *commandContext) *cobra.Command {
	var pageURL string
	var limit int
	cmd := &cobra.Command{
		Use:   "comments",
		Short: "Fetch the danmu of a provider page URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd.Context(), func(e Engine) error {
				return writeResponse(cmd.OutOrStdout(), e.ByURL(cmd.Context(), pageURL), limit)
			})
		},
	}
	cmd.Flags().StringVar(&pageURL, "url", "", "Provider episode page URL")
	cmd.Flags().IntVar(&limit, "limit", 0, "Print at most this many comments (0 prints all)")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

type resolveOutput struct {
	Strategy string         `json:"strategy"`
	Episodes domain.Mapping `json:"episodes"`
	Indexes  []string       `json:"indexes"`
}

func newResolveCommand(ctx *commandContext) *cobra.Command {
	var flags identityFlags
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve a douban id or title to its episode URLs",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := flags.identity()
			if err != nil {
				return err
			}
			return ctx.withEngine(cmd.Context(), func(e Engine) error {
				res := e.Trace(cmd.Context(), id)
				if res.Mapping.Empty() {
					return errors.New("no video found")
				}
				return writeJSON(cmd.OutOrStdout(), resolveOutput{
					Strategy: string(res.Strategy),
					Episodes: res.Mapping,
					Indexes:  res.Mapping.Indexes(),
				})
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newEpisodeCommand(ctx *commandContext) *cobra.Command {
	var flags identityFlags
	var episode string
	var urlOnly bool
	var limit int
	cmd := &cobra.Command{
		Use:   "episode",
		Short: "Fetch the danmu of one episode of a douban id or title",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := flags.identity()
			if err != nil {
				return err
			}
			return ctx.withEngine(cmd.Context(), func(e Engine) error {
				if urlOnly {
					u, _, ok := e.Episode(cmd.Context(), id, episode)
					if !ok {
						return fmt.Errorf("episode %s not found", episode)
					}
					fmt.Fprintln(cmd.OutOrStdout(), u)
					return nil
				}
				var resp service.Response
				if id.HasCatalogID() {
					resp = e.ByCatalogID(cmd.Context(), id.CatalogID, id.VideoType, episode)
				} else {
					resp = e.ByTitle(cmd.Context(), service.TitleQuery{
						Title:        id.Title,
						SeasonNumber: id.SeasonNumber,
						IsSeries:     id.IsSeries,
						VideoType:    id.VideoType,
						Episode:      episode,
					})
				}
				return writeResponse(cmd.OutOrStdout(), resp, limit)
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&episode, "episode", "e", "1", "Episode number")
	cmd.Flags().BoolVar(&urlOnly, "url-only", false, "Print the episode page URL instead of its danmu")
	cmd.Flags().IntVar(&limit, "limit", 0, "Print at most this many comments (0 prints all)")
	return cmd
}

func newStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show how many videos are persisted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd.Context(), func(e Engine) error {
				n, err := e.Stats(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Videos: %d\n", n)
				return nil
			})
		},
	}
}

func newPurgeCommand(ctx *commandContext) *cobra.Command {
	var catalogID string
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Drop the persisted episode table of a douban id",
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(catalogID)
			return ctx.withEngine(cmd.Context(), func(e Engine) error {
				if err := e.Purge(cmd.Context(), id); err != nil {
					return fmt.Errorf("purge %s: %w", id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Purged %s\n", id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&catalogID, "douban-id", "", "Douban subject id")
	_ = cmd.MarkFlagRequired("douban-id")
	return cmd
}

func newTokenCommand() *cobra.Command {
	var subject string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an admin bearer token signed with $JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
			if secret == "" {
				return errors.New("JWT_SECRET is required")
			}
			token, err := auth.Sign([]byte(secret), subject, auth.RoleAdmin, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "danmuctl", "Token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	return cmd
}

func writeResponse(out io.Writer, resp service.Response, limit int) error {
	if limit > 0 && len(resp.Danmuku) > limit {
		resp.Danmuku = resp.Danmuku[:limit]
	}
	if err := writeJSON(out, resp); err != nil {
		return err
	}
	if !resp.Found() {
		return errors.New(strings.ToLower(resp.Name))
	}
	return nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
