package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/samber/do/v2"
	"github.com/urfave/cli/v2"

	"github.com/listenupapp/novelvault/internal/config"
	"github.com/listenupapp/novelvault/internal/di/providers"
	"github.com/listenupapp/novelvault/internal/domain"
	"github.com/listenupapp/novelvault/internal/service"
	"github.com/listenupapp/novelvault/internal/source"
)

const defaultListLimit = 20

func DownloadCommand() *cli.Command {
	return &cli.Command{
		Name:      "download",
		Usage:     "download a work into the library",
		ArgsUsage: "<source> <local-id>",
		Action:    downloadAction,
	}
}

func downloadAction(c *cli.Context) error {
	if c.NArg() != 2 {
		return errors.New("download takes a source and a local id")
	}
	sourceTag, localID := c.Args().Get(0), c.Args().Get(1)

	return withContainer(c, func(ctx context.Context, i do.Injector) error {
		handle, err := do.Invoke[*providers.DownloadServiceHandle](i)
		if err != nil {
			return err
		}

		out := c.App.Writer
		result, err := handle.Download(ctx, sourceTag, localID, func(workID domain.WorkID, percent int) {
			fmt.Fprintf(out, "\r%s %3d%%", workID, percent)
		})
		fmt.Fprintln(out)
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "%s by %s\n", result.Work.Title, authorOrUnknown(result.Work.Author))
		fmt.Fprintf(out, "Saved %d of %d chapters to %s\n",
			result.Report.Succeeded, result.Report.Total, result.Record.Path)
		if result.Report.Partial() {
			fmt.Fprintf(out, "Missing chapters: %v\n", oneBased(result.Report.Missing))
		}
		return nil
	})
}

func LibraryCommand() *cli.Command {
	return &cli.Command{
		Name:  "library",
		Usage: "list works in the library",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "category", Aliases: []string{"c"}, Usage: "only works in this category"},
			&cli.StringFlag{Name: "view", Value: "all", Usage: "all, recent, popular, recently-read or bookmarked"},
			&cli.IntFlag{Name: "limit", Value: defaultListLimit, Usage: "maximum works for the recent, popular and recently-read views"},
		},
		Action: libraryAction,
	}
}

func libraryAction(c *cli.Context) error {
	return withContainer(c, func(ctx context.Context, i do.Injector) error {
		library, err := do.Invoke[*service.LibraryService](i)
		if err != nil {
			return err
		}

		var works []*domain.Work
		limit := c.Int("limit")
		if category := c.String("category"); category != "" {
			works, err = library.WorksInCategory(ctx, category)
		} else {
			switch c.String("view") {
			case "all":
				works, err = library.ListWorks(ctx)
			case "recent":
				works, err = library.RecentSearches(ctx, limit)
			case "popular":
				works, err = library.MostSearched(ctx, limit)
			case "recently-read":
				works, err = library.RecentlyRead(ctx, limit)
			case "bookmarked":
				works, err = library.Bookmarked(ctx)
			default:
				return fmt.Errorf("unknown view %q", c.String("view"))
			}
		}
		if err != nil {
			return err
		}

		printWorks(c.App.Writer, works)
		return nil
	})
}

func SearchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "fuzzy search the library by title and author",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Value: defaultListLimit},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return errors.New("search takes one query")
			}
			return withContainer(c, func(ctx context.Context, i do.Injector) error {
				library, err := do.Invoke[*service.LibraryService](i)
				if err != nil {
					return err
				}
				works, err := library.Search(ctx, c.Args().First(), c.Int("limit"))
				if err != nil {
					return err
				}
				printWorks(c.App.Writer, works)
				return nil
			})
		},
	}
}

func CategoriesCommand() *cli.Command {
	return &cli.Command{
		Name:  "categories",
		Usage: "list categories",
		Action: func(c *cli.Context) error {
			return withContainer(c, func(ctx context.Context, i do.Injector) error {
				library, err := do.Invoke[*service.LibraryService](i)
				if err != nil {
					return err
				}
				categories, err := library.ListCategories(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "NAME\tWORKS\tCOLOR")
				for _, cat := range categories {
					fmt.Fprintf(tw, "%s\t%d\t%s\n", cat.Name, cat.WorkCount, cat.Color)
				}
				return tw.Flush()
			})
		},
		Subcommands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "create a category",
				ArgsUsage: "<name>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "color", Usage: "#RRGGBB"},
				},
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return errors.New("categories add takes one name")
					}
					return withContainer(c, func(ctx context.Context, i do.Injector) error {
						library, err := do.Invoke[*service.LibraryService](i)
						if err != nil {
							return err
						}
						cat, err := library.CreateCategory(ctx, c.Args().First(), c.String("color"))
						if err != nil {
							return err
						}
						fmt.Fprintf(c.App.Writer, "Created category %s\n", cat.Name)
						return nil
					})
				},
			},
		},
	}
}

func ProgressCommand() *cli.Command {
	return &cli.Command{
		Name:      "progress",
		Usage:     "show or set the reading position of a work",
		ArgsUsage: "<work> [<chapter> <fraction>]",
		Action:    progressAction,
	}
}

func progressAction(c *cli.Context) error {
	if c.NArg() != 1 && c.NArg() != 3 {
		return errors.New("progress takes a work, optionally followed by a chapter and a fraction")
	}
	id, err := domain.ParseWorkID(c.Args().First())
	if err != nil {
		return err
	}

	var in *service.ProgressInput
	if c.NArg() == 3 {
		chapter, err := strconv.Atoi(c.Args().Get(1))
		if err != nil {
			return fmt.Errorf("invalid chapter %q", c.Args().Get(1))
		}
		fraction, err := strconv.ParseFloat(c.Args().Get(2), 64)
		if err != nil {
			return fmt.Errorf("invalid fraction %q", c.Args().Get(2))
		}
		in = &service.ProgressInput{Chapter: chapter, Fraction: fraction}
	}

	return withContainer(c, func(ctx context.Context, i do.Injector) error {
		library, err := do.Invoke[*service.LibraryService](i)
		if err != nil {
			return err
		}

		if in != nil {
			// Keep the bookmark flag as it was.
			if current, err := library.Progress(ctx, id); err == nil {
				in.Bookmarked = current.Bookmarked
			}
			if _, err := library.SaveProgress(ctx, id, *in); err != nil {
				return err
			}
		}

		p, err := library.Progress(ctx, id)
		if err != nil {
			return err
		}
		out := c.App.Writer
		fmt.Fprintf(out, "%s: chapter %d, %.0f%% through\n", id, p.CurrentChapter, p.ScrollFraction*100)
		if p.Bookmarked {
			fmt.Fprintln(out, "Bookmarked")
		}
		if p.Notes != "" {
			fmt.Fprintf(out, "Notes: %s\n", p.Notes)
		}
		return nil
	})
}

func BookmarkCommand() *cli.Command {
	return &cli.Command{
		Name:      "bookmark",
		Usage:     "toggle the bookmark on a work",
		ArgsUsage: "<work>",
		Action: func(c *cli.Context) error {
			id, err := workArg(c)
			if err != nil {
				return err
			}
			return withContainer(c, func(ctx context.Context, i do.Injector) error {
				library, err := do.Invoke[*service.LibraryService](i)
				if err != nil {
					return err
				}
				on, err := library.ToggleBookmark(ctx, id)
				if err != nil {
					return err
				}
				if on {
					fmt.Fprintf(c.App.Writer, "Bookmarked %s\n", id)
				} else {
					fmt.Fprintf(c.App.Writer, "Removed bookmark from %s\n", id)
				}
				return nil
			})
		},
	}
}

func NotesCommand() *cli.Command {
	return &cli.Command{
		Name:      "notes",
		Usage:     "replace the notes on a work",
		ArgsUsage: "<work> <text>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return errors.New("notes takes a work and the note text")
			}
			id, err := domain.ParseWorkID(c.Args().First())
			if err != nil {
				return err
			}
			return withContainer(c, func(ctx context.Context, i do.Injector) error {
				library, err := do.Invoke[*service.LibraryService](i)
				if err != nil {
					return err
				}
				return library.SaveNotes(ctx, id, c.Args().Get(1))
			})
		},
	}
}

func SessionCommand() *cli.Command {
	return &cli.Command{
		Name:      "session",
		Usage:     "record a finished reading session",
		ArgsUsage: "<work> <duration>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "chapters", Usage: "chapters advanced during the session"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return errors.New("session takes a work and a duration such as 25m")
			}
			id, err := domain.ParseWorkID(c.Args().First())
			if err != nil {
				return err
			}
			duration, err := time.ParseDuration(c.Args().Get(1))
			if err != nil {
				return fmt.Errorf("invalid duration %q: %w", c.Args().Get(1), err)
			}

			return withContainer(c, func(ctx context.Context, i do.Injector) error {
				reading, err := do.Invoke[*service.ReadingService](i)
				if err != nil {
					return err
				}
				_, recorded, err := reading.Record(ctx, id, service.SessionInput{
					Duration:         duration,
					ChaptersAdvanced: c.Int("chapters"),
				})
				if err != nil {
					return err
				}
				if !recorded {
					fmt.Fprintf(c.App.Writer, "Sessions shorter than %s are not recorded\n", domain.MinSessionDuration)
					return nil
				}
				fmt.Fprintf(c.App.Writer, "Recorded %s for %s\n", duration, id)
				return nil
			})
		},
	}
}

func HistoryCommand() *cli.Command {
	return &cli.Command{
		Name:      "history",
		Usage:     "show reading sessions and totals for a work",
		ArgsUsage: "<work>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Value: defaultListLimit},
		},
		Action: func(c *cli.Context) error {
			id, err := workArg(c)
			if err != nil {
				return err
			}
			return withContainer(c, func(ctx context.Context, i do.Injector) error {
				reading, err := do.Invoke[*service.ReadingService](i)
				if err != nil {
					return err
				}
				sessions, err := reading.History(ctx, id, c.Int("limit"))
				if err != nil {
					return err
				}
				stats, err := reading.Stats(ctx, id)
				if err != nil {
					return err
				}

				tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "STARTED\tDURATION\tCHAPTERS")
				for _, s := range sessions {
					fmt.Fprintf(tw, "%s\t%s\t%d\n", s.StartedAt.Local().Format(time.DateTime), s.Duration.Round(time.Second), s.ChaptersAdvanced)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
				fmt.Fprintf(c.App.Writer, "%d sessions, %s total, %d chapters\n",
					stats.Sessions, stats.TotalDuration.Round(time.Second), stats.TotalChapters)
				return nil
			})
		},
	}
}

func VerifyCommand() *cli.Command {
	return &cli.Command{
		Name:  "verify",
		Usage: "check downloaded artifacts against disk",
		Action: func(c *cli.Context) error {
			return withContainer(c, func(ctx context.Context, i do.Injector) error {
				library, err := do.Invoke[*service.LibraryService](i)
				if err != nil {
					return err
				}
				result, err := library.VerifyDownloads(ctx)
				if err != nil {
					return err
				}
				for _, path := range result.Missing {
					fmt.Fprintf(c.App.Writer, "missing: %s\n", path)
				}
				fmt.Fprintf(c.App.Writer, "%d present, %d missing\n", len(result.Verified), len(result.Missing))
				return nil
			})
		},
	}
}

func CleanupCommand() *cli.Command {
	return &cli.Command{
		Name:  "cleanup",
		Usage: "remove works that were never downloaded, read or categorized",
		Action: func(c *cli.Context) error {
			return withContainer(c, func(ctx context.Context, i do.Injector) error {
				library, err := do.Invoke[*service.LibraryService](i)
				if err != nil {
					return err
				}
				removed, err := library.Cleanup(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(c.App.Writer, "Removed %d works\n", removed)
				return nil
			})
		},
	}
}

func ExportCommand() *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "export the library, progress and artifacts into a directory",
		ArgsUsage: "<dir>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return errors.New("export takes one directory")
			}
			dir, err := filepath.Abs(c.Args().First())
			if err != nil {
				return err
			}
			return withContainer(c, func(ctx context.Context, i do.Injector) error {
				library, err := do.Invoke[*service.LibraryService](i)
				if err != nil {
					return err
				}
				summary, err := library.Export(ctx, dir)
				if err != nil {
					return err
				}
				fmt.Fprintf(c.App.Writer, "Exported %d works and %d downloads to %s (%d files copied, %d missing)\n",
					summary.Works, summary.Downloads, summary.Dir, summary.CopiedFiles, summary.SkippedFiles)
				return nil
			})
		},
	}
}

func DeleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "remove a work and everything recorded about it",
		ArgsUsage: "<work>",
		Action: func(c *cli.Context) error {
			id, err := workArg(c)
			if err != nil {
				return err
			}
			return withContainer(c, func(ctx context.Context, i do.Injector) error {
				library, err := do.Invoke[*service.LibraryService](i)
				if err != nil {
					return err
				}
				if err := library.DeleteWork(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(c.App.Writer, "Deleted %s\n", id)
				return nil
			})
		},
	}
}

func SourcesCommand() *cli.Command {
	return &cli.Command{
		Name:  "sources",
		Usage: "list configured sources",
		Action: func(c *cli.Context) error {
			return withContainer(c, func(_ context.Context, i do.Injector) error {
				reg, err := do.Invoke[*source.Registry](i)
				if err != nil {
					return err
				}
				for _, tag := range reg.Tags() {
					fmt.Fprintln(c.App.Writer, tag)
				}
				return nil
			})
		},
	}
}

func SetDataDirCommand() *cli.Command {
	return &cli.Command{
		Name:      "set-data-dir",
		Usage:     "store the library database in another directory from now on",
		ArgsUsage: "<path>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return errors.New("set-data-dir takes one path")
			}
			dir, err := filepath.Abs(c.Args().First())
			if err != nil {
				return err
			}
			appDir, err := config.AppDir()
			if err != nil {
				return err
			}
			prefs, err := config.LoadPreferences(appDir)
			if err != nil {
				return err
			}
			dbPath := filepath.Join(dir, config.DatabaseFileName)
			if err := prefs.SetDatabasePath(dbPath); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "Database path set to %s (saved in %s)\n", dbPath, prefs.Path())
			return nil
		},
	}
}

func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "port", Usage: "listen port"},
			&cli.StringFlag{Name: "verify-schedule", Usage: "cron expression for artifact verification, or off"},
			&cli.StringFlag{Name: "watch", Usage: "watch the download directory: true or false"},
		},
		Action: func(c *cli.Context) error {
			return serve(flagsFromContext(c, "port", "verify-schedule", "watch"))
		},
	}
}

func workArg(c *cli.Context) (domain.WorkID, error) {
	if c.NArg() != 1 {
		return "", fmt.Errorf("%s takes one work id", c.Command.Name)
	}
	return domain.ParseWorkID(c.Args().First())
}

func printWorks(w io.Writer, works []*domain.Work) {
	if len(works) == 0 {
		fmt.Fprintln(w, "No works")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tAUTHOR\tCHAPTERS")
	for _, work := range works {
		chapters := "?"
		if work.TotalChapters > 0 {
			chapters = strconv.Itoa(work.TotalChapters)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", work.ID, work.Title, authorOrUnknown(work.Author), chapters)
	}
	_ = tw.Flush()
}

func authorOrUnknown(author string) string {
	if author == "" {
		return "unknown author"
	}
	return author
}

// oneBased converts chapter indices for display.
func oneBased(indices []int) []int {
	out := make([]int, len(indices))
	for i, idx := range indices {
		out[i] = idx + 1
	}
	return out
}
