package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/urfave/cli/v2"

	"econscour/internal/aggregate"
	"econscour/internal/daterange"
	"econscour/internal/model"
	"econscour/internal/pipeline"
	"econscour/internal/records"
	"econscour/internal/view"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(loader *pipeline.Loader) *cli.App {
	app := &cli.App{
		Name:    "econ",
		Usage:   "Drednot econ telemetry loader",
		Version: Version,
		Commands: []*cli.Command{
			loadCmd(loader),
			exportCmd(loader),
			historyCmd(loader),
			schemaCmd(loader),
			dropsCmd(loader),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

func rangeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "start", Aliases: []string{"s"}, Required: true, Usage: "First day (YYYY-MM-DD)"},
		&cli.StringFlag{Name: "end", Aliases: []string{"e"}, Usage: "Last day (defaults to start)"},
		&cli.StringFlag{Name: "dedup", Usage: "Duplicate policy: exact|aggregate"},
		&cli.BoolFlag{Name: "ships-only", Usage: "Keep only ship transactions"},
	}
}

// runLoad parses the range flags and runs one load.
func runLoad(c *cli.Context, loader *pipeline.Loader) (*pipeline.Result, error) {
	start, err := model.ParseDateKey(c.String("start"))
	if err != nil {
		return nil, fmt.Errorf("invalid --start: %w", err)
	}
	end := start
	if s := c.String("end"); s != "" {
		if end, err = model.ParseDateKey(s); err != nil {
			return nil, fmt.Errorf("invalid --end: %w", err)
		}
	}

	var opts pipeline.Options
	if s := c.String("dedup"); s != "" {
		if opts.Policy, err = records.ParsePolicy(s); err != nil {
			return nil, err
		}
	}
	if c.IsSet("ships-only") {
		shipsOnly := c.Bool("ships-only")
		opts.ShipsOnly = &shipsOnly
	}
	return loader.Load(c.Context, start, end, opts)
}

// loadOutput is the JSON printed by the load command.
type loadOutput struct {
	*pipeline.Result
	Records  int                   `json:"records"`
	Ships    int                   `json:"ships"`
	TopHeld  []aggregate.ItemCount `json:"top_held"`
	TopMoved []aggregate.ItemCount `json:"top_moved"`
}

func loadCmd(loader *pipeline.Loader) *cli.Command {
	return &cli.Command{
		Name:  "load",
		Usage: "Load a date range and print totals",
		Flags: append(rangeFlags(),
			&cli.IntFlag{Name: "top", Value: 5, Usage: "Number of top items to list"},
		),
		Action: func(c *cli.Context) error {
			res, err := runLoad(c, loader)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, loadOutput{
				Result:   res,
				Records:  len(res.Records),
				Ships:    res.Ships.Len(),
				TopHeld:  aggregate.Named(aggregate.TopN(res.Totals.ItemsHeld, c.Int("top")), res.Schema),
				TopMoved: aggregate.Named(aggregate.TopN(res.Totals.ItemsMoved, c.Int("top")), res.Schema),
			})
		},
	}
}

// recordRow is one exported transaction.
type recordRow struct {
	Date        string `json:"date" csv:"date"`
	Time        string `json:"time" csv:"time"`
	Zone        string `json:"zone" csv:"zone"`
	Source      string `json:"src" csv:"src"`
	Destination string `json:"dst" csv:"dst"`
	Item        int    `json:"item" csv:"item"`
	ItemName    string `json:"item_name" csv:"item_name"`
	Count       int64  `json:"count" csv:"count"`
	Repetitions int    `json:"repetitions" csv:"repetitions"`
}

// shipRow is the latest known state of one ship.
type shipRow struct {
	HexCode  string `json:"hex_code" csv:"hex_code"`
	Name     string `json:"name" csv:"name"`
	Color    int    `json:"color" csv:"color"`
	Date     string `json:"date" csv:"date"`
	SeenDays int    `json:"seen_days" csv:"seen_days"`
	Items    string `json:"items" csv:"items"`
}

func exportCmd(loader *pipeline.Loader) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export records or ships for a date range",
		Flags: append(rangeFlags(),
			&cli.StringFlag{Name: "what", Aliases: []string{"w"}, Value: "records", Usage: "Dataset: records|ships"},
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "csv", Usage: "Output format: csv|json"},
			&cli.StringFlag{Name: "q", Usage: "Free text filter"},
			&cli.StringFlag{Name: "item", Usage: "Item name or id (records only)"},
			&cli.StringFlag{Name: "src", Usage: "Source filter (records only)"},
			&cli.StringFlag{Name: "dst", Usage: "Destination filter (records only)"},
			&cli.BoolFlag{Name: "hide-bots", Usage: "Drop bot transactions (records only)"},
		),
		Action: func(c *cli.Context) error {
			format := strings.ToLower(c.String("format"))
			if format != "csv" && format != "json" {
				return outputError(fmt.Errorf("unknown format %q", c.String("format")))
			}

			res, err := runLoad(c, loader)
			if err != nil {
				return outputError(err)
			}

			switch strings.ToLower(c.String("what")) {
			case "records":
				rows, err := view.Filter(c.Context, res.Records, view.Query{
					Text:        c.String("q"),
					Item:        c.String("item"),
					Source:      c.String("src"),
					Destination: c.String("dst"),
					HideBots:    c.Bool("hide-bots"),
				}, res.Schema, loader.Config().ChunkSize)
				if err != nil {
					return outputError(err)
				}
				out := make([]recordRow, len(rows))
				for i, r := range rows {
					out[i] = recordRow{
						Date:        r.Date.String(),
						Time:        r.When,
						Zone:        r.ZoneName,
						Source:      r.Source,
						Destination: r.Destination,
						Item:        r.Item,
						ItemName:    r.ItemName,
						Count:       r.Count,
						Repetitions: r.Repetitions,
					}
				}
				return writeRows(c.App.Writer, format, out)
			case "ships":
				states := view.FilterShips(res.Ships.Latest(res.Schema), c.String("q"))
				out := make([]shipRow, len(states))
				for i, s := range states {
					out[i] = shipRow{
						HexCode:  s.HexCode,
						Name:     s.Name,
						Color:    s.Color,
						Date:     s.Date.String(),
						SeenDays: s.SeenDays,
						Items:    formatItems(s.Items),
					}
				}
				return writeRows(c.App.Writer, format, out)
			default:
				return outputError(fmt.Errorf("unknown dataset %q", c.String("what")))
			}
		},
	}
}

// formatItems renders an inventory as "name:count" pairs sorted by name.
func formatItems(items map[string]int64) string {
	names := make([]string, 0, len(items))
	for name := range items {
		names = append(names, name)
	}
	slices.Sort(names)

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s:%d", name, items[name])
	}
	return strings.Join(parts, ";")
}

func writeRows[T any](w io.Writer, format string, rows []T) error {
	if format == "json" {
		return outputJSON(w, rows)
	}
	if len(rows) == 0 {
		// csvutil cannot derive a header from an empty slice
		header, err := csvutil.Header(*new(T), "csv")
		if err != nil {
			return outputError(err)
		}
		_, err = fmt.Fprintln(w, strings.Join(header, ","))
		return err
	}
	data, err := csvutil.Marshal(rows)
	if err != nil {
		return outputError(err)
	}
	_, err = w.Write(data)
	return err
}

// historyOutput is one ship matched by the history command.
type historyOutput struct {
	HexCode string                   `json:"hex_code"`
	Names   []string                 `json:"names"`
	History []aggregate.HistoryEntry `json:"history"`
}

func historyCmd(loader *pipeline.Loader) *cli.Command {
	return &cli.Command{
		Name:      "history",
		Usage:     "Show the day by day history of matching ships",
		ArgsUsage: "<hex code or name pattern>",
		Flags:     rangeFlags(),
		Action: func(c *cli.Context) error {
			pattern := c.Args().First()
			if pattern == "" {
				return outputError(errors.New("a hex code or name pattern is required"))
			}

			res, err := runLoad(c, loader)
			if err != nil {
				return outputError(err)
			}

			out := []historyOutput{}
			for _, hex := range res.Ships.Search(pattern) {
				out = append(out, historyOutput{
					HexCode: hex,
					Names:   res.Ships.Names(hex),
					History: res.Ships.History(hex),
				})
			}
			return outputJSON(c.App.Writer, out)
		},
	}
}

func schemaCmd(loader *pipeline.Loader) *cli.Command {
	return &cli.Command{
		Name:  "schema",
		Usage: "Print the item schema",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "q", Usage: "Filter by name, type or id"},
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "json", Usage: "Output format: csv|json"},
		},
		Action: func(c *cli.Context) error {
			schema, err := loader.ItemSchema(c.Context)
			if err != nil {
				return outputError(err)
			}
			entries := view.FilterItems(schema.Entries(), c.String("q"))
			if entries == nil {
				entries = []model.ItemSchemaEntry{}
			}
			return writeRows(c.App.Writer, strings.ToLower(c.String("format")), entries)
		},
	}
}

func dropsCmd(loader *pipeline.Loader) *cli.Command {
	return &cli.Command{
		Name:  "drops",
		Usage: "Print the bot drop table",
		Action: func(c *cli.Context) error {
			text, err := loader.BotDrops(c.Context)
			if err != nil {
				return outputError(err)
			}
			_, err = io.WriteString(c.App.Writer, text)
			return err
		},
	}
}

// outputJSON writes JSON output.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var rangeErr *daterange.InvalidRangeError
	var noData *pipeline.NoDataError
	switch {
	case errors.As(err, &rangeErr):
		return cli.Exit("[INVALID_RANGE] "+err.Error(), 2)
	case errors.As(err, &noData):
		return cli.Exit("[NO_DATA] "+err.Error(), 1)
	case errors.Is(err, context.Canceled):
		return cli.Exit("[ABORTED] interrupted", 130)
	}
	return cli.Exit(err.Error(), 1)
}
