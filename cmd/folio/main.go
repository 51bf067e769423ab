package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/robinjoseph08/golib/signals"
	"github.com/urfave/cli/v2"

	"github.com/folioreads/folio/pkg/config"
	"github.com/folioreads/folio/pkg/database"
	"github.com/folioreads/folio/pkg/fields"
	"github.com/folioreads/folio/pkg/library"
	"github.com/folioreads/folio/pkg/server"
	"github.com/folioreads/folio/pkg/version"
	"github.com/folioreads/folio/pkg/worker"
)

func main() {
	log := logger.New()

	app := &cli.App{
		Name:    "folio",
		Usage:   "personal document library manager",
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "library",
				Aliases: []string{"l"},
				Usage:   "library root directory",
				Value:   ".",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "create a new library at the library root",
				Action: runInit,
			},
			{
				Name:   "info",
				Usage:  "print identity and record counts for a library",
				Action: runInfo,
			},
			{
				Name:   "serve",
				Usage:  "serve the library over HTTP, read-only",
				Action: runServe,
			},
			{
				Name:  "column",
				Usage: "manage custom metadata columns",
				Subcommands: []*cli.Command{
					{
						Name:      "add",
						Usage:     "add a custom column",
						ArgsUsage: "<label>",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "name", Usage: "display name (defaults to the label)"},
							&cli.StringFlag{Name: "datatype", Value: "text", Usage: "text, comments, int, float, bool, rating, datetime, series, enumeration"},
							&cli.BoolFlag{Name: "multiple", Usage: "store multiple values per record"},
						},
						Action: runColumnAdd,
					},
					{
						Name:      "rm",
						Usage:     "mark a custom column for deletion at next open",
						ArgsUsage: "<label>",
						Action:    runColumnRm,
					},
					{
						Name:   "ls",
						Usage:  "list custom columns",
						Action: runColumnLs,
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Err(err).Fatal("folio failed")
	}
}

func openLibrary(c *cli.Context) (*library.Library, error) {
	cfg, err := config.New(c.String("library"))
	if err != nil {
		return nil, err
	}
	return library.Open(c.Context, cfg)
}

func runInit(c *cli.Context) error {
	root := c.String("library")
	if database.ExistsAt(root) {
		return errors.Errorf("a library already exists at %s", root)
	}

	lib, err := openLibrary(c)
	if err != nil {
		return err
	}
	defer lib.Close()

	id, err := lib.UUID(c.Context)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "initialized library %s at %s\n", id, root)
	return nil
}

func runInfo(c *cli.Context) error {
	lib, err := openLibrary(c)
	if err != nil {
		return err
	}
	defer lib.Close()

	id, err := lib.UUID(c.Context)
	if err != nil {
		return err
	}
	var count int
	err = lib.DB().NewRaw("SELECT COUNT(*) FROM records").Scan(c.Context, &count)
	if err != nil {
		return errors.WithStack(err)
	}

	fmt.Fprintf(c.App.Writer, "library: %s\n", lib.Path())
	fmt.Fprintf(c.App.Writer, "uuid: %s\n", id)
	fmt.Fprintf(c.App.Writer, "records: %d\n", count)
	fmt.Fprintf(c.App.Writer, "custom columns: %d\n", len(lib.Fields.CustomLabels()))
	return nil
}

func runServe(c *cli.Context) error {
	ctx := c.Context
	log := logger.New()

	lib, err := openLibrary(c)
	if err != nil {
		return err
	}
	defer lib.Close()

	cfg, err := config.New(c.String("library"))
	if err != nil {
		return err
	}
	srv, err := server.New(cfg, lib)
	if err != nil {
		return err
	}

	wrkr := worker.New(lib)

	graceful := signals.Setup()

	go func() {
		lc := net.ListenConfig{}
		listener, err := lc.Listen(ctx, "tcp", srv.Addr)
		if err != nil {
			log.Err(err).Fatal("failed to bind port")
		}
		log.Info("server started", logger.Data{"addr": listener.Addr().String()})

		err = srv.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Err(err).Fatal("server stopped")
		}
	}()

	wrkr.Start()
	log.Info("backup worker started")

	<-graceful
	log.Info("starting graceful shutdown")

	if err := srv.Shutdown(context.Background()); err != nil {
		log.Err(err).Error("server shutdown error")
	}
	wrkr.Shutdown()
	return nil
}

func runColumnAdd(c *cli.Context) error {
	label := c.Args().First()
	if label == "" {
		return errors.New("a column label is required")
	}

	lib, err := openLibrary(c)
	if err != nil {
		return err
	}
	defer lib.Close()

	name := c.String("name")
	if name == "" {
		name = label
	}
	def, err := lib.Fields.AddColumn(c.Context, fields.AddColumnOptions{
		Label:      label,
		Name:       name,
		Datatype:   fields.Datatype(c.String("datatype")),
		IsMultiple: c.Bool("multiple"),
		Editable:   true,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "added column %s (%s)\n", def.Label, def.Datatype)
	return nil
}

func runColumnRm(c *cli.Context) error {
	label := c.Args().First()
	if label == "" {
		return errors.New("a column label is required")
	}

	lib, err := openLibrary(c)
	if err != nil {
		return err
	}
	defer lib.Close()

	if err := lib.Fields.MarkForDeletion(c.Context, label); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "column %s will be removed the next time the library opens\n", label)
	return nil
}

func runColumnLs(c *cli.Context) error {
	lib, err := openLibrary(c)
	if err != nil {
		return err
	}
	defer lib.Close()

	w := csv.NewWriter(c.App.Writer)
	w.Comma = '\t'
	for _, label := range lib.Fields.CustomLabels() {
		def, _ := lib.Fields.Definition(label)
		_ = w.Write([]string{def.Label, def.Name, string(def.Datatype)})
	}
	w.Flush()
	return errors.WithStack(w.Error())
}
