// SPDX-FileCopyrightText: © 2025 DAFNI - Science and Technology Facilities Council
//
// SPDX-License-Identifier: Apache-2.0

// Command dafni is a thin command-line front over the SDK. Each subcommand
// maps onto one service operation; all domain logic lives in the sdk
// packages.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/dafni-facility/dafni-cli-sdk/sdk/auth"
	"github.com/dafni-facility/dafni-cli-sdk/sdk/config"
	"github.com/dafni-facility/dafni-cli-sdk/sdk/services/datasets"
	"github.com/dafni-facility/dafni-cli-sdk/sdk/services/models"
	"github.com/dafni-facility/dafni-cli-sdk/sdk/services/transfer"
	"github.com/dafni-facility/dafni-cli-sdk/sdk/services/workflows"
	"github.com/dafni-facility/dafni-cli-sdk/sdk/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, argv []string) error {
	if len(argv) < 2 {
		usage()
		return fmt.Errorf("missing subcommand")
	}

	if err := config.RegisterIniCfgWithViper(); err != nil {
		return err
	}

	app := &app{
		cfg: config.FromViper(),
		log: newLogger(),
	}

	switch argv[1] {
	case "login":
		return app.login(ctx, argv[2:])
	case "logout":
		return app.logout(ctx)
	case "get":
		return app.get(ctx, argv[2:])
	case "upload":
		return app.upload(ctx, argv[2:])
	case "delete":
		return app.delete(ctx, argv[2:])
	case "download":
		return app.download(ctx, argv[2:])
	case "validate":
		return app.validate(ctx, argv[2:])
	case "create":
		return app.create(argv[2:])
	case "-h", "--help", "help":
		usage()
		return nil
	default:
		usage()
		return fmt.Errorf("unknown subcommand: %s", argv[1])
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `dafni <command> [flags]

Commands:
  login                              authenticate and store a session
  logout                             invalidate and remove the session
  get <entity> [id]                  show entities (--json for raw output)
  upload <kind> [args]               upload datasets, models or workflows
  delete <kind> <id>                 delete an entity (-y to skip confirmation)
  download <version-id>              download a dataset version's files
  validate <definition.yaml>         validate a model definition
  create template <path>             write a dataset metadata template`)
}

func newLogger() zerolog.Logger {
	level := zerolog.WarnLevel
	if os.Getenv("DAFNI_DEBUG") != "" {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).With().Timestamp().Logger()
}

type app struct {
	cfg config.Config
	log zerolog.Logger
}

func (a *app) session(ctx context.Context) (*auth.Session, error) {
	return auth.GetSession(ctx, a.cfg, auth.WithLogger(a.log))
}

/* -------------------- auth -------------------- */

func (a *app) login(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("login", pflag.ContinueOnError)
	username := fs.String("username", "", "login without prompting (requires --password)")
	password := fs.String("password", "", "password for --username")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var s *auth.Session
	var err error
	if *username != "" && *password != "" {
		s, err = auth.LoginWithPassword(ctx, a.cfg, *username, *password, auth.WithLogger(a.log))
	} else {
		s, err = auth.LoginInteractive(ctx, a.cfg, auth.WithLogger(a.log))
	}
	if err != nil {
		return err
	}

	// keep the active environment's settings on disk for later commands
	if err := config.SaveEnvironment(config.ActiveEnvironment()); err != nil {
		a.log.Warn().Err(err).Msg("failed to persist environment settings")
	}

	fmt.Printf("Logged in as %s\n", s.Username())
	return nil
}

func (a *app) logout(ctx context.Context) error {
	s, err := auth.LoadSession(a.cfg, auth.WithLogger(a.log))
	if err != nil {
		return fmt.Errorf("no active session")
	}
	if err := s.Logout(ctx); err != nil {
		return err
	}
	fmt.Println("Logged out")
	return nil
}

/* -------------------- get -------------------- */

func (a *app) get(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("get", pflag.ContinueOnError)
	asJSON := fs.Bool("json", false, "print the raw JSON record")
	search := fs.String("search", "", "dataset catalogue search text")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) == 0 {
		return fmt.Errorf("usage: dafni get <datasets|dataset|models|model|workflows|workflow|instance|parameter-set> [id]")
	}

	s, err := a.session(ctx)
	if err != nil {
		return err
	}

	entity := rest[0]
	id := ""
	if len(rest) > 1 {
		id = rest[1]
	}

	switch entity {
	case "datasets":
		svc, err := datasets.NewService(s, a.cfg)
		if err != nil {
			return err
		}
		list, err := svc.List(ctx, *search)
		if err != nil {
			return err
		}
		return printResult(list, *asJSON, func() {
			for _, d := range list {
				fmt.Printf("%s  %s  %s\n", d.ID, d.VersionID, d.Title)
			}
		})
	case "dataset":
		if id == "" {
			return fmt.Errorf("dataset version id is required")
		}
		svc, err := datasets.NewService(s, a.cfg)
		if err != nil {
			return err
		}
		if *asJSON {
			meta, err := svc.GetMetadata(ctx, id)
			if err != nil {
				return err
			}
			return printJSON(meta)
		}
		d, err := svc.Get(ctx, id)
		if err != nil {
			return err
		}
		fmt.Printf("%s (%s)\n%s\nFiles: %d\n", d.Title, d.VersionID, d.Description, len(d.Files))
		return nil
	case "models":
		svc, err := models.NewService(s, a.cfg)
		if err != nil {
			return err
		}
		list, err := svc.List(ctx)
		if err != nil {
			return err
		}
		return printResult(list, *asJSON, func() {
			for _, m := range list {
				fmt.Printf("%s  %s\n", m.ID, m.DisplayName)
			}
		})
	case "model":
		if id == "" {
			return fmt.Errorf("model version id is required")
		}
		svc, err := models.NewService(s, a.cfg)
		if err != nil {
			return err
		}
		m, err := svc.Get(ctx, id)
		if err != nil {
			return err
		}
		return printResult(m, *asJSON, func() {
			fmt.Printf("%s (%s)\n", m.DisplayName, m.ID)
		})
	case "workflows":
		svc, err := workflows.NewService(s, a.cfg)
		if err != nil {
			return err
		}
		list, err := svc.List(ctx)
		if err != nil {
			return err
		}
		return printResult(list, *asJSON, func() {
			for _, w := range list {
				fmt.Printf("%s  %s\n", w.ID, w.DisplayName)
			}
		})
	case "workflow":
		if id == "" {
			return fmt.Errorf("workflow version id is required")
		}
		svc, err := workflows.NewService(s, a.cfg)
		if err != nil {
			return err
		}
		w, err := svc.Get(ctx, id)
		if err != nil {
			return err
		}
		return printResult(w, *asJSON, func() {
			fmt.Printf("%s (%s)\n", w.DisplayName, w.ID)
		})
	case "instance":
		if id == "" {
			return fmt.Errorf("workflow instance id is required")
		}
		svc, err := workflows.NewService(s, a.cfg)
		if err != nil {
			return err
		}
		inst, err := svc.GetInstance(ctx, id)
		if err != nil {
			return err
		}
		return printResult(inst, *asJSON, func() {
			fmt.Printf("%s  %s\n", inst.ID, inst.Status)
		})
	case "parameter-set":
		if id == "" {
			return fmt.Errorf("parameter set id is required")
		}
		svc, err := workflows.NewService(s, a.cfg)
		if err != nil {
			return err
		}
		ps, err := svc.GetParameterSet(ctx, id)
		if err != nil {
			return err
		}
		return printResult(ps, *asJSON, func() {
			fmt.Printf("%s  %s\n", ps.ID, ps.DisplayName)
		})
	default:
		return fmt.Errorf("unknown entity: %s", entity)
	}
}

/* -------------------- upload -------------------- */

func (a *app) upload(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: dafni upload <dataset|dataset-version|model|workflow|parameter-set> [args]")
	}
	kind, args := args[0], args[1:]

	switch kind {
	case "dataset":
		return a.uploadDataset(ctx, args, "")
	case "dataset-version":
		if len(args) == 0 {
			return fmt.Errorf("usage: dafni upload dataset-version <dataset-id> [flags] <paths...>")
		}
		return a.uploadDataset(ctx, args[1:], args[0])
	case "model":
		return a.uploadModel(ctx, args)
	case "workflow":
		return a.uploadWorkflow(ctx, args)
	case "parameter-set":
		return a.uploadParameterSet(ctx, args)
	default:
		return fmt.Errorf("unknown upload kind: %s", kind)
	}
}

func (a *app) uploadDataset(ctx context.Context, args []string, datasetID string) error {
	fs := pflag.NewFlagSet("upload dataset", pflag.ContinueOnError)
	metadataPath := fs.String("metadata", "", "metadata document (YAML or JSON)")
	versionMessage := fs.String("version-message", "", "version note recorded with the upload")
	assumeYes := fs.BoolP("yes", "y", false, "skip the confirmation prompt")
	asJSON := fs.Bool("json", false, "print the result as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	paths := fs.Args()
	if len(paths) == 0 {
		return fmt.Errorf("at least one file or directory is required")
	}

	s, err := a.session(ctx)
	if err != nil {
		return err
	}
	svc, err := datasets.NewService(s, a.cfg)
	if err != nil {
		return err
	}

	var external map[string]interface{}
	if *metadataPath != "" {
		external, err = utils.LoadDocument(*metadataPath)
		if err != nil {
			return err
		}
	}

	var existing map[string]interface{}
	if datasetID == "" && external == nil {
		return fmt.Errorf("--metadata is required for a new dataset")
	}
	if datasetID != "" && external == nil {
		existing, err = svc.GetMetadata(ctx, datasetID)
		if err != nil {
			return err
		}
	}

	metadata, err := datasets.ModifyMetadataForUpload(existing, external,
		&datasets.MetadataOverrides{VersionMessage: *versionMessage})
	if err != nil {
		return err
	}

	outcome, err := utils.Confirm(os.Stdin, os.Stdout,
		fmt.Sprintf("Upload %d path(s)?", len(paths)), *assumeYes)
	if err != nil {
		return err
	}
	if outcome == utils.Cancelled {
		fmt.Println("Upload cancelled")
		return nil
	}

	result, err := svc.Upload(ctx, datasets.UploadRequest{
		Metadata:  metadata,
		Paths:     paths,
		DatasetID: datasetID,
		Quiet:     *asJSON,
	})
	if err != nil {
		return err
	}
	return printResult(result, *asJSON, func() {
		fmt.Printf("Upload successful\nDataset ID: %s\nVersion ID: %s\n", result.DatasetID, result.VersionID)
	})
}

func (a *app) uploadModel(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("upload model", pflag.ContinueOnError)
	definition := fs.String("definition", "", "model definition (YAML)")
	image := fs.String("image", "", "model container image tarball")
	versionMessage := fs.String("version-message", "", "version note recorded with the upload")
	parentID := fs.String("parent-id", "", "existing model to version")
	assumeYes := fs.BoolP("yes", "y", false, "skip the confirmation prompt")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *definition == "" || *image == "" {
		return fmt.Errorf("--definition and --image are required")
	}

	s, err := a.session(ctx)
	if err != nil {
		return err
	}
	svc, err := models.NewService(s, a.cfg)
	if err != nil {
		return err
	}

	outcome, err := utils.Confirm(os.Stdin, os.Stdout, "Upload model?", *assumeYes)
	if err != nil {
		return err
	}
	if outcome == utils.Cancelled {
		fmt.Println("Upload cancelled")
		return nil
	}

	uploadID, err := svc.Upload(ctx, models.UploadRequest{
		DefinitionPath: *definition,
		ImagePath:      *image,
		VersionMessage: *versionMessage,
		ParentID:       *parentID,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Model upload started, ingest id %s\n", uploadID)
	return nil
}

func (a *app) uploadWorkflow(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("upload workflow", pflag.ContinueOnError)
	versionMessage := fs.String("version-message", "", "version note recorded with the upload")
	parentID := fs.String("parent-id", "", "existing workflow to version")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: dafni upload workflow [flags] <definition.json>")
	}

	s, err := a.session(ctx)
	if err != nil {
		return err
	}
	svc, err := workflows.NewService(s, a.cfg)
	if err != nil {
		return err
	}
	w, err := svc.Upload(ctx, fs.Arg(0), *versionMessage, *parentID)
	if err != nil {
		return err
	}
	fmt.Printf("Workflow uploaded: %s (%s)\n", w.DisplayName, w.ID)
	return nil
}

func (a *app) uploadParameterSet(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: dafni upload parameter-set <definition.json>")
	}
	s, err := a.session(ctx)
	if err != nil {
		return err
	}
	svc, err := workflows.NewService(s, a.cfg)
	if err != nil {
		return err
	}
	ps, err := svc.UploadParameterSet(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Parameter set uploaded: %s (%s)\n", ps.DisplayName, ps.ID)
	return nil
}

/* -------------------- delete -------------------- */

func (a *app) delete(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("delete", pflag.ContinueOnError)
	assumeYes := fs.BoolP("yes", "y", false, "skip the confirmation prompt")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) != 2 {
		return fmt.Errorf("usage: dafni delete <dataset|dataset-version|model|workflow> <id>")
	}
	kind, id := rest[0], rest[1]

	outcome, err := utils.Confirm(os.Stdin, os.Stdout,
		fmt.Sprintf("Delete %s %s?", kind, id), *assumeYes)
	if err != nil {
		return err
	}
	if outcome == utils.Cancelled {
		fmt.Println("Deletion cancelled")
		return nil
	}

	s, err := a.session(ctx)
	if err != nil {
		return err
	}

	switch kind {
	case "dataset":
		svc, err := datasets.NewService(s, a.cfg)
		if err != nil {
			return err
		}
		err = svc.Delete(ctx, id)
		if err != nil {
			return err
		}
	case "dataset-version":
		svc, err := datasets.NewService(s, a.cfg)
		if err != nil {
			return err
		}
		err = svc.DeleteVersion(ctx, id)
		if err != nil {
			return err
		}
	case "model":
		svc, err := models.NewService(s, a.cfg)
		if err != nil {
			return err
		}
		err = svc.Delete(ctx, id)
		if err != nil {
			return err
		}
	case "workflow":
		svc, err := workflows.NewService(s, a.cfg)
		if err != nil {
			return err
		}
		err = svc.Delete(ctx, id)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown entity: %s", kind)
	}
	fmt.Printf("Deleted %s %s\n", kind, id)
	return nil
}

/* -------------------- download / validate / create -------------------- */

func (a *app) download(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("download", pflag.ContinueOnError)
	dest := fs.String("dest", ".", "destination directory")
	asJSON := fs.Bool("json", false, "print the downloaded files as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: dafni download [flags] <version-id>")
	}

	s, err := a.session(ctx)
	if err != nil {
		return err
	}
	svc, err := transfer.NewService(ctx, s, a.cfg)
	if err != nil {
		return err
	}

	infos, err := svc.WithLogger(a.log).Download(ctx, transfer.DownloadRequest{
		VersionID:   fs.Arg(0),
		Destination: *dest,
		Quiet:       *asJSON,
	})
	if err != nil {
		return err
	}
	return printResult(infos, *asJSON, func() {
		for _, info := range infos {
			fmt.Printf("%s (%s)\n", info.Path, humanSize(info.Size))
		}
		fmt.Printf("Downloaded %d file(s)\n", len(infos))
	})
}

func (a *app) validate(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: dafni validate <definition.yaml>")
	}
	s, err := a.session(ctx)
	if err != nil {
		return err
	}
	svc, err := models.NewService(s, a.cfg)
	if err != nil {
		return err
	}
	if err := svc.ValidateDefinition(ctx, args[0]); err != nil {
		return err
	}
	fmt.Println("Definition is valid")
	return nil
}

func (a *app) create(args []string) error {
	if len(args) != 2 || args[0] != "template" {
		return fmt.Errorf("usage: dafni create template <path>")
	}
	if err := datasets.WriteTemplate(args[1]); err != nil {
		return err
	}
	fmt.Printf("Metadata template written to %s\n", args[1])
	return nil
}

/* -------------------- output helpers -------------------- */

func printResult(v interface{}, asJSON bool, plain func()) error {
	if asJSON {
		return printJSON(v)
	}
	plain()
	return nil
}

func printJSON(v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	fmt.Println(utils.PrettyJSON(b))
	return nil
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMG"[exp])
}
