package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gridconnect/gridconnect/internal/models"
	"github.com/gridconnect/gridconnect/internal/progress"
	"github.com/gridconnect/gridconnect/internal/task"
	"github.com/gridconnect/gridconnect/internal/transfer"
	"github.com/gridconnect/gridconnect/internal/validation"
)

// runFlags are shared by every 'run' subcommand; put and get only apply to some kinds.
type runFlags struct {
	locale   string
	mappings []string
	dumpDir  string

	fileID    string
	put       string
	get       string
	overwrite bool
	ff        fileFlags
}

func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run an import, export, action or process and wait for it",
		Long: `Start a job on the platform and poll it until it completes or is cancelled.

Status is polled every second for the first 10 seconds, then every 10 seconds
until a minute has passed, then every minute. Ctrl+C cancels the job on the
server before exiting.

Commands:
  import   - Run an import (optionally uploading its source file first)
  export   - Run an export (optionally downloading its file afterwards)
  action   - Run an action
  process  - Run a process and report the result of every step`,
	}

	for _, k := range []task.Kind{task.KindImport, task.KindExport, task.KindAction, task.KindProcess} {
		runCmd.AddCommand(newRunKindCmd(k))
	}
	return runCmd
}

func newRunKindCmd(kind task.Kind) *cobra.Command {
	var rf runFlags

	cmd := &cobra.Command{
		Use:   kind.String() + " <" + kind.String() + "-id>",
		Short: "Run " + article(kind.String()) + " " + kind.String(),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTask(cmd.Context(), kind, args[0], &rf)
		},
	}

	cmd.Flags().StringVar(&rf.locale, "locale", "", "Locale for result messages (default en_US)")
	cmd.Flags().StringArrayVar(&rf.mappings, "mapping", nil, "Runtime prompt answer as entityType=entityName (repeatable)")
	cmd.Flags().StringVar(&rf.dumpDir, "dump-dir", "", "Write available failure dumps to this directory")

	switch kind {
	case task.KindImport:
		cmd.Flags().StringVar(&rf.put, "put", "", "Upload this local file before running the import")
		cmd.Flags().StringVarP(&rf.fileID, "file", "f", "", "Server file the import reads (required with --put)")
		rf.ff.register(cmd)
	case task.KindExport:
		cmd.Flags().StringVar(&rf.get, "get", "", "Download the exported file to this path after completion")
		cmd.Flags().StringVarP(&rf.fileID, "file", "f", "", "Server file the export writes (required with --get)")
		cmd.Flags().BoolVar(&rf.overwrite, "overwrite", false, "Replace an existing --get target")
	}
	return cmd
}

func runTask(ctx context.Context, kind task.Kind, objectID string, rf *runFlags) error {
	if (rf.put != "" || rf.get != "") && rf.fileID == "" {
		return fmt.Errorf("--file is required with --put and --get")
	}
	params, err := taskParameters(rf.locale, rf.mappings)
	if err != nil {
		return err
	}

	client, cfg, err := getAPIClient()
	if err != nil {
		return err
	}
	log := GetLogger()

	if rf.put != "" {
		file := rf.ff.descriptor(rf.fileID, rf.put)
		uploader := transfer.NewUploader(client, log, transfer.UploaderOptions{Concurrency: cfg.Concurrency})
		if err := uploader.Upload(ctx, rf.put, file, cfg.ChunkSizeBytes()); err != nil {
			return err
		}
		fmt.Printf("Uploaded %s to %s\n", rf.put, file.ID)
	}

	ui := progress.NewTaskUI(os.Stderr, kind.String()+" "+objectID, showProgress())
	runner := task.NewRunner(tracker, log, task.RunnerOptions{
		Policy: cfg.RetryPolicy(),
		Locale: params.LocaleName,
		OnStatus: func(h task.Handle, status *models.TaskStatus) {
			ui.Update(status)
		},
	})

	outcome, err := runner.Run(ctx, task.NewEndpoint(client, kind, objectID), params)
	if outcome != nil {
		ui.Done(outcome.Status)
	} else {
		ui.Done(nil)
	}
	if err != nil {
		if errors.Is(err, task.ErrInterrupted) {
			return fmt.Errorf("%s %s was cancelled: %w", kind, objectID, err)
		}
		return err
	}

	if outcome.Tree != nil {
		fmt.Print(outcome.Tree.String())
		if rf.dumpDir != "" {
			// The root context may already be gone after a signal; dumps are still wanted.
			paths, err := writeDumps(context.WithoutCancel(ctx), outcome.Tree, rf.dumpDir, objectID)
			for _, p := range paths {
				fmt.Printf("Failure dump written to %s\n", p)
			}
			if err != nil {
				return err
			}
		}
	}

	switch {
	case outcome.Cancelled():
		return fmt.Errorf("%s was cancelled", outcome.Handle)
	case !outcome.Successful():
		return fmt.Errorf("%s completed with failures", outcome.Handle)
	}

	if rf.get != "" {
		src := transfer.NewServerFileSource(client, rf.fileID, "")
		n, err := transfer.NewDownloader(log, nil).Download(ctx, src, rf.get, rf.overwrite)
		if err != nil {
			return err
		}
		fmt.Printf("Downloaded export to %s (%d bytes)\n", rf.get, n)
	}
	return nil
}

// taskParameters builds the creation body from --locale and --mapping values.
func taskParameters(locale string, mappings []string) (models.TaskParameters, error) {
	params := models.TaskParameters{LocaleName: locale}
	for _, m := range mappings {
		entityType, entityName, ok := strings.Cut(m, "=")
		entityType, entityName = strings.TrimSpace(entityType), strings.TrimSpace(entityName)
		if !ok || entityType == "" || entityName == "" {
			return params, fmt.Errorf("invalid --mapping %q: expected entityType=entityName", m)
		}
		params.MappingParameters = append(params.MappingParameters, models.MappingParameter{
			EntityType: entityType,
			EntityName: entityName,
		})
	}
	return params, nil
}

// writeDumps downloads every available failure dump in tree into dir as
// <object-id>.dump.txt and returns the paths written.
func writeDumps(ctx context.Context, tree *task.ResultTree, dir, fallbackID string) ([]string, error) {
	nodes := tree.Dumps()
	if len(nodes) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create dump directory %s: %w", dir, err)
	}

	downloader := transfer.NewDownloader(GetLogger(), nil)
	var written []string
	for _, n := range nodes {
		src, err := n.Dump()
		if err != nil {
			return written, err
		}
		id := n.ObjectID
		if id == "" {
			id = fallbackID
		}
		target, err := validation.JoinInDirectory(dir, id+".dump.txt")
		if err != nil {
			return written, fmt.Errorf("refusing to write dump for %q: %w", id, err)
		}
		if _, err := downloader.Download(ctx, src, target, true); err != nil {
			return written, fmt.Errorf("failed to write %s: %w", src.Name(), err)
		}
		written = append(written, target)
	}
	return written, nil
}

func article(word string) string {
	if strings.ContainsRune("aeiou", rune(word[0])) {
		return "an"
	}
	return "a"
}
