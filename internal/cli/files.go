package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/gridconnect/gridconnect/internal/diskspace"
	"github.com/gridconnect/gridconnect/internal/http"
	"github.com/gridconnect/gridconnect/internal/models"
	"github.com/gridconnect/gridconnect/internal/objectstore"
	"github.com/gridconnect/gridconnect/internal/progress"
	"github.com/gridconnect/gridconnect/internal/transfer"
)

// fileFlags holds the format metadata sent when a server file is registered.
type fileFlags struct {
	name         string
	format       string
	encoding     string
	separator    string
	delimiter    string
	headerRow    int
	firstDataRow int
}

func (f *fileFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "Server file name (default: local file name)")
	cmd.Flags().StringVar(&f.format, "format", "txt", "File format")
	cmd.Flags().StringVar(&f.encoding, "encoding", "UTF-8", "Character encoding of the file")
	cmd.Flags().StringVar(&f.separator, "separator", "\n", "Record separator (exactly one character)")
	cmd.Flags().StringVar(&f.delimiter, "delimiter", `"`, "Text delimiter")
	cmd.Flags().IntVar(&f.headerRow, "header-row", 1, "Row holding column names")
	cmd.Flags().IntVar(&f.firstDataRow, "first-data-row", 2, "First row holding data")
}

func (f *fileFlags) descriptor(fileID, localPath string) *models.ServerFile {
	name := f.name
	if name == "" && localPath != "" && localPath != "-" {
		name = filepath.Base(localPath)
	}
	if name == "" {
		name = fileID
	}
	return &models.ServerFile{
		ID:           fileID,
		Name:         name,
		Format:       f.format,
		Encoding:     f.encoding,
		Separator:    f.separator,
		Delimiter:    f.delimiter,
		HeaderRow:    f.headerRow,
		FirstDataRow: f.firstDataRow,
	}
}

func newUploadCmd() *cobra.Command {
	var (
		fileID string
		ff     fileFlags
	)

	cmd := &cobra.Command{
		Use:   "upload <local-path|->",
		Short: "Upload a delimited file into a server file",
		Long: `Upload a local delimited file into a server file in row-aligned chunks.

Every chunk except the last ends on a complete record. Use "-" to stream
standard input instead; the server then counts the chunks itself.

Examples:
  gridconnect upload sales.csv --file 113000000001
  pg_dump ... | gridconnect upload - --file 113000000001 --name sales.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cfg, err := getAPIClient()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			localPath := args[0]
			file := ff.descriptor(fileID, localPath)

			start := time.Now()
			if localPath == "-" {
				sink, err := transfer.OpenUploadSink(ctx, client, file, cfg.ChunkSizeBytes(), GetLogger())
				if err != nil {
					return err
				}
				if _, err := io.Copy(sink, os.Stdin); err != nil {
					sink.Abort()
					return fmt.Errorf("failed to stream stdin to %s: %w", file.ID, err)
				}
				if err := sink.Close(); err != nil {
					return err
				}
				fmt.Printf("Streamed %d chunks into %s (%s)\n", sink.Chunks(), file.Name, file.ID)
				return nil
			}

			info, err := os.Stat(localPath)
			if err != nil {
				return fmt.Errorf("cannot read %s: %w", localPath, err)
			}
			bar := progress.NewBar(os.Stderr, info.Size(), "Uploading "+filepath.Base(localPath), showProgress())
			uploader := transfer.NewUploader(client, GetLogger(), transfer.UploaderOptions{
				Concurrency: cfg.Concurrency,
				Progress:    bar,
			})
			if err := uploader.Upload(ctx, localPath, file, cfg.ChunkSizeBytes()); err != nil {
				bar.Abandon()
				return err
			}
			bar.Finish()

			fmt.Printf("Uploaded %s to %s (%d chunks, %s)\n",
				localPath, file.ID, file.ChunkCount, time.Since(start).Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().StringVarP(&fileID, "file", "f", "", "Server file ID (required)")
	ff.register(cmd)
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newDownloadCmd() *cobra.Command {
	var (
		overwrite bool
		publish   string
		name      string
	)

	cmd := &cobra.Command{
		Use:   "download <file-id> <target-path|->",
		Short: "Download a server file",
		Long: `Download a server file chunk by chunk.

The file is written to .partial.<name> next to the target and renamed only
after every chunk arrived. An existing target is kept unless --overwrite is
given. Use "-" to write to standard output.

--publish copies the finished file to object storage:
  s3://bucket/key                         (AWS credentials from the environment)
  azblob://account/container/blob         (SAS token in GRIDCONNECT_AZURE_SAS)
  https://account.blob.core.windows.net/container/blob?<sas>`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cfg, err := getAPIClient()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			fileID, target := args[0], args[1]
			src := transfer.NewServerFileSource(client, fileID, name)

			if target == "-" {
				if publish != "" {
					return fmt.Errorf("--publish needs a target path")
				}
				rc, err := transfer.NewDownloader(GetLogger(), nil).Open(ctx, src)
				if err != nil {
					return err
				}
				defer rc.Close()
				_, err = io.Copy(os.Stdout, rc)
				return err
			}

			bar := progress.NewBar(os.Stderr, -1, "Downloading "+src.Name(), showProgress())
			n, err := transfer.NewDownloader(GetLogger(), bar).Download(ctx, src, target, overwrite)
			if err != nil {
				bar.Abandon()
				if diskspace.IsInsufficientSpaceError(err) {
					GetLogger().Error().Str("partial", transfer.PartialPath(target)).Msg("Disk full; delete the partial file once space is freed")
				}
				return err
			}
			bar.Finish()
			fmt.Printf("Downloaded %s to %s (%d bytes)\n", src.Name(), target, n)

			if publish == "" {
				return nil
			}
			httpClient, err := http.CreateTransferClient(cfg, GetLogger())
			if err != nil {
				return fmt.Errorf("failed to create HTTP client: %w", err)
			}
			return objectstore.NewPublisher(httpClient, GetLogger()).Publish(ctx, target, publish)
		},
	}

	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing target file")
	cmd.Flags().StringVar(&publish, "publish", "", "Copy the downloaded file to s3:// or Azure blob storage")
	cmd.Flags().StringVar(&name, "name", "", "Name used in messages (default: file ID)")
	return cmd
}
