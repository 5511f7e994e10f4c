package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/buildbarn/bb-splitter/pkg/configuration"
	"github.com/buildbarn/bb-splitter/pkg/global"
	"github.com/buildbarn/bb-splitter/pkg/manifest"
	"github.com/buildbarn/bb-splitter/pkg/manifeststore"
	"github.com/buildbarn/bb-splitter/pkg/program"
	"github.com/buildbarn/bb-splitter/pkg/splitter"
	"github.com/buildbarn/bb-splitter/pkg/util"
	"github.com/sirupsen/logrus"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const usage = `Usage:
  bb_splitter bb_splitter.jsonnet upload <path>
  bb_splitter bb_splitter.jsonnet resume <path>
  bb_splitter bb_splitter.jsonnet abandon <path>
  bb_splitter bb_splitter.jsonnet download <id> [destination directory]
  bb_splitter bb_splitter.jsonnet list [page]
  bb_splitter bb_splitter.jsonnet search <name>
  bb_splitter bb_splitter.jsonnet delete <id>`

// A utility for storing large files as a sequence of size-bounded
// parts on a storage backend that limits the size of individual
// objects, and for reassembling them afterwards. Every part and the
// file as a whole are verified against checksums recorded in a
// manifest, which is persisted in a manifest store.
func main() {
	program.RunMain(func(ctx context.Context, siblingsGroup, dependenciesGroup program.Group) error {
		if len(os.Args) < 3 {
			return status.Error(codes.InvalidArgument, usage)
		}
		applicationConfiguration, err := configuration.GetApplicationConfiguration(os.Args[1])
		if err != nil {
			return err
		}
		lifecycleState, err := global.ApplyConfiguration(applicationConfiguration.Global)
		if err != nil {
			return util.StatusWrap(err, "Failed to apply global configuration options")
		}
		dependenciesGroup.Go(lifecycleState.DiagnosticsServer.Serve)

		s, err := configuration.NewSplitterFromConfiguration(ctx, applicationConfiguration, lifecycleState.TracerProvider)
		if err != nil {
			return err
		}
		lifecycleState.DiagnosticsServer.SetReady()

		command, arguments := os.Args[2], os.Args[3:]
		switch command {
		case "upload":
			if len(arguments) != 1 {
				return status.Error(codes.InvalidArgument, usage)
			}
			return upload(ctx, s, arguments[0], applicationConfiguration.Owner)
		case "resume":
			if len(arguments) != 1 {
				return status.Error(codes.InvalidArgument, usage)
			}
			return resume(ctx, s, arguments[0])
		case "abandon":
			if len(arguments) != 1 {
				return status.Error(codes.InvalidArgument, usage)
			}
			return abandon(ctx, s, arguments[0])
		case "download":
			if len(arguments) < 1 || len(arguments) > 2 {
				return status.Error(codes.InvalidArgument, usage)
			}
			destinationDirectory := "."
			if len(arguments) == 2 {
				destinationDirectory = arguments[1]
			}
			return download(ctx, s, arguments[0], destinationDirectory)
		case "list":
			if len(arguments) > 1 {
				return status.Error(codes.InvalidArgument, usage)
			}
			pageNumber := 1
			if len(arguments) == 1 {
				if pageNumber, err = strconv.Atoi(arguments[0]); err != nil {
					return status.Errorf(codes.InvalidArgument, "Invalid page number %#v", arguments[0])
				}
			}
			return list(ctx, s, manifeststore.Filter{Owner: applicationConfiguration.Owner}, pageNumber)
		case "search":
			if len(arguments) != 1 {
				return status.Error(codes.InvalidArgument, usage)
			}
			return list(ctx, s, manifeststore.Filter{
				Owner:         applicationConfiguration.Owner,
				NameSubstring: arguments[0],
			}, 1)
		case "delete":
			if len(arguments) != 1 {
				return status.Error(codes.InvalidArgument, usage)
			}
			return deleteFile(ctx, s, arguments[0])
		default:
			return status.Errorf(codes.InvalidArgument, "Unknown command %#v\n%s", command, usage)
		}
	})
}

// getPartialManifestPath returns the path at which the manifest of
// an incomplete upload is kept, so that it can be resumed or
// abandoned by a later invocation.
func getPartialManifestPath(path string) string {
	return path + ".bb_splitter.json"
}

func writePartialManifest(m *manifest.FileManifest, path string) error {
	data, err := manifest.Marshal(m)
	if err != nil {
		return err
	}
	partialManifestPath := getPartialManifestPath(path)
	if err := os.WriteFile(partialManifestPath, data, 0o644); err != nil {
		return util.StatusWrapfWithCode(err, codes.Internal, "Failed to write manifest of incomplete upload to %#v", partialManifestPath)
	}
	return nil
}

func readPartialManifest(path string) (*manifest.FileManifest, error) {
	partialManifestPath := getPartialManifestPath(path)
	data, err := os.ReadFile(partialManifestPath)
	if err != nil {
		return nil, util.StatusWrapfWithCode(err, codes.NotFound, "Failed to read manifest of incomplete upload from %#v", partialManifestPath)
	}
	return manifest.Unmarshal(data)
}

// handleIncompleteUpload preserves the manifest of an upload that did
// not complete, so that the parts that were uploaded are not lost.
func handleIncompleteUpload(m *manifest.FileManifest, path string, uploadErr error) error {
	uploadErr = util.StatusWrapf(uploadErr, "Failed to upload %#v", path)
	if m == nil {
		return uploadErr
	}
	if m.GetUploadedPartsCount() == 0 {
		os.Remove(getPartialManifestPath(path))
		return uploadErr
	}
	if err := writePartialManifest(m, path); err != nil {
		logrus.WithError(err).Error("Uploaded parts can only be removed manually")
		return uploadErr
	}
	logrus.WithFields(logrus.Fields{
		"manifest_id":    m.ID,
		"parts":          len(m.Parts),
		"parts_uploaded": m.GetUploadedPartsCount(),
	}).Warn("Upload is incomplete, and may be continued using \"resume\" or removed using \"abandon\"")
	return uploadErr
}

func printStored(m *manifest.FileManifest) {
	fmt.Printf("Uploaded %s (%s, %d parts) as %s\n", m.OriginalName, util.FormatSizeBytes(m.TotalSizeBytes), len(m.Parts), m.ID)
}

func upload(ctx context.Context, s *splitter.Splitter, path, owner string) error {
	if _, err := os.Stat(getPartialManifestPath(path)); err == nil {
		return status.Errorf(codes.FailedPrecondition, "An incomplete upload of %#v exists, which needs to be resumed or abandoned first", path)
	}
	m, err := s.Store(ctx, path, owner)
	if err != nil {
		return handleIncompleteUpload(m, path, err)
	}
	printStored(m)
	return nil
}

func resume(ctx context.Context, s *splitter.Splitter, path string) error {
	m, err := readPartialManifest(path)
	if err != nil {
		return err
	}
	if err := s.Resume(ctx, m, path); err != nil {
		return handleIncompleteUpload(m, path, err)
	}
	os.Remove(getPartialManifestPath(path))
	printStored(m)
	return nil
}

func abandon(ctx context.Context, s *splitter.Splitter, path string) error {
	m, err := readPartialManifest(path)
	if err != nil {
		return err
	}
	remainingParts, err := s.Abandon(ctx, m)
	if remainingParts > 0 {
		if err := writePartialManifest(m, path); err != nil {
			return err
		}
		logrus.WithField("remaining_parts", remainingParts).Warn("Some parts could not be removed, and \"abandon\" needs to be run again")
	} else {
		os.Remove(getPartialManifestPath(path))
	}
	if err != nil {
		return util.StatusWrapf(err, "Failed to abandon upload of %#v", path)
	}
	fmt.Printf("Abandoned upload of %s\n", path)
	return nil
}

func download(ctx context.Context, s *splitter.Splitter, id, destinationDirectory string) error {
	path, err := s.Retrieve(ctx, id, destinationDirectory)
	if err != nil {
		return util.StatusWrapf(err, "Failed to download %#v", id)
	}
	fmt.Printf("Downloaded %s to %s\n", id, path)
	return nil
}

func list(ctx context.Context, s *splitter.Splitter, filter manifeststore.Filter, pageNumber int) error {
	summaries, err := s.List(ctx, filter)
	if err != nil {
		return util.StatusWrap(err, "Failed to list files")
	}
	if len(summaries) == 0 {
		fmt.Println("No files found")
		return nil
	}
	page := splitter.GetPage(summaries, pageNumber, splitter.DefaultPageSize)
	printSummaries(page.Summaries)
	if page.Count > 1 {
		fmt.Printf("Page %d/%d\n", page.Number, page.Count)
	}
	return nil
}

func printSummaries(summaries []manifest.Summary) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTYPE\tSIZE\tPARTS\tOWNER\tCREATED")
	for _, summary := range summaries {
		fmt.Fprintf(
			w,
			"%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			summary.ID,
			summary.OriginalName,
			summary.FileType,
			util.FormatSizeBytes(summary.TotalSizeBytes),
			summary.PartsCount,
			summary.Owner,
			summary.CreationTime.Local().Format(time.DateTime))
	}
	w.Flush()
}

func deleteFile(ctx context.Context, s *splitter.Splitter, id string) error {
	remainingParts, err := s.Delete(ctx, id)
	if err != nil {
		return util.StatusWrapf(err, "Failed to delete %#v", id)
	}
	if remainingParts > 0 {
		logrus.WithField("remaining_parts", remainingParts).Warn("Some parts could not be removed, and need to be removed manually")
	}
	fmt.Printf("Deleted %s\n", id)
	return nil
}
