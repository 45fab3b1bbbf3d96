package zip

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkers bounds entry decodes when the caller does not.
const DefaultWorkers = 4

// Result is the outcome of decoding one entry. Err holds per-entry failures
// such as checksum mismatches or handler errors; they do not stop sibling
// entries.
type Result struct {
	Entry *Entry
	Size  int
	Err   error
}

// Handler receives every successfully decoded entry. A handler error is
// recorded in that entry's Result.
type Handler func(entry *Entry, data []byte) error

// ExtractAll decodes every entry with up to workers concurrent decodes and
// passes the data to handle. Results come back in central directory order.
// The returned error is only set when ctx ends the run early.
func (a *Archive) ExtractAll(ctx context.Context, workers int, handle Handler) ([]Result, error) {
	return a.ExtractEntries(ctx, a.Entries, workers, handle)
}

// ExtractEntries is ExtractAll restricted to the given entries.
func (a *Archive) ExtractEntries(ctx context.Context, entries []*Entry, workers int, handle Handler) ([]Result, error) {
	if workers <= 0 {
		workers = DefaultWorkers
	}

	results := make([]Result, len(entries))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)

	for i, entry := range entries {
		i, entry := i, entry
		group.Go(func() error {
			results[i].Entry = entry
			if err := groupCtx.Err(); err != nil {
				results[i].Err = err
				return err
			}

			llog := a.log.WithFields(logrus.Fields{
				"method": "ExtractEntries",
				"name":   entry.FileName,
			})

			data, err := a.Decompress(entry)
			if err != nil {
				llog.WithError(err).Warn("unable to decode entry")
				results[i].Err = err
				return nil
			}
			results[i].Size = len(data)
			llog.Debugf("decoded %d bytes", len(data))

			if handle == nil {
				return nil
			}
			if err := handle(entry, data); err != nil {
				llog.WithError(err).Warn("unable to handle entry")
				results[i].Err = errors.Wrapf(err, "unable to handle %s", entry.FileName)
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// ExtractOptions tune ExtractTo.
type ExtractOptions struct {
	Workers         int
	Overwrite       bool
	SkipUnsupported bool
}

// ExtractTo writes every entry below dir. Entries whose names would land
// outside dir are reported as ErrUnsafePath results and never written;
// unsupported entries are left out entirely when SkipUnsupported is set.
func (a *Archive) ExtractTo(ctx context.Context, dir string, options ExtractOptions) ([]Result, error) {
	targetPath, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to resolve %s", dir)
	}
	if err := os.MkdirAll(targetPath, 0755); err != nil {
		return nil, errors.Wrapf(err, "unable to create %s", targetPath)
	}

	entries := a.Entries
	if options.SkipUnsupported {
		entries = lo.Filter(entries, func(entry *Entry, _ int) bool {
			return entry.Supported() == nil
		})
	}

	safe := lo.Filter(entries, func(entry *Entry, _ int) bool {
		return isSafePath(targetPath, entry.FileName)
	})
	unsafe := lo.Reject(entries, func(entry *Entry, _ int) bool {
		return isSafePath(targetPath, entry.FileName)
	})

	results, err := a.ExtractEntries(ctx, safe, options.Workers, func(entry *Entry, data []byte) error {
		return extractFile(targetPath, entry, data, options.Overwrite)
	})

	for _, entry := range unsafe {
		a.log.WithField("name", entry.FileName).Warn("skipping entry outside target directory")
		results = append(results, Result{
			Entry: entry,
			Err:   errors.Wrap(ErrUnsafePath, entry.FileName),
		})
	}

	return results, err
}

// extractFile writes one decoded entry to its path under targetPath
func extractFile(targetPath string, entry *Entry, data []byte, overwrite bool) error {
	filePath := filepath.Join(targetPath, filepath.FromSlash(entry.FileName))

	if entry.IsDir() {
		return errors.Wrapf(os.MkdirAll(filePath, entry.Mode()), "unable to create directory %s", filePath)
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return errors.Wrapf(err, "unable to create directory %s", filepath.Dir(filePath))
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !overwrite {
		flags |= os.O_EXCL
	}

	outFile, err := os.OpenFile(filePath, flags, entry.Mode())
	if err != nil {
		return errors.Wrapf(err, "unable to create file %s", filePath)
	}
	defer outFile.Close() // nolint: errcheck

	if _, err := outFile.Write(data); err != nil {
		return errors.Wrapf(err, "unable to write file %s", filePath)
	}
	return outFile.Close()
}

// isSafePath reports whether name resolves to a path inside targetPath
func isSafePath(targetPath string, name string) bool {
	if name == "" || filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return false
	}
	fullPath := filepath.Join(targetPath, filepath.FromSlash(name))
	return fullPath == targetPath || strings.HasPrefix(fullPath, targetPath+string(filepath.Separator))
}
