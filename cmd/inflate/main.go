package main

import (
	"io"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/JoshVarga/inflate"
	"github.com/JoshVarga/inflate/config"
)

func main() {
	cli, err := config.NewInflateConfig(os.Args[1:])
	if err != nil {
		logrus.Errorf("unable to parse arguments: %s", err)
		os.Exit(1)
	}

	if cli.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	if err := run(cli); err != nil {
		var decodeErr *inflate.DecodeError
		if errors.As(err, &decodeErr) {
			logrus.WithField("bit", decodeErr.BitOffset).Errorf("unable to decode %s: %s", cli.Input, err)
		} else {
			logrus.Errorf("unable to decode %s: %s", cli.Input, err)
		}
		os.Exit(1)
	}
}

func run(cli *config.InflateCLI) error {
	fileIn, err := os.Open(cli.Input)
	if err != nil {
		return errors.Wrap(err, "unable to open input")
	}
	defer fileIn.Close() // nolint: errcheck

	input, release, err := mapInput(fileIn)
	if err != nil {
		return err
	}
	defer release()

	logrus.Debugf("decoding %d compressed bytes", len(input))

	if cli.Output == "" {
		return decode(os.Stdout, input)
	}

	fileOut, err := os.Create(cli.Output)
	if err != nil {
		return errors.Wrap(err, "unable to create output")
	}
	defer fileOut.Close() // nolint: errcheck

	if err := decode(fileOut, input); err != nil {
		return err
	}
	return errors.Wrap(fileOut.Close(), "unable to close output")
}

// decode inflates input to w, warning about bytes after the final block.
func decode(w io.Writer, input []byte) error {
	decoded, consumed, err := inflate.DecompressPrefix(input)
	if err != nil {
		return err
	}
	if consumed != len(input) {
		logrus.Warnf("ignoring %d bytes after the final block", len(input)-consumed)
	}

	logrus.Debugf("decoded %d bytes", len(decoded))

	_, err = w.Write(decoded)
	return errors.Wrap(err, "unable to write output")
}

// mapInput maps f read-only. Empty files cannot be mapped and yield no input.
func mapInput(f *os.File) ([]byte, func(), error) {
	info, err := f.Stat()
	if err != nil {
		return nil, nil, errors.Wrap(err, "unable to stat input")
	}
	if info.Size() == 0 {
		return nil, func() {}, nil
	}

	mapping, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, nil, errors.Wrap(err, "unable to map input")
	}

	return mapping, func() {
		if err := mapping.Unmap(); err != nil {
			logrus.Warnf("unable to unmap input: %s", err)
		}
	}, nil
}
