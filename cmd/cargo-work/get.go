package main

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zlib"
	"github.com/spf13/cobra"

	"go.horsed.dev/horsed/internal/wire"
	"go.horsed.dev/horsed/schema"
)

func newGetCommand(opts *clientOptions) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "get <remote-path>",
		Short: "fetch a file or directory from the server's data root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := opts.mergedEnv(nil)
			if err != nil {
				return err
			}
			session, err := dial(opts, schema.ActionGet, env)
			if err != nil {
				return err
			}
			defer session.Close()

			dest := out
			if dest == "" {
				dest = filepath.Base(args[0])
			}

			pr, pw := io.Pipe()
			decodeDone := make(chan error, 1)
			go func() { decodeDone <- receiveGet(pr, dest) }()

			code, execErr := session.Exec(args[0], pw, cmd.ErrOrStderr())
			_ = pw.Close()
			decodeErr := <-decodeDone

			if execErr != nil {
				return execErr
			}
			if code != 0 {
				return asExitError(code, nil)
			}
			return decodeErr
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "local destination (defaults to the remote path's base name)")
	return cmd
}

// receiveGet consumes the `get` response from r: a framed GetFile metadata
// message followed by a zlib-compressed byte stream (the file itself, or a
// tar of the directory) (§4.6).
func receiveGet(r io.Reader, dest string) error {
	head, err := wire.ReadHead(r)
	if err != nil {
		return fmt.Errorf("read get response head: %w", err)
	}
	buf := make([]byte, head.Size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return fmt.Errorf("read get response body: %w", err)
	}
	body, err := wire.DecodeBody(buf)
	if err != nil || body.Tag != wire.TagGetFile {
		return fmt.Errorf("get: unexpected response body")
	}

	zr, err := zlib.NewReader(r)
	if err != nil {
		return fmt.Errorf("open zlib stream: %w", err)
	}
	defer zr.Close()

	if body.GetFile.Kind == wire.KindDirectory {
		return extractTar(zr, dest)
	}
	return writeFile(zr, dest)
}

func writeFile(r io.Reader, dest string) error {
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(f, r)
	return err
}

func extractTar(r io.Reader, destDir string) error {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return err
	}
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		target := filepath.Join(destDir, hdr.Name)
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := writeFile(tr, target); err != nil {
				return err
			}
		}
	}
}
