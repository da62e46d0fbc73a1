package actions

import (
	"archive/tar"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zlib"

	securejoin "github.com/cyphar/filepath-securejoin"

	"go.horsed.dev/horsed/internal/dispatch"
	"go.horsed.dev/horsed/internal/sshchannel"
	"go.horsed.dev/horsed/internal/wire"
)

// Get runs the `get` action (§4.6): stats the requested path under dataRoot,
// replies with a framed Body::GetFile, then streams a zlib-compressed
// payload — the file itself, or a tar of the directory.
func Get(dataRoot string) dispatch.Handler {
	return func(ctx context.Context, handle *sshchannel.Handle, env map[string]string, payload []byte) error {
		path, err := securejoin.SecureJoin(dataRoot, strings.TrimSpace(string(payload)))
		if err != nil {
			writeErrorLine(handle, "invalid path: "+err.Error())
			return handle.Exit(1)
		}
		info, err := os.Stat(path)
		if err != nil {
			writeErrorLine(handle, "stat failed: "+err.Error())
			return handle.Exit(1)
		}

		body := wire.Body{Tag: wire.TagGetFile, GetFile: wire.GetFile{Path: string(payload)}}
		if info.IsDir() {
			body.GetFile.Kind = wire.KindDirectory
		} else {
			body.GetFile.Kind = wire.KindFile
			body.GetFile.HasSize = true
			body.GetFile.Size = uint64(info.Size())
		}
		if _, err := handle.Writer().Write(wire.Frame(body)); err != nil {
			return handle.Exit(1)
		}

		zw := zlib.NewWriter(handle.Writer())
		if info.IsDir() {
			if err := tarDirectory(path, zw); err != nil {
				writeErrorLine(handle, "tar failed: "+err.Error())
				_ = zw.Close()
				return handle.Exit(1)
			}
		} else {
			if err := copyFile(path, zw); err != nil {
				writeErrorLine(handle, "read failed: "+err.Error())
				_ = zw.Close()
				return handle.Exit(1)
			}
		}
		if err := zw.Close(); err != nil {
			return handle.Exit(1)
		}
		return handle.Exit(0)
	}
}

// SCP runs the `scp` action (§4.6): like `get` but unframed — raw bytes of a
// single file, no zlib compression, no directory support.
func SCP(dataRoot string) dispatch.Handler {
	return func(ctx context.Context, handle *sshchannel.Handle, env map[string]string, payload []byte) error {
		path, err := securejoin.SecureJoin(dataRoot, strings.TrimSpace(string(payload)))
		if err != nil {
			writeErrorLine(handle, "invalid path: "+err.Error())
			return handle.Exit(1)
		}
		info, err := os.Stat(path)
		if err != nil {
			writeErrorLine(handle, "stat failed: "+err.Error())
			return handle.Exit(1)
		}
		if info.IsDir() {
			writeErrorLine(handle, "scp does not support directories")
			return handle.Exit(1)
		}
		if err := copyFile(path, handle.Writer()); err != nil {
			return handle.Exit(1)
		}
		return handle.Exit(0)
	}
}

func copyFile(path string, w io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

func tarDirectory(root string, w io.Writer) error {
	tw := tar.NewWriter(w)
	defer tw.Close()
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		return copyFile(path, tw)
	})
}
