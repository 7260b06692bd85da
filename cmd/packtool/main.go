// packtool validates a game package directory and builds the zip a developer
// uploads to the platform.
package main

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/playdeck/playdeck/internal/archive"
	"github.com/playdeck/playdeck/internal/manifest"
)

func main() {
	root := &cobra.Command{Use: "packtool", Short: "Validate and build game packages"}
	root.AddCommand(checkCmd(), buildCmd())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <dir|zip>",
		Short: "Validate a package directory or zip",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := args[0]
			info, err := os.Stat(target)
			if err != nil {
				return err
			}
			var m any
			if info.IsDir() {
				m, err = checkDir(target)
			} else {
				var raw []byte
				raw, err = os.ReadFile(target)
				if err == nil {
					m, err = archive.Inspect(raw)
				}
			}
			if err != nil {
				return err
			}
			fmt.Printf("ok: %+v\n", m)
			return nil
		},
	}
}

func buildCmd() *cobra.Command {
	var out string
	c := &cobra.Command{
		Use:   "build <dir>",
		Short: "Build a package zip from a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := args[0]
			if _, err := checkDir(dir); err != nil {
				return err
			}
			if out == "" {
				out = filepath.Base(filepath.Clean(dir)) + ".zip"
			}
			if err := zipDir(dir, out); err != nil {
				return err
			}
			fmt.Println("wrote", out)
			return nil
		},
	}
	c.Flags().StringVarP(&out, "output", "o", "", "output zip path")
	return c
}

func checkDir(dir string) (any, error) {
	raw, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	m, err := manifest.Parse(raw)
	if err != nil {
		return nil, err
	}
	for _, entry := range []string{m.Entry, m.ServerEntry} {
		if entry == "" {
			continue
		}
		if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(entry))); err != nil {
			return nil, fmt.Errorf("entry %s not found in %s", entry, dir)
		}
	}
	return m, nil
}

func zipDir(dir, out string) error {
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	defer f.Close()
	zw := zip.NewWriter(f)
	defer zw.Close()

	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if strings.HasPrefix(rel, ".git/") || strings.HasSuffix(rel, ".pyc") {
			return nil
		}
		w, err := zw.Create(rel)
		if err != nil {
			return err
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(w, src)
		return err
	})
}
