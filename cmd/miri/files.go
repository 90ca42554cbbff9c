package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

func (a *app) filesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "files",
		Short: "Upload and download files in the agent workspace",
	}

	var name string
	uploadCmd := &cobra.Command{
		Use:   "upload <path>",
		Short: "Upload a local file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			if name == "" {
				name = filepath.Base(args[0])
			}
			res, err := a.client.UploadFile(cmd.Context(), name, f)
			if err != nil {
				return err
			}
			return a.render(res, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, res.Path)
				return err
			})
		},
	}
	uploadCmd.Flags().StringVar(&name, "name", "", "remote file name (default: base name of path)")

	var output string
	downloadCmd := &cobra.Command{
		Use:   "download <filepath>",
		Short: "Download a workspace file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := a.client.DownloadFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err = a.out.Write(data)
				return err
			}
			return os.WriteFile(output, data, 0o644)
		},
	}
	downloadCmd.Flags().StringVarP(&output, "output-file", "O", "", "write to file instead of stdout")

	cmd.AddCommand(uploadCmd, downloadCmd)
	return cmd
}
