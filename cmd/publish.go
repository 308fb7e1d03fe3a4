// File: cmd/publish.go
package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/xhs-cli/internal/xhs"
)

// noteFlags are shared by both publish subcommands.
type noteFlags struct {
	title   string
	content string
	tags    string
}

func (f *noteFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.title, "title", "t", "", "note title (at most 40 display columns)")
	cmd.Flags().StringVarP(&f.content, "content", "m", "", "note body")
	cmd.Flags().StringVar(&f.tags, "tags", "", "comma separated topics, with or without '#'")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("content")
}

func newPublishCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish an image or video note through the creator center",
	}
	cmd.AddCommand(newPublishImageCmd(), newPublishVideoCmd())
	return cmd
}

func newPublishImageCmd() *cobra.Command {
	var (
		note   noteFlags
		images []string
	)
	cmd := &cobra.Command{
		Use:   "image --title T --content C --image PATH_OR_URL...",
		Short: "Publish an image note",
		Example: `  xhs-cli publish image -t "周末咖啡" -m "探店记录" --image a.jpg --image https://example.com/b.png --tags 咖啡,探店`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := xhs.PublishImageRequest{
				Title:   note.title,
				Content: note.content,
				Images:  images,
				Tags:    xhs.ParseTags(note.tags),
			}
			return runWorkflow(cmd, func(ctx context.Context, svc *xhs.Service) xhs.Result {
				return svc.PublishImage(ctx, req)
			})
		},
	}
	note.register(cmd)
	cmd.Flags().StringSliceVarP(&images, "image", "i", nil, "local image path or http(s) URL; repeatable")
	_ = cmd.MarkFlagRequired("image")
	return cmd
}

func newPublishVideoCmd() *cobra.Command {
	var (
		note  noteFlags
		video string
	)
	cmd := &cobra.Command{
		Use:   "video --title T --content C --video PATH",
		Short: "Publish a video note",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := xhs.PublishVideoRequest{
				Title:   note.title,
				Content: note.content,
				Video:   video,
				Tags:    xhs.ParseTags(note.tags),
			}
			return runWorkflow(cmd, func(ctx context.Context, svc *xhs.Service) xhs.Result {
				return svc.PublishVideo(ctx, req)
			})
		},
	}
	note.register(cmd)
	cmd.Flags().StringVar(&video, "video", "", "local video file")
	_ = cmd.MarkFlagRequired("video")
	return cmd
}
