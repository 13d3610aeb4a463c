package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"movetrack/internal/attachments"
	"movetrack/internal/domain"
	"movetrack/internal/engine"
)

func responseCmd() *cobra.Command {
	resp := &cobra.Command{
		Use:   "response",
		Short: "Answer a movement for one of your teams",
	}
	resp.AddCommand(responseSubmitCmd())
	return resp
}

func responseSubmitCmd() *cobra.Command {
	var team, comment string
	var checked, files []string
	cmd := &cobra.Command{
		Use:   "submit <movement-id>",
		Short: "Submit or resubmit a team's response",
		Long:  "Every checklist item configured for the team must be passed with --check. Files given with --attach are uploaded first.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			checklist := make(map[string]bool, len(checked))
			for _, item := range checked {
				checklist[item] = true
			}
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actorID string) error {
				var uploaded []domain.Attachment
				for _, p := range files {
					att, err := uploadFile(ctx, e, args[0], team, actorID, p)
					if err != nil {
						return err
					}
					uploaded = append(uploaded, att)
				}
				m, err := e.SubmitResponse(ctx, engine.ResponseSubmitOptions{
					MovementID:  args[0],
					TeamID:      team,
					Comment:     comment,
					Checklist:   checklist,
					Attachments: uploaded,
					ActorID:     actorID,
				})
				if err != nil {
					return err
				}
				return printMovement(e, m)
			})
		},
	}
	cmd.Flags().StringVar(&team, "team", "", "team id answering")
	cmd.Flags().StringVar(&comment, "comment", "", "response comment")
	cmd.Flags().StringArrayVar(&checked, "check", nil, "checklist item that is done (repeatable)")
	cmd.Flags().StringArrayVar(&files, "attach", nil, "file to upload and attach (repeatable)")
	_ = cmd.MarkFlagRequired("team")
	_ = cmd.MarkFlagRequired("comment")
	return cmd
}

func uploadFile(ctx context.Context, e engine.Engine, movementID, team, actorID, path string) (domain.Attachment, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.Attachment{}, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return domain.Attachment{}, err
	}
	att, err := e.UploadAttachment(ctx, engine.AttachmentUploadOptions{
		MovementID: movementID,
		TeamID:     team,
		File: attachments.File{
			Name: filepath.Base(path),
			Size: info.Size(),
			Body: f,
		},
		ActorID: actorID,
	})
	if err != nil {
		return domain.Attachment{}, fmt.Errorf("upload %s: %w", path, err)
	}
	return att, nil
}
