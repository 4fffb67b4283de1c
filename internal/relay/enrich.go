package relay

import (
	"context"

	"shotrelay/internal/tracking"
	logx "shotrelay/pkg/logx"
)

// annotatedFrameURL returns the file URL of the first resolvable attachment
// on a note, or "" when none resolve. Attachments are tried in listed order.
//
// The upstream store is eventually consistent: attachments uploaded with a
// note may not be queryable the instant the webhook fires, so the lookup
// waits attachDelay first. The wait suspends only this event's handling;
// ctx cancellation cuts it short.
func (s *Service) annotatedFrameURL(ctx context.Context, noteID int64) string {
	if s.attachDelay > 0 {
		t := s.timer(s.attachDelay)
		select {
		case <-ctx.Done():
			return ""
		case <-t:
		}
	}

	rec, err := s.src.FindOne(ctx, tracking.KindNote, tracking.ByID(noteID),
		[]tracking.Field{tracking.FieldID, tracking.FieldNoteAttachments})
	if err != nil || rec == nil {
		s.log.Debug("attachment lookup failed", logx.Int64("note_id", noteID), logx.Err(err))
		return ""
	}

	for _, att := range rec.Refs(tracking.FieldNoteAttachments) {
		url := s.attachmentURL(ctx, att.ID)
		if url != "" {
			return url
		}
	}
	return ""
}

func (s *Service) attachmentURL(ctx context.Context, attachmentID int64) string {
	rec, err := s.src.FindOne(ctx, tracking.KindAttachment, tracking.ByID(attachmentID),
		[]tracking.Field{tracking.FieldAttachmentFile})
	if err != nil || rec == nil {
		s.log.Debug("attachment not found", logx.Int64("attachment_id", attachmentID), logx.Err(err))
		return ""
	}
	file := rec.Nested(tracking.FieldAttachmentFile)
	if file == nil {
		return ""
	}
	return file.Str("url", "")
}
