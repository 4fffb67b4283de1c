package relay

import (
	"context"
	"errors"
	"time"

	"shotrelay/internal/directory"
	"shotrelay/internal/eventbus"
	"shotrelay/internal/tracking"
	logx "shotrelay/pkg/logx"
)

// Service is the event-handling orchestrator: classify, resolve, compose,
// deliver. One Handle call per inbound envelope; no per-event state outlives
// the call.
type Service struct {
	src      tracking.Source
	dir      directory.Directory
	resolver *Resolver
	coord    *Coordinator
	log      logx.Logger
	bus      eventbus.Bus

	attachDelay time.Duration
	timer       func(d time.Duration) <-chan time.Time
}

type Options struct {
	// AttachmentDelay is the eventual-consistency grace before the note
	// attachment lookup. 0 disables the wait.
	AttachmentDelay time.Duration
}

func NewService(src tracking.Source, dir directory.Directory, coord *Coordinator, log logx.Logger, bus eventbus.Bus, opts Options) *Service {
	return &Service{
		src:         src,
		dir:         dir,
		resolver:    NewResolver(src, log.With(logx.String("comp", "resolver"))),
		coord:       coord,
		log:         log,
		bus:         bus,
		attachDelay: opts.AttachmentDelay,
		timer: func(d time.Duration) <-chan time.Time {
			return time.After(d)
		},
	}
}

// Resolver exposes the graph resolver for direct use (and tests).
func (s *Service) Resolver() *Resolver { return s.resolver }

// HandledEvent is the bus payload emitted once per handled envelope.
type HandledEvent struct {
	Category   string
	EntityType string
	EntityID   int64
	Outcome    string
	Report     Report
	Error      string
}

// Handle processes one envelope to completion. The returned Outcome fully
// determines the transport response; the error carries detail for logging.
func (s *Service) Handle(ctx context.Context, env Envelope) (Outcome, error) {
	cat, err := Classify(env)
	if err != nil {
		s.log.Warn("unsupported entity type or event",
			logx.String("entity_type", env.EntityType),
			logx.String("event_type", env.EventType),
			logx.String("operation", env.Operation))
		s.publishHandled(eventbus.TypeEventRejected, "", env, OutcomeRejected, Report{}, err)
		return OutcomeRejected, err
	}

	log := s.log.With(logx.String("category", cat.String()), logx.Int64("entity_id", env.EntityID))
	log.Info("event received")

	var (
		out  Outcome
		rep  Report
		herr error
	)
	switch cat {
	case CategoryShotStatus:
		out, rep, herr = s.handleStatusChange(ctx, env, StatusDomainShot)
	case CategoryAssetStatus:
		out, rep, herr = s.handleStatusChange(ctx, env, StatusDomainAsset)
	case CategoryNoteCreated:
		out, rep, herr = s.handleNote(ctx, env)
	case CategoryReplyCreated:
		out, rep, herr = s.handleReply(ctx, env)
	case CategoryTaskAssignment:
		out, rep, herr = s.handleTaskAssignment(ctx, env)
	default:
		out, herr = OutcomeRejected, ErrUnsupported
	}

	log.Info("event handled",
		logx.String("outcome", out.String()),
		logx.Int("sent", rep.Sent), logx.Int("skipped", rep.Skipped),
		logx.Int("rate_limited", rep.RateLimited), logx.Int("failed", rep.Failed),
		logx.Err(herr))
	s.publishHandled(eventbus.TypeEventHandled, cat.String(), env, out, rep, herr)
	return out, herr
}

func (s *Service) handleStatusChange(ctx context.Context, env Envelope, domain StatusDomain) (Outcome, Report, error) {
	rs, c, err := s.resolver.Resolve(ctx, env.Ref())
	if err != nil {
		return outcomeForResolveError(err), Report{}, err
	}
	if rs.Empty() {
		s.log.Warn("no assigned users found",
			logx.String("entity_type", env.EntityType), logx.Int64("entity_id", env.EntityID))
		return OutcomeNoRecipients, Report{}, nil
	}

	body := ComposeStatusChange(domain, env.OldValue, env.NewValue)
	rep := s.coord.Deliver(ctx, rs, c, body)
	return OutcomeDelivered, rep, nil
}

func (s *Service) handleNote(ctx context.Context, env Envelope) (Outcome, Report, error) {
	noteID := env.EntityID
	rec, err := s.src.FindOne(ctx, tracking.KindNote, tracking.ByID(noteID), []tracking.Field{
		tracking.FieldNoteContent,
		tracking.FieldNoteLinks,
		tracking.FieldNoteAuthorEmail,
		tracking.FieldNoteAuthorName,
	})
	if err != nil {
		return OutcomeError, Report{}, err
	}
	if rec == nil {
		return OutcomeNotFound, Report{}, ErrNotFound
	}

	links := rec.Refs(tracking.FieldNoteLinks)
	if len(links) == 0 {
		// Valid note, nothing to route to. Distinct from a missing note.
		s.log.Warn("note has no linked entities", logx.Int64("note_id", noteID))
		return OutcomeNoRecipients, Report{}, nil
	}

	body := ComposeNote(
		rec.Str(tracking.FieldNoteAuthorName, "unknown user"),
		rec.Str(tracking.FieldNoteContent, "No content"),
		s.annotatedFrameURL(ctx, noteID),
	)

	rs, c, err := s.resolver.resolveLink(ctx, links[0])
	if err != nil {
		return outcomeForResolveError(err), Report{}, err
	}
	if rs.Empty() {
		s.log.Warn("no assigned users found for linked entity",
			logx.String("linked_type", string(links[0].Type)), logx.Int64("linked_id", links[0].ID))
		return OutcomeNoRecipients, Report{}, nil
	}

	rep := s.coord.Deliver(ctx, rs, c, body)
	return OutcomeDelivered, rep, nil
}

func (s *Service) handleReply(ctx context.Context, env Envelope) (Outcome, Report, error) {
	replyID := env.EntityID
	rec, err := s.src.FindOne(ctx, tracking.KindReply, tracking.ByID(replyID), []tracking.Field{
		tracking.FieldReplyContent,
		tracking.FieldReplyNoteContent,
		tracking.FieldReplyNoteLinks,
		tracking.FieldReplyAuthorEmail,
	})
	if err != nil {
		return OutcomeError, Report{}, err
	}
	if rec == nil {
		return OutcomeNotFound, Report{}, ErrNotFound
	}

	body := ComposeReply(
		rec.Str(tracking.FieldReplyContent, "No content"),
		rec.Str(tracking.FieldReplyNoteContent, "No associated note content"),
	)

	if links := rec.Refs(tracking.FieldReplyNoteLinks); len(links) > 0 {
		rs, c, err := s.resolver.resolveLink(ctx, links[0])
		switch {
		case err == nil:
			if rs.Empty() {
				s.log.Warn("no assigned users found for reply's linked entity",
					logx.Int64("reply_id", replyID))
				return OutcomeNoRecipients, Report{}, nil
			}
			rep := s.coord.Deliver(ctx, rs, c, body)
			return OutcomeDelivered, rep, nil
		case errors.Is(err, ErrNotFound):
			return OutcomeNotFound, Report{}, err
		case errors.Is(err, ErrUnsupported):
			// A link the resolver can't walk: fall back to notifying the
			// reply's author directly.
		default:
			return OutcomeError, Report{}, err
		}
	}

	email := rec.Str(tracking.FieldReplyAuthorEmail, "")
	if email == "" {
		s.log.Warn("reply has no linked entity and no author email", logx.Int64("reply_id", replyID))
		return OutcomeNoRecipients, Report{}, nil
	}
	rep := s.coord.DeliverTo(ctx, email, body)
	if rep.Skipped > 0 {
		// Author has no chat identity: zero messages went out.
		return OutcomeNoRecipients, rep, nil
	}
	return OutcomeDelivered, rep, nil
}

func (s *Service) handleTaskAssignment(ctx context.Context, env Envelope) (Outcome, Report, error) {
	if env.Attribute != "task_assignees" {
		s.log.Debug("task change is not an assignment change",
			logx.Int64("task_id", env.EntityID), logx.String("attribute", env.Attribute))
		return OutcomeIgnored, Report{}, nil
	}

	rec, err := s.src.FindOne(ctx, tracking.KindTask, tracking.ByID(env.EntityID),
		[]tracking.Field{tracking.FieldTaskEntity, tracking.FieldTaskStep})
	if err != nil {
		return OutcomeError, Report{}, err
	}
	if rec == nil {
		return OutcomeNotFound, Report{}, ErrNotFound
	}

	step := rec.Str(tracking.FieldTaskStep, "Unknown Step")
	ent, ok := rec.Ref(tracking.FieldTaskEntity)
	if !ok || ent.Type != tracking.KindShot {
		s.log.Debug("task is not linked to a shot", logx.Int64("task_id", env.EntityID))
		return OutcomeIgnored, Report{}, nil
	}

	shotRec, err := s.src.FindOne(ctx, tracking.KindShot, tracking.ByID(ent.ID),
		[]tracking.Field{tracking.FieldProjectName, tracking.FieldShotSequence})
	if err != nil {
		return OutcomeError, Report{}, err
	}
	if shotRec == nil {
		return OutcomeNotFound, Report{}, ErrNotFound
	}

	entityName := ent.Name
	if entityName == "" {
		entityName = "Unknown Shot"
	}
	c := Context{
		Project:  shotRec.Str(tracking.FieldProjectName, "Unknown Project"),
		Sequence: shotRec.Str(tracking.FieldShotSequence, "Unknown Sequence"),
		Entity:   entityName,
		Step:     step,
	}

	// Assignment messages are personalized per user, not grouped by step.
	var rep Report
	for _, u := range env.Added {
		rep.merge(s.notifyAssignment(ctx, u.ID, c, true))
	}
	for _, u := range env.Removed {
		rep.merge(s.notifyAssignment(ctx, u.ID, c, false))
	}
	return OutcomeDelivered, rep, nil
}

func (s *Service) notifyAssignment(ctx context.Context, userID int64, c Context, added bool) Report {
	email, err := s.resolver.userEmail(ctx, userID)
	if err != nil {
		s.log.Error("user lookup failed", logx.Int64("user_id", userID), logx.Err(err))
		return Report{Skipped: 1}
	}
	if email == "" {
		s.log.Warn("assignee has no email; skipping", logx.Int64("user_id", userID))
		return Report{Skipped: 1}
	}
	return s.coord.DeliverTo(ctx, email, ComposeAssignment(c, added))
}

func outcomeForResolveError(err error) Outcome {
	switch {
	case errors.Is(err, ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, ErrUnsupported):
		return OutcomeRejected
	default:
		return OutcomeError
	}
}

func (s *Service) publishHandled(typ, category string, env Envelope, out Outcome, rep Report, err error) {
	if s.bus == nil {
		return
	}
	ev := HandledEvent{
		Category:   category,
		EntityType: env.EntityType,
		EntityID:   env.EntityID,
		Outcome:    out.String(),
		Report:     rep,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: ev})
}
