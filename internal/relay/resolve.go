package relay

import (
	"context"
	"errors"
	"fmt"

	"shotrelay/internal/tracking"
	logx "shotrelay/pkg/logx"
)

// RecipientSet groups recipient emails by pipeline-step short name.
// It is built fresh per event and never cached: tracking-system state may
// have changed between events. Order within a step is irrelevant.
type RecipientSet map[string][]string

// Empty reports whether no step resolved any recipient.
func (rs RecipientSet) Empty() bool {
	for _, emails := range rs {
		if len(emails) > 0 {
			return false
		}
	}
	return true
}

func (rs RecipientSet) add(step, email string) {
	for _, e := range rs[step] {
		if e == email {
			return
		}
	}
	rs[step] = append(rs[step], email)
}

// Context is the display metadata injected into every message. Fields the
// tracking system omits default to "Unknown <Kind>", never empty.
type Context struct {
	Project  string
	Sequence string // "N/A" for entities without a sequence
	Entity   string
	Step     string // set for task-assignment events only
}

// Prefix renders the standard per-step message header.
func (c Context) Prefix(step string) string {
	return fmt.Sprintf("In %s|%s|%s|%s\n", c.Project, c.Sequence, c.Entity, step)
}

// Resolver walks the tracking system's relationship graph from an entity
// reference to the set of affected recipients:
//
//	entity -> tasks -> task_assignees -> user email
//
// Notes, replies and tasks are resolved by following one extra indirection
// to their first linked entity before the walk above. Only the first link is
// honored when several exist.
type Resolver struct {
	src tracking.Source
	log logx.Logger
}

func NewResolver(src tracking.Source, log logx.Logger) *Resolver {
	return &Resolver{src: src, log: log}
}

// Resolve maps an entity reference to (RecipientSet, Context).
//
// Resolution failures split three ways: a missing root entity is ErrNotFound;
// an empty linked-entity list or an unlinked Version is a valid empty
// RecipientSet; an unresolvable entity kind is ErrUnsupported.
func (r *Resolver) Resolve(ctx context.Context, ref tracking.EntityRef) (RecipientSet, Context, error) {
	switch ref.Type {
	case tracking.KindNote:
		return r.resolveNoteTarget(ctx, ref.ID)
	case tracking.KindReply:
		return r.resolveReplyTarget(ctx, ref.ID)
	case tracking.KindTask:
		return r.resolveTaskTarget(ctx, ref.ID)
	default:
		return r.resolveLink(ctx, ref)
	}
}

// resolveLink handles the directly-walkable kinds.
func (r *Resolver) resolveLink(ctx context.Context, ref tracking.EntityRef) (RecipientSet, Context, error) {
	switch ref.Type {
	case tracking.KindShot:
		return r.resolveShot(ctx, ref.ID)
	case tracking.KindAsset:
		return r.resolveAsset(ctx, ref.ID)
	case tracking.KindVersion, tracking.KindPlaylist:
		// Playlists link to versions; both resolve through the version rule.
		return r.resolveVersion(ctx, ref.ID)
	default:
		return nil, Context{}, fmt.Errorf("%w: linked entity type %q", ErrUnsupported, ref.Type)
	}
}

func (r *Resolver) resolveShot(ctx context.Context, id int64) (RecipientSet, Context, error) {
	rec, err := r.src.FindOne(ctx, tracking.KindShot, tracking.ByID(id),
		[]tracking.Field{tracking.FieldCode, tracking.FieldProjectName, tracking.FieldShotSequence})
	if err != nil {
		return nil, Context{}, err
	}
	if rec == nil {
		return nil, Context{}, fmt.Errorf("%w: Shot %d", ErrNotFound, id)
	}

	c := Context{
		Project:  rec.Str(tracking.FieldProjectName, "Unknown Project"),
		Sequence: rec.Str(tracking.FieldShotSequence, "Unknown Sequence"),
		Entity:   rec.Str(tracking.FieldCode, "Unknown Shot"),
	}

	rs, err := r.assigneesByStep(ctx, tracking.EntityRef{Type: tracking.KindShot, ID: id})
	if err != nil {
		return nil, Context{}, err
	}
	return rs, c, nil
}

func (r *Resolver) resolveAsset(ctx context.Context, id int64) (RecipientSet, Context, error) {
	rec, err := r.src.FindOne(ctx, tracking.KindAsset, tracking.ByID(id),
		[]tracking.Field{tracking.FieldCode, tracking.FieldProjectName})
	if err != nil {
		return nil, Context{}, err
	}
	if rec == nil {
		return nil, Context{}, fmt.Errorf("%w: Asset %d", ErrNotFound, id)
	}

	c := Context{
		Project:  rec.Str(tracking.FieldProjectName, "Unknown Project"),
		Sequence: "N/A",
		Entity:   rec.Str(tracking.FieldCode, "Unknown Asset"),
	}

	rs, err := r.assigneesByStep(ctx, tracking.EntityRef{Type: tracking.KindAsset, ID: id})
	if err != nil {
		return nil, Context{}, err
	}
	return rs, c, nil
}

func (r *Resolver) resolveVersion(ctx context.Context, id int64) (RecipientSet, Context, error) {
	rec, err := r.src.FindOne(ctx, tracking.KindVersion, tracking.ByID(id),
		[]tracking.Field{tracking.FieldCode, tracking.FieldProjectName, tracking.FieldVersionShot})
	if err != nil {
		return nil, Context{}, err
	}
	if rec == nil {
		return nil, Context{}, fmt.Errorf("%w: Version %d", ErrNotFound, id)
	}

	c := Context{
		Project:  rec.Str(tracking.FieldProjectName, "Unknown Project"),
		Sequence: "N/A",
		Entity:   rec.Str(tracking.FieldCode, "Unknown Version"),
	}

	shot, ok := rec.Ref(tracking.FieldVersionShot)
	if !ok || shot.ID == 0 {
		// A version with no linked shot is a valid "no recipients" outcome,
		// not a resolution failure.
		r.log.Debug("version has no linked shot", logx.Int64("version_id", id))
		return RecipientSet{}, c, nil
	}

	rs, _, err := r.resolveShot(ctx, shot.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			r.log.Warn("linked shot missing; version resolves to no recipients",
				logx.Int64("version_id", id), logx.Int64("shot_id", shot.ID))
			return RecipientSet{}, c, nil
		}
		return nil, Context{}, err
	}
	// Keep the version name as the display entity; the walk used the shot.
	return rs, c, nil
}

func (r *Resolver) resolveNoteTarget(ctx context.Context, id int64) (RecipientSet, Context, error) {
	rec, err := r.src.FindOne(ctx, tracking.KindNote, tracking.ByID(id),
		[]tracking.Field{tracking.FieldNoteLinks})
	if err != nil {
		return nil, Context{}, err
	}
	if rec == nil {
		return nil, Context{}, fmt.Errorf("%w: Note %d", ErrNotFound, id)
	}

	links := rec.Refs(tracking.FieldNoteLinks)
	if len(links) == 0 {
		return RecipientSet{}, unknownContext(tracking.KindNote), nil
	}
	return r.resolveLink(ctx, links[0])
}

func (r *Resolver) resolveReplyTarget(ctx context.Context, id int64) (RecipientSet, Context, error) {
	rec, err := r.src.FindOne(ctx, tracking.KindReply, tracking.ByID(id),
		[]tracking.Field{tracking.FieldReplyNoteLinks})
	if err != nil {
		return nil, Context{}, err
	}
	if rec == nil {
		return nil, Context{}, fmt.Errorf("%w: Reply %d", ErrNotFound, id)
	}

	links := rec.Refs(tracking.FieldReplyNoteLinks)
	if len(links) == 0 {
		return RecipientSet{}, unknownContext(tracking.KindReply), nil
	}
	return r.resolveLink(ctx, links[0])
}

func (r *Resolver) resolveTaskTarget(ctx context.Context, id int64) (RecipientSet, Context, error) {
	rec, err := r.src.FindOne(ctx, tracking.KindTask, tracking.ByID(id),
		[]tracking.Field{tracking.FieldTaskEntity, tracking.FieldTaskStep})
	if err != nil {
		return nil, Context{}, err
	}
	if rec == nil {
		return nil, Context{}, fmt.Errorf("%w: Task %d", ErrNotFound, id)
	}

	step := rec.Str(tracking.FieldTaskStep, "Unknown Step")
	ent, ok := rec.Ref(tracking.FieldTaskEntity)
	if !ok {
		c := unknownContext(tracking.KindTask)
		c.Step = step
		return RecipientSet{}, c, nil
	}

	rs, c, err := r.resolveLink(ctx, ent)
	if err != nil {
		return nil, Context{}, err
	}
	c.Step = step
	return rs, c, nil
}

// assigneesByStep fetches all tasks attached to the owner entity and groups
// assignee emails under each task's pipeline step. Emails are resolved one
// user at a time (one round trip per assignee); batching is a known
// optimization left out to keep parity with the tracking API's "is" filter.
func (r *Resolver) assigneesByStep(ctx context.Context, owner tracking.EntityRef) (RecipientSet, error) {
	tasks, err := r.src.Find(ctx, tracking.KindTask,
		tracking.ByLinkedEntity(tracking.FieldTaskEntity, owner),
		[]tracking.Field{tracking.FieldTaskAssignees, tracking.FieldTaskStep})
	if err != nil {
		return nil, err
	}

	rs := RecipientSet{}
	for _, task := range tasks {
		step := task.Str(tracking.FieldTaskStep, "Unknown Step")
		for _, assignee := range task.Refs(tracking.FieldTaskAssignees) {
			email, err := r.userEmail(ctx, assignee.ID)
			if err != nil {
				return nil, err
			}
			if email == "" {
				r.log.Debug("assignee has no resolvable email",
					logx.Int64("user_id", assignee.ID), logx.String("step", step))
				continue
			}
			rs.add(step, email)
		}
	}
	return rs, nil
}

// userEmail returns "" when the user record is gone or carries no email;
// that recipient is skipped, not an error.
func (r *Resolver) userEmail(ctx context.Context, userID int64) (string, error) {
	rec, err := r.src.FindOne(ctx, tracking.KindHumanUser, tracking.ByID(userID),
		[]tracking.Field{tracking.FieldUserEmail})
	if err != nil {
		return "", err
	}
	if rec == nil {
		return "", nil
	}
	return rec.Str(tracking.FieldUserEmail, ""), nil
}

func unknownContext(kind tracking.Kind) Context {
	return Context{
		Project:  "Unknown Project",
		Sequence: "N/A",
		Entity:   "Unknown " + string(kind),
	}
}
