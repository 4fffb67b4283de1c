// Package tracking defines the capability interface to the production
// tracking database (shots, assets, versions, tasks, notes).
//
// The relay core only reads from the tracking source and never mutates it.
package tracking

import (
	"context"
	"errors"
)

// Kind is an entity kind in the tracking source.
type Kind string

const (
	KindShot       Kind = "Shot"
	KindAsset      Kind = "Asset"
	KindVersion    Kind = "Version"
	KindTask       Kind = "Task"
	KindNote       Kind = "Note"
	KindReply      Kind = "Reply"
	KindPlaylist   Kind = "Playlist"
	KindHumanUser  Kind = "HumanUser"
	KindAttachment Kind = "Attachment"
)

// EntityRef is a typed pointer into the tracking source.
// It is never dereferenced directly; resolution always goes through the
// relay's graph resolver.
type EntityRef struct {
	Type Kind
	ID   int64
	Name string
}

func (r EntityRef) IsZero() bool { return r.Type == "" && r.ID == 0 }

// OpIs is the only filter operator the relay needs. The interface keeps the
// operator explicit so richer sources can add more without breaking callers.
const OpIs = "is"

// Filter is a [field, operator, value] triple understood by the source.
type Filter struct {
	Field Field
	Op    string
	Value any
}

// ByID filters on the numeric primary key.
func ByID(id int64) []Filter {
	return []Filter{{Field: FieldID, Op: OpIs, Value: id}}
}

// ByLinkedEntity filters on an entity-reference field (e.g. Task.entity).
func ByLinkedEntity(field Field, ref EntityRef) []Filter {
	return []Filter{{Field: field, Op: OpIs, Value: map[string]any{"type": string(ref.Type), "id": ref.ID}}}
}

var ErrUnavailable = errors.New("tracking source unavailable")

// Source is the read capability consumed by the relay core.
//
// FindOne returns (nil, nil) when no record matches; errors are reserved for
// transport/availability failures.
type Source interface {
	FindOne(ctx context.Context, kind Kind, filters []Filter, fields []Field) (Record, error)
	Find(ctx context.Context, kind Kind, filters []Filter, fields []Field) ([]Record, error)
}
