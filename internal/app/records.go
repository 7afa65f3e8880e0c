package app

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"landdev/internal/adapters/observability"
	"landdev/internal/domain"
)

// RecordService handles writes for every registry entity.
type RecordService struct {
	repo          domain.RecordRepository
	cache         domain.Cache
	reg           *domain.Registry
	rejectUnknown bool
}

// NewRecordService builds the write service. With rejectUnknown, payload keys
// that are not writable fields fail validation instead of being ignored.
func NewRecordService(r domain.RecordRepository, c domain.Cache, reg *domain.Registry, rejectUnknown bool) *RecordService {
	return &RecordService{repo: r, cache: c, reg: reg, rejectUnknown: rejectUnknown}
}

func lookupEntity(reg *domain.Registry, name string) (*domain.Entity, error) {
	e, ok := reg.Entity(name)
	if !ok {
		return nil, fmt.Errorf("entity %q: %w", name, domain.ErrNotFound)
	}
	return e, nil
}

func (s *RecordService) Create(ctx context.Context, entity string, spec domain.FieldUpdateSpec) (domain.Record, error) {
	e, err := lookupEntity(s.reg, entity)
	if err != nil {
		return nil, err
	}
	ch, err := s.parse(e, spec, true)
	if err != nil {
		return nil, err
	}
	for i := range e.Fields {
		f := &e.Fields[i]
		if !f.Required {
			continue
		}
		if a, ok := ch.Lookup(f.Name); !ok || a.Value == nil {
			return nil, domain.Invalid("%s is required", f.Name)
		}
	}
	if ch.Empty() {
		return nil, domain.Invalid("no fields to create")
	}

	id, err := s.repo.Insert(ctx, e, ch.Primary)
	if err != nil {
		return nil, err
	}
	observability.ObserveRecordWrite(entity, "create")
	log.Info().Str("entity", entity).Int64("id", id).Msg("record created")
	return s.repo.GetByID(ctx, e, id)
}

// Update applies a partial update and returns the re-read, joined record.
func (s *RecordService) Update(ctx context.Context, entity string, id int64, spec domain.FieldUpdateSpec) (domain.Record, error) {
	e, err := lookupEntity(s.reg, entity)
	if err != nil {
		return nil, err
	}
	ch, err := s.parse(e, spec, false)
	if err != nil {
		return nil, err
	}
	if ch.Empty() {
		return nil, domain.Invalid("no fields to update")
	}

	if err := s.repo.UpdateFields(ctx, e, id, ch); err != nil {
		return nil, err
	}
	s.invalidate(ctx, entity, id)
	observability.ObserveRecordWrite(entity, "update")
	log.Info().Str("entity", entity).Int64("id", id).
		Int("primary", len(ch.Primary)).Int("core", len(ch.Core)).
		Msg("record updated")
	return s.repo.GetByID(ctx, e, id)
}

func (s *RecordService) Delete(ctx context.Context, entity string, id int64) error {
	e, err := lookupEntity(s.reg, entity)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, e, id); err != nil {
		return err
	}
	s.invalidate(ctx, entity, id)
	observability.ObserveRecordWrite(entity, "delete")
	return nil
}

// parse turns a payload into typed assignments in registry order. On create,
// fields that live on the core table are not writable.
func (s *RecordService) parse(e *domain.Entity, spec domain.FieldUpdateSpec, create bool) (domain.Changes, error) {
	var unknown []string
	for k := range spec {
		f, ok := e.Writable(k)
		if !ok || (create && f.Target == domain.TargetCore) {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		if s.rejectUnknown {
			return domain.Changes{}, domain.Invalid("unknown fields: %s", strings.Join(unknown, ", "))
		}
		log.Debug().Str("entity", e.Name).Strs("fields", unknown).Msg("ignoring unknown fields")
	}

	var ch domain.Changes
	for i := range e.Fields {
		f := &e.Fields[i]
		raw, ok := spec[f.Name]
		if !ok || f.ReadOnly || (create && f.Target == domain.TargetCore) {
			continue
		}
		v, err := f.Coerce(raw)
		if err != nil {
			return domain.Changes{}, err
		}
		a := domain.Assignment{Field: f, Value: v}
		if f.Target == domain.TargetCore {
			ch.Core = append(ch.Core, a)
		} else {
			ch.Primary = append(ch.Primary, a)
		}
	}
	return ch, nil
}

func (s *RecordService) invalidate(ctx context.Context, entity string, id int64) {
	if s.cache != nil {
		_ = s.cache.Del(ctx, recordKey(entity, id))
	}
}

func recordKey(entity string, id int64) string {
	return fmt.Sprintf("record:%s:%d", entity, id)
}
