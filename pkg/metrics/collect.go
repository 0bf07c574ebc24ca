package metrics

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"lease-metrics/pkg/metrics/exposition"
)

// CollectAndSerialize writes every family with at least one published child
// to s, in registration order, followed by WriteEnd and Flush.
//
// Families and children are snapshotted before any output is written, so a
// slow consumer never holds a registry lock. Any error aborts the collection
// and is returned; partial output should be discarded by the caller.
func (r *Registry) CollectAndSerialize(ctx context.Context, s exposition.Serializer) error {
	if err := r.runBeforeCollect(ctx); err != nil {
		return err
	}

	for _, f := range r.familySnapshot() {
		if err := ctx.Err(); err != nil {
			return err
		}
		children := f.publishedChildren()
		if len(children) == 0 {
			continue
		}
		if err := s.WriteFamilyDeclaration(ctx, f.name, f.help, f.typ); err != nil {
			return fmt.Errorf("failed to write family %s: %w", f.name, err)
		}
		for _, ch := range children {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := ch.collect(ctx, s, f.name); err != nil {
				return fmt.Errorf("failed to write family %s: %w", f.name, err)
			}
		}
	}

	if err := s.WriteEnd(ctx); err != nil {
		return err
	}
	return s.Flush(ctx)
}

// WriteTo renders the registry to w in the given text format.
func (r *Registry) WriteTo(ctx context.Context, w io.Writer, format exposition.Format) error {
	return r.CollectAndSerialize(ctx, exposition.NewTextSerializer(w, format))
}

func (r *Registry) runBeforeCollect(ctx context.Context) error {
	r.callbackMu.RLock()
	callbacks := make([]func(context.Context) error, len(r.callbacks))
	copy(callbacks, r.callbacks)
	r.callbackMu.RUnlock()

	for _, fn := range callbacks {
		if err := fn(ctx); err != nil {
			r.logger.Error("before-collect callback failed", slog.Any("error", err))
			return fmt.Errorf("before-collect callback: %w", err)
		}
	}
	return nil
}
