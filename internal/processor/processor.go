package processor

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"arstate/internal/assemble"
	"arstate/internal/media"
	"arstate/internal/rasterize"
	"arstate/internal/transcode"
)

// Pipeline converts batches of classified sources and assembles the result.
type Pipeline struct {
	transcoder *transcode.Transcoder
	rasterizer *rasterize.Rasterizer
	assembler  *assemble.Assembler
	log        zerolog.Logger
}

func New(t *transcode.Transcoder, r *rasterize.Rasterizer, a *assemble.Assembler, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		transcoder: t,
		rasterizer: r,
		assembler:  a,
		log:        log.With().Str("comp", "pipeline").Logger(),
	}
}

// Convert processes sources one at a time, in order. With a single source any
// failure aborts the operation. In a batch, failed sources are recorded in the
// report and skipped, and the remaining outputs are assembled as a batch of
// every submitted source.
func (p *Pipeline) Convert(ctx context.Context, sources []media.Source, req media.Request, updates chan<- ProgressUpdate) (report Report, err error) {
	if updates != nil {
		defer func() {
			final := media.StateDone
			if err != nil {
				final = media.StateFailed
			}
			updates <- ProgressUpdate{State: final}
		}()
	}
	if len(sources) == 0 {
		return report, errors.New("no supported files to convert")
	}
	req, err = p.prepare(sources, req)
	if err != nil {
		return report, err
	}

	single := len(sources) == 1
	report.Summary.Total = len(sources)
	if updates != nil {
		updates <- ProgressUpdate{State: media.StateConverting, TotalDelta: len(sources)}
	}

	var (
		outputs   []media.Output
		succeeded int
		firstErr  error
	)
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if updates != nil {
			updates <- ProgressUpdate{Current: src.Name}
		}

		res := Result{Source: src.Name, Kind: src.Kind}
		report.Summary.InputBytes += int64(len(src.Data))

		outs, err := p.convertSource(ctx, src, req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return report, ctxErr
			}
			if single {
				return report, err
			}
			p.log.Warn().Err(err).Str("source", src.Name).Msg("source skipped")
			res.Err = err
			report.Summary.Errors++
			if firstErr == nil {
				firstErr = err
			}
			report.Results = append(report.Results, res)
			if updates != nil {
				updates <- ProgressUpdate{ErrorDelta: 1, ProcessedDelta: 1}
			}
			continue
		}

		for _, out := range outs {
			res.Bytes += out.Size()
		}
		res.Outputs = len(outs)
		outputs = append(outputs, outs...)
		succeeded++
		report.Summary.Processed++
		report.Summary.OutputBytes += res.Bytes
		report.Results = append(report.Results, res)
		p.log.Debug().Str("source", src.Name).Int("outputs", res.Outputs).Int64("bytes", res.Bytes).Msg("source converted")
		if updates != nil {
			updates <- ProgressUpdate{ProcessedDelta: 1, BytesDelta: res.Bytes}
		}
	}

	if succeeded == 0 {
		return report, firstErr
	}

	asm, err := p.assembler.Assemble(outputs, len(sources), media.HasPaginated(sources))
	if err != nil {
		return report, err
	}
	report.Assembly = asm
	return report, nil
}

// Estimate runs the conversion path without assembling and predicts the total
// output size. Dimensions are only predicted for a single image source with a
// non-icon target.
func (p *Pipeline) Estimate(ctx context.Context, sources []media.Source, req media.Request) (media.Snapshot, error) {
	if len(sources) == 0 {
		return media.Snapshot{}, errors.New("nothing to estimate")
	}
	req, err := p.prepare(sources, req)
	if err != nil {
		return media.Snapshot{}, err
	}

	var snap media.Snapshot
	var last media.Output
	for _, src := range sources {
		outs, err := p.convertSource(ctx, src, req)
		if err != nil {
			return media.Snapshot{}, err
		}
		for _, out := range outs {
			snap.Bytes += out.Size()
			last = out
		}
	}

	if len(sources) == 1 && sources[0].Kind.Raster() && req.Target != media.OutputICO {
		snap.Width = last.Width
		snap.Height = last.Height
		snap.HasDimensions = true
	}
	return snap, nil
}

func (p *Pipeline) prepare(sources []media.Source, req media.Request) (media.Request, error) {
	if err := req.Validate(); err != nil {
		return req, fmt.Errorf("invalid request: %w", err)
	}
	if target := media.ResolveOutput(req.Target, sources); target != req.Target {
		p.log.Info().Str("requested", req.Target.Ext()).Str("using", target.Ext()).Msg("output format not available for this batch")
		req.Target = target
	}
	return req, nil
}

func (p *Pipeline) convertSource(ctx context.Context, src media.Source, req media.Request) ([]media.Output, error) {
	if src.ContentMismatch() {
		p.log.Warn().Str("source", src.Name).Stringer("named", src.Kind).Stringer("content", src.Content).Msg("file content does not match its name")
	}
	switch {
	case src.Kind.Paginated():
		return p.rasterizer.Transcode(ctx, src, req)
	case src.Kind.Raster():
		res, err := p.transcoder.Transcode(ctx, src.Name, src.Data, src.Kind, req)
		if err != nil {
			return nil, err
		}
		return []media.Output{{
			SourceID: src.ID,
			Base:     src.Base(),
			Ext:      req.Target.Ext(),
			Data:     res.Data,
			Width:    res.Width,
			Height:   res.Height,
		}}, nil
	default:
		return nil, media.Unsupported(src.Name, src.MIME)
	}
}
