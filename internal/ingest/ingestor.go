package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/nutrisage/nutrisage/internal/coerce"
	"github.com/nutrisage/nutrisage/internal/errors"
	"github.com/nutrisage/nutrisage/internal/flatten"
	"github.com/nutrisage/nutrisage/internal/observability"
	"github.com/nutrisage/nutrisage/internal/partition"
	"github.com/nutrisage/nutrisage/internal/schema"
	"github.com/nutrisage/nutrisage/internal/sink"
	"github.com/nutrisage/nutrisage/pkg/types"
	"golang.org/x/sync/errgroup"
)

// DefaultChunkRows is the default number of lines per chunk.
const DefaultChunkRows = 50000

// State is a stage of the ingest loop.
type State int

const (
	StateReading State = iota
	StateFlattening
	StatePartitioningAndCoercing
	StateWriting
	StateDone
)

func (s State) String() string {
	switch s {
	case StateReading:
		return "Reading"
	case StateFlattening:
		return "Flattening"
	case StatePartitioningAndCoercing:
		return "PartitioningAndCoercing"
	case StateWriting:
		return "Writing"
	case StateDone:
		return "Done"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Report summarises a run. On failure it covers the chunks written before
// the failure.
type Report struct {
	Rows           int64
	Chunks         int64
	MalformedLines int64
	Elapsed        time.Duration
}

// Throughput returns rows per second.
func (r *Report) Throughput() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Rows) / r.Elapsed.Seconds()
}

// Ingestor drives the read, flatten, coerce and write loop.
type Ingestor struct {
	sink      sink.Sink
	flattener *flatten.Flattener
	resolver  *partition.Resolver
	coercer   *coerce.Coercer
	chunkRows int
	pipelined bool
	logger    *slog.Logger
	metrics   *observability.Metrics

	stateMu sync.Mutex
	onState func(State)
}

// Option configures an Ingestor.
type Option func(*Ingestor)

// WithChunkRows sets the number of lines per chunk.
func WithChunkRows(n int) Option {
	return func(in *Ingestor) {
		if n > 0 {
			in.chunkRows = n
		}
	}
}

// WithPipelining overlaps the write of one chunk with the preparation of
// the next. At most one write is in flight.
func WithPipelining(enabled bool) Option {
	return func(in *Ingestor) { in.pipelined = enabled }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(in *Ingestor) { in.logger = l }
}

// WithMetrics records chunk metrics on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(in *Ingestor) { in.metrics = m }
}

// WithResolver replaces the partition resolver.
func WithResolver(r *partition.Resolver) Option {
	return func(in *Ingestor) { in.resolver = r }
}

// OnState registers a hook called on every state transition. Calls are
// serialised.
func OnState(fn func(State)) Option {
	return func(in *Ingestor) { in.onState = fn }
}

// New creates an ingestor appending to s.
func New(contract *schema.Contract, s sink.Sink, opts ...Option) *Ingestor {
	in := &Ingestor{
		sink:      s,
		flattener: flatten.New(contract),
		resolver:  partition.NewResolver(),
		coercer:   coerce.New(contract),
		chunkRows: DefaultChunkRows,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

func (in *Ingestor) setState(s State) {
	if in.onState == nil {
		return
	}
	in.stateMu.Lock()
	defer in.stateMu.Unlock()
	in.onState(s)
}

// Run ingests every record of r.
func (in *Ingestor) Run(ctx context.Context, r io.Reader) (*Report, error) {
	progress := observability.NewProgress()

	var err error
	if in.pipelined {
		err = in.runPipelined(ctx, r, progress)
	} else {
		err = in.runSequential(ctx, r, progress)
	}

	snap := progress.Snapshot()
	rep := &Report{
		Rows:           snap.Rows,
		Chunks:         snap.Chunks,
		MalformedLines: snap.MalformedLines,
		Elapsed:        snap.Elapsed,
	}
	if err != nil {
		in.logger.Error("ingest failed",
			"rows_written", rep.Rows,
			"chunks", rep.Chunks,
			"error", err)
		return rep, err
	}

	in.setState(StateDone)
	in.logger.Info("ingest complete",
		"rows", rep.Rows,
		"chunks", rep.Chunks,
		"malformed_lines", rep.MalformedLines,
		"elapsed", rep.Elapsed.Round(time.Millisecond),
		"rows_per_sec", fmt.Sprintf("%.0f", rep.Throughput()))
	return rep, nil
}

func (in *Ingestor) runSequential(ctx context.Context, r io.Reader, progress *observability.Progress) error {
	cr := NewChunkReader(r)
	for chunk := 1; ; chunk++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, more, err := in.nextBatch(cr, progress)
		if err != nil {
			return err
		}
		if batch != nil {
			if err := in.write(ctx, chunk, batch, progress); err != nil {
				return err
			}
		}
		if !more {
			return nil
		}
	}
}

func (in *Ingestor) runPipelined(ctx context.Context, r io.Reader, progress *observability.Progress) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(1)

	cr := NewChunkReader(r)
	for chunk := 1; ; chunk++ {
		if gctx.Err() != nil {
			break
		}
		batch, more, err := in.nextBatch(cr, progress)
		if err != nil {
			_ = g.Wait()
			return err
		}
		if batch != nil {
			n := chunk
			// Blocks while the previous write is in flight.
			g.Go(func() error {
				return in.write(gctx, n, batch, progress)
			})
		}
		if !more {
			break
		}
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// nextBatch reads and prepares one chunk. The batch is nil when the chunk
// held no usable records; more is false once the input is exhausted.
func (in *Ingestor) nextBatch(cr *ChunkReader, progress *observability.Progress) (*types.Batch, bool, error) {
	in.setState(StateReading)
	lines, err := cr.Next(in.chunkRows)
	if err != nil {
		return nil, false, errors.NewInternalError("failed to read input", err)
	}
	more := len(lines) == in.chunkRows
	if len(lines) == 0 {
		return nil, false, nil
	}

	in.setState(StateFlattening)
	rows := make([]types.FlatRow, 0, len(lines))
	raws := make([]map[string]any, 0, len(lines))
	malformed := 0
	for _, line := range lines {
		row, raw, err := in.flattener.FlattenJSON(line)
		if err != nil {
			malformed++
			in.logger.Debug("skipping malformed line", "error", err)
			continue
		}
		rows = append(rows, row)
		raws = append(raws, raw)
	}
	if malformed > 0 {
		progress.RecordMalformed(malformed)
		in.metrics.AddMalformed(malformed)
	}
	if len(rows) == 0 {
		return nil, more, nil
	}

	in.setState(StatePartitioningAndCoercing)
	parts := make([]types.PartitionValues, len(raws))
	for i, raw := range raws {
		parts[i] = in.resolver.Resolve(raw)
	}
	batch, err := in.coercer.Coerce(rows, parts)
	if err != nil {
		return nil, false, errors.NewInternalError("failed to coerce chunk", err)
	}
	return batch, more, nil
}

func (in *Ingestor) write(ctx context.Context, chunk int, batch *types.Batch, progress *observability.Progress) error {
	in.setState(StateWriting)
	start := time.Now()

	res, err := in.sink.Append(ctx, batch)
	if err != nil {
		return errors.NewSinkWriteError(fmt.Sprintf("failed to append chunk %d", chunk), err)
	}
	took := time.Since(start)

	nulls := make(map[string]int64)
	for col, n := range batch.NullCounts() {
		nulls[col] = int64(n)
	}
	progress.RecordChunk(res.Rows, took, nulls)
	in.metrics.ObserveChunk(res.RowsByYear(), took, nulls)

	total := progress.Snapshot()
	in.logger.Info("chunk written",
		"chunk", chunk,
		"rows", res.Rows,
		"fragments", len(res.Fragments),
		"took", took.Round(time.Millisecond),
		"total_rows", total.Rows)
	return nil
}
